/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/playlistd/internal/config"
	"github.com/friendsincode/playlistd/internal/models"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		backend config.DatabaseBackend
		name    string
		wantErr bool
	}{
		{config.DatabasePostgres, "postgres", false},
		{config.DatabaseMySQL, "mysql", false},
		{config.DatabaseSQLite, "sqlite", false},
		{config.DatabaseBackend("oracle"), "", true},
	}
	for _, tt := range tests {
		d, err := Dialector(tt.backend, "dsn")
		if tt.wantErr {
			if err == nil {
				t.Errorf("Dialector(%q) expected error", tt.backend)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Dialector(%q): %v", tt.backend, err)
		}
		if d.Name() != tt.name {
			t.Errorf("Dialector(%q).Name() = %q, want %q", tt.backend, d.Name(), tt.name)
		}
	}
}

func TestConnectMigratesSQLite(t *testing.T) {
	cfg := &config.Config{Environment: "test", DBBackend: config.DatabaseSQLite, DBDSN: ":memory:"}
	database, err := Connect(cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	sqlDB, _ := database.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	songs := []models.Song{
		{ID: "1", Title: "Song 1", Artist: "Artist 1", Album: "Album 1", Duration: "3:45", Position: 0},
		{ID: "2", Title: "Song 2", Artist: "Artist 2", Album: "Album 2", Duration: "4:10", Position: 1},
	}
	if err := database.Create(&songs).Error; err != nil {
		t.Fatalf("create songs: %v", err)
	}

	var got []models.Song
	if err := database.Order("position").Find(&got).Error; err != nil {
		t.Fatalf("find songs: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].Duration != "4:10" {
		t.Fatalf("songs = %+v", got)
	}

	UpdateConnectionMetrics(database)
}

func TestCallbacksIgnoreMissingStartTime(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Close(database)

	// Must not panic when the before hook never ran.
	afterCallback("query")(database)

	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := database.AutoMigrate(&models.Song{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var s models.Song
	if err := database.First(&s, "id = ?", "missing").Error; err == nil {
		t.Fatal("expected record not found")
	}
}
