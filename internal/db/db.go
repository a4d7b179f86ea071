/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package db opens the optional relational store that holds the database
// catalog and the request audit log.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/playlistd/internal/config"
)

// Connect establishes a gorm DB connection for the configured backend and
// registers the telemetry callbacks.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.DBBackend, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.Environment == "development" {
		level = logger.Info
	}

	database, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBBackend, err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if cfg.DBBackend == config.DatabaseSQLite {
		// One writer; also keeps ":memory:" databases on a single connection.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := RegisterCallbacks(database); err != nil {
		return nil, fmt.Errorf("register callbacks: %w", err)
	}
	return database, nil
}

// Dialector selects the gorm driver for backend.
func Dialector(backend config.DatabaseBackend, dsn string) (gorm.Dialector, error) {
	switch backend {
	case config.DatabasePostgres:
		return postgres.Open(dsn), nil
	case config.DatabaseMySQL:
		return mysql.Open(dsn), nil
	case config.DatabaseSQLite:
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unknown database backend: %s", backend)
}

// Close releases database resources.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
