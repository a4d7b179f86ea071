/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/client"
	"github.com/friendsincode/playlistd/internal/config"
)

const testCatalogJSON = `{"catalog":[
  {"id":"1","song_title":"Intro","artist":"The Band","album_title":"First","duration":"3:00"},
  {"id":"2","song_title":"Outro","artist":"The Band","album_title":"First","duration":"4:15"}
]}`

func newTestServer(t *testing.T, withDB bool) *Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(testCatalogJSON), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cfg := &config.Config{
		Environment: "test",
		Bind:        "127.0.0.1",
		Port:        0,
		CatalogPath: path,
		DBBackend:   config.DatabaseSQLite,
		EventBus:    config.EventBusMemory,
	}
	if withDB {
		cfg.DBDSN = ":memory:"
	}

	srv, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func waitForListener(t *testing.T, srv *Server) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if addr := srv.Protocol().Addr(); addr != nil {
			return addr.String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("protocol listener never came up")
	return ""
}

func TestServerEndToEnd(t *testing.T) {
	srv := newTestServer(t, true)
	srv.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	addr := waitForListener(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	res, err := c.AddSong(ctx, "2")
	if err != nil {
		t.Fatalf("AddSong() error = %v", err)
	}
	if len(res.UpdatedPlaylist) != 1 || res.UpdatedPlaylist[0].ID != "2" {
		t.Fatalf("AddSong() playlist = %+v", res.UpdatedPlaylist)
	}

	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/playlist", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"id":"2"`) {
		t.Errorf("playlist view = %s", w.Body.String())
	}

	// The audit writer subscribes asynchronously; keep issuing requests
	// until one is recorded.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := c.Playlist(ctx); err != nil {
			t.Fatalf("Playlist() error = %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit?action=protocol.request", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		var body struct {
			Total int64 `json:"total"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode audit: %v (%s)", err, w.Body.String())
		}
		if body.Total > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never reached the audit log")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t, false)
	h := srv.Handler()

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/catalog", http.StatusOK},
		{"/api/v1/audit", http.StatusServiceUnavailable},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tt.wantStatus {
			t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.wantStatus)
		}
		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("GET %s missing security headers", tt.path)
		}
	}
}

func TestNewFailsOnMissingCatalog(t *testing.T) {
	cfg := &config.Config{
		Bind:        "127.0.0.1",
		CatalogPath: filepath.Join(t.TempDir(), "missing.json"),
		DBBackend:   config.DatabaseSQLite,
		EventBus:    config.EventBusMemory,
	}
	if _, err := New(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("New() expected error for missing catalog")
	}
}

func TestServerCatalogFromDatabase(t *testing.T) {
	cfg := &config.Config{
		Bind:          "127.0.0.1",
		CatalogFromDB: true,
		DBBackend:     config.DatabaseSQLite,
		DBDSN:         ":memory:",
		EventBus:      config.EventBusMemory,
	}
	srv, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer srv.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty database catalog = %s, want []", w.Body.String())
	}
}
