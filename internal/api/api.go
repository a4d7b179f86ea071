/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api serves the read-only HTTP side of playlistd: health, catalog
// and playlist views, the audit log and a websocket event stream. All
// playlist mutations go through the framed protocol.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/audit"
	"github.com/friendsincode/playlistd/internal/auth"
	"github.com/friendsincode/playlistd/internal/events"
	"github.com/friendsincode/playlistd/internal/logbuffer"
	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/playlist"
	"github.com/friendsincode/playlistd/internal/version"
)

// Session describes one connected protocol client.
type Session struct {
	SessionID   string    `json:"session_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// SessionSource lists connected protocol clients.
type SessionSource func() []Session

// API exposes HTTP handlers.
type API struct {
	engine   *playlist.Engine
	auditSvc *audit.Service
	bus      events.Broker
	sessions SessionSource
	logs     *logbuffer.Buffer
	secret   []byte
	started  time.Time
	logger   zerolog.Logger
}

// New creates the API router wrapper. auditSvc and sessions may be nil.
func New(engine *playlist.Engine, auditSvc *audit.Service, bus events.Broker, sessions SessionSource, logger zerolog.Logger) *API {
	return &API{
		engine:   engine,
		auditSvc: auditSvc,
		bus:      bus,
		sessions: sessions,
		started:  time.Now(),
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// SetLogBuffer enables the /api/v1/logs endpoints.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logs = buf
}

// SetAuthSecret requires bearer tokens signed with secret on the audit,
// logs, sessions and events endpoints. Call before Routes.
func (a *API) SetAuthSecret(secret []byte) {
	a.secret = secret
}

// Routes registers the API routes on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)
	r.With(auth.Middleware(a.secret, auth.ScopeEvents)).Get("/events", a.handleEvents)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/version", a.handleVersion)
		r.Get("/catalog", a.handleCatalog)
		r.Get("/catalog/{songID}", a.handleCatalogSong)
		r.Get("/playlist", a.handlePlaylist)
		r.Get("/state", a.handleState)
		r.With(auth.Middleware(a.secret, auth.ScopeSessions)).Get("/sessions", a.handleSessions)
		r.With(auth.Middleware(a.secret, auth.ScopeAudit)).Get("/audit", a.handleAuditList)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(a.secret, auth.ScopeLogs))
			r.Get("/logs", a.handleLogs)
			r.Get("/logs/stats", a.handleLogStats)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(a.started).Seconds()),
	})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.engine.Catalog())
}

func (a *API) handleCatalogSong(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "songID")
	for _, s := range a.engine.Catalog() {
		if s.ID == id {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeError(w, http.StatusNotFound, "song_not_found")
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"playlist": a.engine.Playlist(),
	})
}

// stateResponse is a point-in-time view of the playlist engine.
type stateResponse struct {
	PlayMode     string        `json:"play_mode"`
	Playlist     []models.Song `json:"playlist"`
	DesignQueue  []models.Song `json:"design_queue"`
	RestoreQueue []models.Song `json:"restore_queue"`
	History      []models.Song `json:"history"`
	CatalogSize  int           `json:"catalog_size"`
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	st := a.engine.State()
	mode := string(st.Submode)
	if mode == "" {
		mode = "none"
	}
	writeJSON(w, http.StatusOK, stateResponse{
		PlayMode:     mode,
		Playlist:     st.Playlist,
		DesignQueue:  st.DesignQueue,
		RestoreQueue: st.RestoreQueue,
		History:      st.History,
		CatalogSize:  st.CatalogSize,
	})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []Session{}
	if a.sessions != nil {
		sessions = append(sessions, a.sessions()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
