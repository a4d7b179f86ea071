/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/playlistd/internal/api"
	"github.com/friendsincode/playlistd/internal/audit"
	"github.com/friendsincode/playlistd/internal/catalog"
	"github.com/friendsincode/playlistd/internal/config"
	"github.com/friendsincode/playlistd/internal/db"
	"github.com/friendsincode/playlistd/internal/dispatch"
	"github.com/friendsincode/playlistd/internal/eventbus"
	"github.com/friendsincode/playlistd/internal/logbuffer"
	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/playlist"
	"github.com/friendsincode/playlistd/internal/storage"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// Server bundles the protocol listener, the HTTP side server and their
// supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db         *gorm.DB
	bus        eventbus.Bus
	engine     *playlist.Engine
	dispatcher *dispatch.Dispatcher
	protocol   *ProtocolServer
	auditSvc   *audit.Service
	api        *api.API
	logs       *logbuffer.Buffer

	errs     chan error
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// Option customizes a Server before its dependencies are wired.
type Option func(*Server)

// WithLogBuffer exposes buf on /api/v1/logs.
func WithLogBuffer(buf *logbuffer.Buffer) Option {
	return func(s *Server) { s.logs = buf }
}

// New wires every dependency named by cfg. Nothing listens until Start.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("playlistd-api"))
	router.Use(telemetry.MetricsMiddleware)

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		errs:   make(chan error, 2),
	}
	for _, opt := range opts {
		opt(srv)
	}

	if err := srv.initDependencies(ctx); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()

	if cfg.MetricsBind != "" {
		srv.httpServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           srv.router,
			ReadHeaderTimeout: 15 * time.Second,
			// WriteTimeout stays 0 for the /events stream.
			IdleTimeout: 60 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context) error {
	if s.cfg.DatabaseEnabled() {
		database, err := db.Connect(s.cfg)
		if err != nil {
			return err
		}
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return err
		}
		s.db = database
	}

	bus, err := eventbus.Open(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	songs, err := s.loadCatalog(ctx)
	if err != nil {
		return err
	}
	engine, err := playlist.NewEngine(songs)
	if err != nil {
		return fmt.Errorf("build playlist engine: %w", err)
	}
	s.engine = engine
	telemetry.CatalogSize.Set(float64(len(songs)))
	telemetry.PlaylistSize.Set(0)

	s.dispatcher = dispatch.New(engine, bus, s.logger)
	s.protocol = NewProtocolServer(s.cfg.Addr(), s.dispatcher, s.logger)

	if s.db != nil {
		s.auditSvc = audit.NewService(s.db, bus, s.logger)
	}

	s.api = api.New(engine, s.auditSvc, bus, s.sessions, s.logger)
	if s.logs != nil {
		s.api.SetLogBuffer(s.logs)
	}
	if s.cfg.JWTSecret != "" {
		s.api.SetAuthSecret([]byte(s.cfg.JWTSecret))
	}
	return nil
}

func (s *Server) loadCatalog(ctx context.Context) ([]models.Song, error) {
	var (
		songs  []models.Song
		err    error
		source string
	)
	if s.cfg.CatalogFromDB {
		source = "database"
		songs, err = catalog.LoadDB(ctx, s.db)
	} else {
		source = s.cfg.CatalogPath
		songs, err = catalog.Load(ctx, s.cfg.CatalogPath, S3Config(s.cfg))
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", source, err)
	}
	s.logger.Info().Str("source", source).Int("songs", len(songs)).Msg("catalog loaded")
	return songs, nil
}

// S3Config extracts the object storage settings from cfg.
func S3Config(cfg *config.Config) storage.S3Config {
	return storage.S3Config{
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		UsePathStyle:    cfg.S3UsePathStyle,
	}
}

func (s *Server) sessions() []api.Session {
	conns := s.protocol.Connections()
	out := make([]api.Session, len(conns))
	for i, c := range conns {
		out[i] = api.Session{SessionID: c.SessionID, RemoteAddr: c.RemoteAddr, ConnectedAt: c.ConnectedAt}
	}
	return out
}

func (s *Server) configureRoutes() {
	s.router.Handle("/metrics", telemetry.Handler())
	s.api.Routes(s.router)
}

// Start launches background workers and both listeners. Listener failures
// are reported on Errors.
func (s *Server) Start() {
	s.startBackgroundWorkers()

	go func() {
		if err := s.protocol.ListenAndServe(); err != nil && !errors.Is(err, ErrServerClosed) {
			s.errs <- fmt.Errorf("protocol server: %w", err)
		}
	}()

	if s.httpServer != nil {
		go func() {
			s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP side server listening")
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.errs <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
}

// Errors delivers fatal listener errors.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Shutdown stops both listeners, waiting for in-flight work until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.protocol.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Protocol exposes the framed-protocol listener.
func (s *Server) Protocol() *ProtocolServer {
	return s.protocol
}

// Handler exposes the HTTP side server router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer exposes the underlying net/http server; nil when disabled.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	if s.db == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.auditSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditSvc.Start(ctx)
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			db.UpdateConnectionMetrics(s.db)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}
