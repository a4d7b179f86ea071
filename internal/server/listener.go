/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/dispatch"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("protocol server closed")

// ProtocolConnection tracks an accepted client connection.
type ProtocolConnection struct {
	SessionID   string
	RemoteAddr  string
	ConnectedAt time.Time
	conn        net.Conn
}

// ProtocolServer accepts framed-protocol clients and runs one handler
// goroutine per connection. All handlers share one dispatcher, and through it
// one playlist engine.
type ProtocolServer struct {
	addr       string
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[string]*ProtocolConnection // sessionID -> connection
	closing  bool
	handlers sync.WaitGroup
}

// NewProtocolServer creates a server that will listen on addr.
func NewProtocolServer(addr string, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *ProtocolServer {
	return &ProtocolServer{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "protocol").Logger(),
		conns:      make(map[string]*ProtocolConnection),
	}
}

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *ProtocolServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; after Shutdown that error is ErrServerClosed.
func (s *ProtocolServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("protocol server listening")

	var tempDelay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(tempDelay*2, time.Second)
				}
				s.logger.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept failed")
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		pc := &ProtocolConnection{
			SessionID:   uuid.NewString(),
			RemoteAddr:  nc.RemoteAddr().String(),
			ConnectedAt: time.Now(),
			conn:        nc,
		}
		if !s.track(pc) {
			_ = nc.Close()
			return ErrServerClosed
		}

		telemetry.ConnectionsTotal.Inc()
		telemetry.ConnectionsActive.Inc()

		go func() {
			defer s.handlers.Done()
			defer s.untrack(pc)
			newConn(pc, s.dispatcher, s.logger).serve(context.Background())
		}()
	}
}

// Addr returns the bound address, or nil before Serve.
func (s *ProtocolServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections returns the number of open client connections.
func (s *ProtocolServer) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Connections returns a snapshot of the open client connections.
func (s *ProtocolServer) Connections() []ProtocolConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProtocolConnection, 0, len(s.conns))
	for _, pc := range s.conns {
		out = append(out, ProtocolConnection{
			SessionID:   pc.SessionID,
			RemoteAddr:  pc.RemoteAddr,
			ConnectedAt: pc.ConnectedAt,
		})
	}
	return out
}

// Shutdown stops accepting, closes every client connection and waits for
// their handlers to return or ctx to expire.
func (s *ProtocolServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("protocol server shutting down")

	s.mu.Lock()
	s.closing = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for _, pc := range s.conns {
		_ = pc.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ProtocolServer) track(pc *ProtocolConnection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[pc.SessionID] = pc
	s.handlers.Add(1)
	return true
}

func (s *ProtocolServer) untrack(pc *ProtocolConnection) {
	s.mu.Lock()
	delete(s.conns, pc.SessionID)
	s.mu.Unlock()
	telemetry.ConnectionsActive.Dec()
}

func (s *ProtocolServer) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}
