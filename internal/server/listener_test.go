/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/client"
	"github.com/friendsincode/playlistd/internal/dispatch"
	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/playlist"
	"github.com/friendsincode/playlistd/internal/protocol"
)

func startProtocolServer(t *testing.T) *ProtocolServer {
	t.Helper()

	catalog := []models.Song{
		{ID: "1", Title: "Intro", Artist: "The Band", Album: "First", Duration: "3:00"},
		{ID: "2", Title: "Outro", Artist: "The Band", Album: "First", Duration: "4:15"},
	}
	engine, err := playlist.NewEngine(catalog)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	srv := NewProtocolServer("127.0.0.1:0", dispatch.New(engine, nil, zerolog.Nop()), zerolog.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
		if err := <-served; !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve() error = %v, want ErrServerClosed", err)
		}
	})

	waitFor(t, func() bool { return srv.Addr() != nil })
	return srv
}

func dialClient(t *testing.T, srv *ProtocolServer) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestProtocolServerAddSongTwice(t *testing.T) {
	srv := startProtocolServer(t)
	c := dialClient(t, srv)
	ctx := testContext(t)

	first, err := c.AddSong(ctx, "1")
	if err != nil {
		t.Fatalf("AddSong() error = %v", err)
	}
	if first.Success != "Song 1 added to the playlist." || len(first.UpdatedPlaylist) != 1 {
		t.Fatalf("AddSong() = %+v", first)
	}

	second, err := c.AddSong(ctx, "1")
	if err != nil {
		t.Fatalf("AddSong() error = %v", err)
	}
	if second.Error != "Song is already in the playlist." || len(second.UpdatedPlaylist) != 1 {
		t.Fatalf("AddSong() duplicate = %+v", second)
	}
}

func TestProtocolServerSharesPlaylistAcrossClients(t *testing.T) {
	srv := startProtocolServer(t)
	ctx := testContext(t)

	const clients = 8
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		c := dialClient(t, srv)
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := c.AddSong(ctx, id); err != nil {
				errs <- err
			}
		}(fmt.Sprint(i%2 + 1))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("AddSong() error = %v", err)
	}

	got, err := dialClient(t, srv).Playlist(ctx)
	if err != nil {
		t.Fatalf("Playlist() error = %v", err)
	}
	if len(got.UpdatedPlaylist) != 2 || got.Error != "" {
		t.Fatalf("Playlist() = %+v, want both songs exactly once", got)
	}
}

func TestProtocolServerDefaultModeScenario(t *testing.T) {
	srv := startProtocolServer(t)
	c := dialClient(t, srv)
	ctx := testContext(t)

	for _, id := range []string{"1", "2"} {
		if _, err := c.AddSong(ctx, id); err != nil {
			t.Fatalf("AddSong(%s) error = %v", id, err)
		}
	}

	mode, err := c.SwitchMode(ctx, "default")
	if err != nil {
		t.Fatalf("SwitchMode() error = %v", err)
	}
	if mode.PlayMode != "default" || len(mode.Playlist) != 2 || mode.NowPlaying == nil || mode.NowPlaying.ID != "1" {
		t.Fatalf("SwitchMode() = %+v", mode)
	}

	next, err := c.PlayNext(ctx)
	if err != nil {
		t.Fatalf("PlayNext() error = %v", err)
	}
	if next.NowPlaying == nil || next.NowPlaying.ID != "2" {
		t.Fatalf("PlayNext() = %+v, want song 2", next)
	}

	next, err = c.PlayNext(ctx)
	if err != nil {
		t.Fatalf("PlayNext() error = %v", err)
	}
	if next.Error != "Playlist is empty." || next.NowPlaying != nil {
		t.Fatalf("PlayNext() = %+v, want empty error", next)
	}

	found, err := c.FindSong(ctx, "2")
	if err != nil {
		t.Fatalf("FindSong() error = %v", err)
	}
	if found.Song == nil || found.Song.Title != "Outro" {
		t.Fatalf("FindSong() = %+v", found)
	}

	opened, err := c.OpenNewPlaylist(ctx)
	if err != nil {
		t.Fatalf("OpenNewPlaylist() error = %v", err)
	}
	if opened != "New playlist opened." {
		t.Fatalf("OpenNewPlaylist() = %q", opened)
	}

	missing, err := c.FindSong(ctx, "2")
	if err != nil {
		t.Fatalf("FindSong() error = %v", err)
	}
	if missing.Song != nil || missing.Error != "No playlist found or playlist is empty." {
		t.Fatalf("FindSong() after open = %+v", missing)
	}
}

func TestProtocolServerUnsupportedType(t *testing.T) {
	srv := startProtocolServer(t)
	c := dialClient(t, srv)
	ctx := testContext(t)

	resp, err := c.Do(ctx, protocol.MessageType(42), "")
	if !errors.Is(err, client.ErrUnsupported) {
		t.Fatalf("Do() error = %v, want ErrUnsupported", err)
	}
	if resp.Type != protocol.TypeError || resp.Payload != `{"error":"Unsupported message type 42."}` {
		t.Fatalf("Do() = %s %s", resp.Type, resp.Payload)
	}

	// The connection stays usable.
	if _, err := c.Catalog(ctx); err != nil {
		t.Fatalf("Catalog() after unsupported type error = %v", err)
	}
}

func TestProtocolServerResponseAddresses(t *testing.T) {
	srv := startProtocolServer(t)
	c := dialClient(t, srv)

	resp, err := c.Do(testContext(t), protocol.TypeCatalogRequest, "")
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.ClientAddr != "127.0.0.1" || resp.ServerAddr != "127.0.0.1" {
		t.Fatalf("response addresses = %q/%q, want loopback", resp.ClientAddr, resp.ServerAddr)
	}
	if _, err := resp.Time(); err != nil {
		t.Fatalf("Time() error = %v", err)
	}
}

func TestProtocolServerClosesOnChecksumMismatch(t *testing.T) {
	srv := startProtocolServer(t)

	nc, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial() error = %v", err)
	}
	defer nc.Close()

	frame, err := protocol.Encode(protocol.TypeCatalogRequest, "", 0, "127.0.0.1", "127.0.0.1")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	frame[len(frame)-2] ^= 0x20

	if _, err := nc.Write(frame); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if n, err := nc.Read(make([]byte, 64)); !errors.Is(err, io.EOF) {
		t.Fatalf("Read() = %d, %v, want io.EOF", n, err)
	}
	waitFor(t, func() bool { return srv.ActiveConnections() == 0 })
}

func TestProtocolServerClosesOnTruncatedFrame(t *testing.T) {
	srv := startProtocolServer(t)

	nc, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial() error = %v", err)
	}

	frame, err := protocol.Encode(protocol.TypeCatalogRequest, "", 0, "127.0.0.1", "127.0.0.1")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, err := nc.Write(frame[:protocol.HeaderSize+3]); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	waitFor(t, func() bool { return srv.ActiveConnections() == 1 })
	_ = nc.(*net.TCPConn).CloseWrite()

	_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := nc.Read(make([]byte, 64)); !errors.Is(err, io.EOF) {
		t.Fatalf("Read() error = %v, want io.EOF", err)
	}
	_ = nc.Close()
	waitFor(t, func() bool { return srv.ActiveConnections() == 0 })
}

func TestProtocolServerTracksConnections(t *testing.T) {
	srv := startProtocolServer(t)

	c := dialClient(t, srv)
	if _, err := c.Catalog(testContext(t)); err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if got := srv.ActiveConnections(); got != 1 {
		t.Fatalf("ActiveConnections() = %d, want 1", got)
	}
	conns := srv.Connections()
	if len(conns) != 1 || conns[0].SessionID == "" {
		t.Fatalf("Connections() = %+v", conns)
	}

	_ = c.Close()
	waitFor(t, func() bool { return srv.ActiveConnections() == 0 })
}

func TestProtocolServerShutdownClosesClients(t *testing.T) {
	catalog := []models.Song{{ID: "1", Title: "Intro", Artist: "The Band"}}
	engine, err := playlist.NewEngine(catalog)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	srv := NewProtocolServer("127.0.0.1:0", dispatch.New(engine, nil, zerolog.Nop()), zerolog.Nop())

	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()
	waitFor(t, func() bool { return srv.Addr() != nil })

	c, err := client.Dial(testContext(t), srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	waitFor(t, func() bool { return srv.ActiveConnections() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-served; !errors.Is(err, ErrServerClosed) {
		t.Fatalf("ListenAndServe() error = %v, want ErrServerClosed", err)
	}
	if srv.ActiveConnections() != 0 {
		t.Fatalf("ActiveConnections() = %d after shutdown", srv.ActiveConnections())
	}
	if _, err := c.Catalog(testContext(t)); err == nil {
		t.Fatal("Catalog() succeeded after shutdown")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: io.EOF, want: closePeerDisconnect},
		{err: net.ErrClosed, want: closePeerDisconnect},
		{err: fmt.Errorf("read: %w", protocol.ErrChecksumMismatch), want: closeChecksumError},
		{err: fmt.Errorf("%w: truncated header", protocol.ErrFraming), want: closeFramingError},
		{err: errors.New("boom"), want: closeIOError},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestConnStateString(t *testing.T) {
	states := map[connState]string{
		stateOpen:            "open",
		stateReadingHeader:   "reading_header",
		stateReadingPayload:  "reading_payload",
		stateDispatching:     "dispatching",
		stateWritingResponse: "writing_response",
		stateClosed:          "closed",
		connState(99):        "unknown",
	}
	for s, want := range states {
		if got := s.String(); got != want {
			t.Errorf("connState(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
