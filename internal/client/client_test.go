/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package client

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/protocol"
)

// fakeServer answers each request on conn with respond(req). A nil response
// leaves the request unanswered.
func fakeServer(t *testing.T, respond func(req *protocol.Message) *protocol.Message) *Client {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	go func() {
		r := bufio.NewReader(serverConn)
		for {
			req, err := protocol.ReadMessage(r)
			if err != nil {
				return
			}
			resp := respond(req)
			if resp == nil {
				continue
			}
			if err := protocol.WriteMessage(serverConn, resp); err != nil {
				return
			}
		}
	}()
	return New(clientConn)
}

func reply(t protocol.MessageType, payload string) *protocol.Message {
	return protocol.NewMessage(t, payload, "127.0.0.1", "127.0.0.1")
}

func TestCatalogRoundTrip(t *testing.T) {
	var gotType protocol.MessageType
	c := fakeServer(t, func(req *protocol.Message) *protocol.Message {
		gotType = req.Type
		return reply(protocol.TypeCatalogResponse, `[{"id":"1","song_title":"Song 1"}]`)
	})

	songs, err := c.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if gotType != protocol.TypeCatalogRequest {
		t.Errorf("request type = %v", gotType)
	}
	if len(songs) != 1 || songs[0].ID != "1" {
		t.Fatalf("songs = %+v", songs)
	}
}

func TestAddSongSendsBareID(t *testing.T) {
	var gotPayload string
	c := fakeServer(t, func(req *protocol.Message) *protocol.Message {
		gotPayload = req.Payload
		return reply(protocol.TypePlaylistUpdate, `{"success":"Song 4 added to the playlist.","updated_playlist":[{"id":"4"}]}`)
	})

	out, err := c.AddSong(context.Background(), "4")
	if err != nil {
		t.Fatalf("AddSong: %v", err)
	}
	if gotPayload != "4" {
		t.Errorf("payload = %q, want 4", gotPayload)
	}
	if out.Success == "" || len(out.UpdatedPlaylist) != 1 {
		t.Fatalf("update = %+v", out)
	}
}

func TestSwitchModeSendsJSON(t *testing.T) {
	var gotPayload string
	c := fakeServer(t, func(req *protocol.Message) *protocol.Message {
		gotPayload = req.Payload
		return reply(protocol.TypeSongResult, `{"play_mode":"shuffle","now_playing":{"id":"2"}}`)
	})

	out, err := c.SwitchMode(context.Background(), "shuffle")
	if err != nil {
		t.Fatalf("SwitchMode: %v", err)
	}
	if gotPayload != `{"mode":"shuffle"}` {
		t.Errorf("payload = %q", gotPayload)
	}
	if out.PlayMode != "shuffle" || out.NowPlaying == nil || out.NowPlaying.ID != "2" {
		t.Fatalf("response = %+v", out)
	}
}

func TestFindSong(t *testing.T) {
	c := fakeServer(t, func(req *protocol.Message) *protocol.Message {
		if req.Payload == "1" {
			return reply(protocol.TypeSongResult, `{"id":"1","song_title":"Song 1"}`)
		}
		return reply(protocol.TypeSongNotFound, `{"error":"Song not found in the playlist."}`)
	})

	hit, err := c.FindSong(context.Background(), "1")
	if err != nil {
		t.Fatalf("FindSong hit: %v", err)
	}
	if hit.Song == nil || *hit.Song != (models.Song{ID: "1", Title: "Song 1"}) || hit.Error != "" {
		t.Fatalf("hit = %+v", hit)
	}

	miss, err := c.FindSong(context.Background(), "9")
	if err != nil {
		t.Fatalf("FindSong miss: %v", err)
	}
	if miss.Song != nil || miss.Error != "Song not found in the playlist." {
		t.Fatalf("miss = %+v", miss)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		resp    *protocol.Message
		wantErr error
	}{
		{"error frame", reply(protocol.TypeError, `{"error":"Unsupported message type."}`), ErrUnsupported},
		{"wrong type", reply(protocol.TypeCatalogResponse, `[]`), ErrUnexpectedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fakeServer(t, func(*protocol.Message) *protocol.Message { return tt.resp })
			_, err := c.PlayNext(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorFrameCarriesServerText(t *testing.T) {
	c := fakeServer(t, func(*protocol.Message) *protocol.Message {
		return reply(protocol.TypeError, `{"error":"Unsupported message type."}`)
	})
	_, err := c.OpenNewPlaylist(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Unsupported message type.") {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelUnblocksPendingRequest(t *testing.T) {
	c := fakeServer(t, func(*protocol.Message) *protocol.Message { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() {
		_, err := c.Playlist(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request did not return after cancel")
	}

	// The stream position is unknown now; later requests must not read a
	// stale reply.
	if _, err := c.Playlist(context.Background()); !errors.Is(err, ErrBroken) {
		t.Fatalf("request after cancel err = %v, want ErrBroken", err)
	}
}

func TestPartialReplyBreaksClient(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { _ = serverConn.Close() })
	c := New(clientConn)

	frame, err := reply(protocol.TypePlaylistUpdate, `{"success":"ok"}`).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	go func() {
		if _, err := protocol.ReadMessage(bufio.NewReader(serverConn)); err != nil {
			return
		}
		_, _ = serverConn.Write(frame[:len(frame)/2])
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.Playlist(ctx); err == nil {
		t.Fatal("expected half a frame to fail")
	}
	if _, err := c.Playlist(context.Background()); !errors.Is(err, ErrBroken) {
		t.Fatalf("err = %v, want ErrBroken", err)
	}
}
