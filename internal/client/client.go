/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package client speaks the framed playlist protocol from the client side.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/protocol"
)

// ErrUnsupported is returned when the server answers with an error frame.
var ErrUnsupported = errors.New("server rejected request")

// ErrUnexpectedResponse is returned when the response type does not belong to
// the request.
var ErrUnexpectedResponse = errors.New("unexpected response type")

// ErrBroken is returned by every request after a round trip failed part
// way, leaving the stream position unknown.
var ErrBroken = errors.New("connection broken by an earlier failed request")

// Client holds one connection. Requests are serialized: the protocol allows
// exactly one outstanding request per connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	local  string
	remote string
	broken error
}

// Dial connects to a playlist server.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn:   conn,
		r:      bufio.NewReader(conn),
		local:  host(conn.LocalAddr()),
		remote: host(conn.RemoteAddr()),
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one request and waits for its response. The context deadline, if
// any, bounds the whole round trip.
func (c *Client) Do(ctx context.Context, t protocol.MessageType, payload string) (*protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroken, c.broken)
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	req := protocol.NewMessage(t, payload, c.local, c.remote)
	if err := protocol.WriteMessage(c.conn, req); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("send %s: %w", t, err))
	}
	resp, err := protocol.ReadMessage(c.r)
	if err != nil {
		return nil, c.fail(ctx, fmt.Errorf("receive %s response: %w", t, err))
	}
	if resp.Type == protocol.TypeError {
		var body protocol.ErrorPayload
		_ = resp.DecodePayload(&body)
		return resp, fmt.Errorf("%w: %s", ErrUnsupported, body.Error)
	}
	return resp, nil
}

// fail closes the connection after a partial round trip. Callers hold c.mu.
func (c *Client) fail(ctx context.Context, err error) error {
	err = c.ctxErr(ctx, err)
	c.broken = err
	_ = c.conn.Close()
	return err
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

// Catalog fetches the full song catalog.
func (c *Client) Catalog(ctx context.Context) ([]models.Song, error) {
	var songs []models.Song
	err := c.call(ctx, protocol.TypeCatalogRequest, "", &songs, protocol.TypeCatalogResponse)
	return songs, err
}

// Playlist fetches the active playlist.
func (c *Client) Playlist(ctx context.Context) (protocol.PlaylistUpdate, error) {
	var out protocol.PlaylistUpdate
	err := c.call(ctx, protocol.TypePlaylistRequest, "", &out, protocol.TypePlaylistUpdate)
	return out, err
}

// AddSong adds a catalog song to the active playlist.
func (c *Client) AddSong(ctx context.Context, id string) (protocol.PlaylistUpdate, error) {
	var out protocol.PlaylistUpdate
	err := c.call(ctx, protocol.TypeAddSong, id, &out, protocol.TypePlaylistUpdate)
	return out, err
}

// RemoveSong removes a song from the active playlist.
func (c *Client) RemoveSong(ctx context.Context, id string) (protocol.PlaylistUpdate, error) {
	var out protocol.PlaylistUpdate
	err := c.call(ctx, protocol.TypeRemoveSong, id, &out, protocol.TypePlaylistUpdate)
	return out, err
}

// FindResult is the outcome of a find-song request. Exactly one of Song and
// Error is set.
type FindResult struct {
	Song  *models.Song
	Error string
}

// FindSong looks a song up in the active playlist.
func (c *Client) FindSong(ctx context.Context, id string) (FindResult, error) {
	resp, err := c.Do(ctx, protocol.TypeFindSong, id)
	if err != nil {
		return FindResult{}, err
	}
	switch resp.Type {
	case protocol.TypeSongResult:
		var song models.Song
		if err := resp.DecodePayload(&song); err != nil {
			return FindResult{}, err
		}
		return FindResult{Song: &song}, nil
	case protocol.TypeSongNotFound:
		var body protocol.ErrorPayload
		if err := resp.DecodePayload(&body); err != nil {
			return FindResult{}, err
		}
		return FindResult{Error: body.Error}, nil
	}
	return FindResult{}, fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Type)
}

// OpenNewPlaylist discards the active playlist. It returns the server's
// confirmation text.
func (c *Client) OpenNewPlaylist(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, protocol.TypeOpenPlaylist, "")
	if err != nil {
		return "", err
	}
	if resp.Type != protocol.TypePlaylistOpened {
		return "", fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Type)
	}
	return resp.Payload, nil
}

// SwitchMode switches the play submode and starts playback.
func (c *Client) SwitchMode(ctx context.Context, mode string) (protocol.PlayModeResponse, error) {
	payload, err := protocol.MarshalPayload(protocol.PlayModeRequest{Mode: mode})
	if err != nil {
		return protocol.PlayModeResponse{}, err
	}
	var out protocol.PlayModeResponse
	err = c.call(ctx, protocol.TypeSwitchMode, payload, &out, protocol.TypeSongResult)
	return out, err
}

// PlayNext advances to the next song.
func (c *Client) PlayNext(ctx context.Context) (protocol.PlayNextResponse, error) {
	var out protocol.PlayNextResponse
	err := c.call(ctx, protocol.TypePlayNext, "", &out, protocol.TypeSongResult)
	return out, err
}

// GoBack restores the most recently played song.
func (c *Client) GoBack(ctx context.Context) (protocol.GoBackResponse, error) {
	var out protocol.GoBackResponse
	err := c.call(ctx, protocol.TypeGoBack, "", &out, protocol.TypeSongResult)
	return out, err
}

func (c *Client) call(ctx context.Context, t protocol.MessageType, payload string, out any, want protocol.MessageType) error {
	resp, err := c.Do(ctx, t, payload)
	if err != nil {
		return err
	}
	if resp.Type != want {
		return fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.Type)
	}
	return resp.DecodePayload(out)
}

func host(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	h, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return h
}
