/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/friendsincode/playlistd/internal/models"
)

// Typed payloads, one per request/response kind. Add, remove and find
// requests carry the bare song id as their payload; catalog responses carry a
// JSON array of songs; TypePlaylistOpened carries a plain string.

// ErrorPayload is the body of find-song misses and unsupported requests.
type ErrorPayload struct {
	Error string `json:"error"`
}

// PlaylistUpdate answers playlist, add and remove requests (TypePlaylistUpdate).
type PlaylistUpdate struct {
	Success         string        `json:"success,omitempty"`
	UpdatedPlaylist []models.Song `json:"updated_playlist,omitzero"`
	Error           string        `json:"error,omitempty"`
}

// PlayModeRequest is the body of TypeSwitchMode.
type PlayModeRequest struct {
	Mode string `json:"mode"`
}

// PlayModeResponse answers TypeSwitchMode.
type PlayModeResponse struct {
	PlayMode   string        `json:"play_mode,omitempty"`
	Playlist   []models.Song `json:"playlist,omitzero"`
	NowPlaying *models.Song  `json:"now_playing,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// PlayNextResponse answers TypePlayNext. NowPlaying is absent when the queue
// is exhausted.
type PlayNextResponse struct {
	NowPlaying *models.Song `json:"now_playing,omitempty"`
	Message    string       `json:"message,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// GoBackResponse answers TypeGoBack.
type GoBackResponse struct {
	Success      string       `json:"success,omitempty"`
	RestoredSong *models.Song `json:"restored_song,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// MarshalPayload renders v as a JSON payload string.
func MarshalPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload unmarshals the message payload into v.
func (m *Message) DecodePayload(v any) error {
	if err := json.Unmarshal([]byte(m.Payload), v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, m.Type, err)
	}
	return nil
}

// DecodePlayModeRequest decodes a TypeSwitchMode payload. A missing mode is
// reported as malformed.
func (m *Message) DecodePlayModeRequest() (PlayModeRequest, error) {
	var req PlayModeRequest
	if err := m.DecodePayload(&req); err != nil {
		return PlayModeRequest{}, err
	}
	if req.Mode == "" {
		return PlayModeRequest{}, fmt.Errorf("%w: %s: mode is required", ErrMalformedPayload, m.Type)
	}
	return req, nil
}
