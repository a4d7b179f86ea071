/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package protocol implements the length-prefixed, CRC-32 checked frame format
// spoken between playlistd and its clients.
package protocol

import (
	"fmt"
	"time"
)

// MessageType is the one-byte type code at the start of every frame.
type MessageType uint8

const (
	TypeError           MessageType = 0
	TypeCatalogRequest  MessageType = 1
	TypeCatalogResponse MessageType = 2
	TypePlaylistRequest MessageType = 3
	TypeAddSong         MessageType = 5
	TypePlaylistUpdate  MessageType = 6
	TypeOpenPlaylist    MessageType = 7
	TypePlaylistOpened  MessageType = 8
	TypeRemoveSong      MessageType = 9
	TypeFindSong        MessageType = 10
	// TypeSongResult carries find-song hits and every playback response.
	TypeSongResult   MessageType = 11
	TypeSongNotFound MessageType = 12
	TypeSwitchMode   MessageType = 13
	TypePlayNext     MessageType = 14
	TypeGoBack       MessageType = 15
)

// String returns a stable name for logs and metric labels.
func (t MessageType) String() string {
	switch t {
	case TypeError:
		return "error"
	case TypeCatalogRequest:
		return "catalog_request"
	case TypeCatalogResponse:
		return "catalog_response"
	case TypePlaylistRequest:
		return "playlist_request"
	case TypeAddSong:
		return "add_song"
	case TypePlaylistUpdate:
		return "playlist_update"
	case TypeOpenPlaylist:
		return "open_playlist"
	case TypePlaylistOpened:
		return "playlist_opened"
	case TypeRemoveSong:
		return "remove_song"
	case TypeFindSong:
		return "find_song"
	case TypeSongResult:
		return "song_result"
	case TypeSongNotFound:
		return "song_not_found"
	case TypeSwitchMode:
		return "switch_mode"
	case TypePlayNext:
		return "play_next"
	case TypeGoBack:
		return "go_back"
	default:
		return fmt.Sprintf("unknown_%d", uint8(t))
	}
}

// IsRequest reports whether t is a code clients send to the server.
func (t MessageType) IsRequest() bool {
	switch t {
	case TypeCatalogRequest, TypePlaylistRequest, TypeAddSong, TypeOpenPlaylist,
		TypeRemoveSong, TypeFindSong, TypeSwitchMode, TypePlayNext, TypeGoBack:
		return true
	}
	return false
}

// TimestampLayout is the envelope timestamp format. Timestamps are always UTC.
const TimestampLayout = "2006-01-02 15:04:05 GMT"

// now is swapped in tests.
var now = time.Now

// Message is a decoded frame: header fields plus the envelope contents.
type Message struct {
	Type       MessageType
	Options    uint8
	Payload    string
	ClientAddr string
	ServerAddr string
	Timestamp  string
	Checksum   uint32
}

// NewMessage builds a message stamped with the current UTC time.
func NewMessage(t MessageType, payload, clientAddr, serverAddr string) *Message {
	return &Message{
		Type:       t,
		Payload:    payload,
		ClientAddr: clientAddr,
		ServerAddr: serverAddr,
		Timestamp:  now().UTC().Format(TimestampLayout),
	}
}

// Time parses the envelope timestamp.
func (m *Message) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, m.Timestamp, time.UTC)
}
