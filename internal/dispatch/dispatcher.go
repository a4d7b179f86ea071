/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package dispatch maps decoded request messages onto playlist engine
// operations and renders their results as response payloads.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/events"
	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/playlist"
	"github.com/friendsincode/playlistd/internal/protocol"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// Response is a typed reply ready to be framed.
type Response struct {
	Type    protocol.MessageType
	Payload string
	// Failed is set when the payload carries an error field.
	Failed bool
}

// Dispatcher routes requests by type code. It holds no state of its own.
type Dispatcher struct {
	engine *playlist.Engine
	bus    events.Publisher
	logger zerolog.Logger
}

// New creates a dispatcher. A nil publisher discards events.
func New(engine *playlist.Engine, bus events.Publisher, logger zerolog.Logger) *Dispatcher {
	if bus == nil {
		bus = events.Discard
	}
	return &Dispatcher{
		engine: engine,
		bus:    bus,
		logger: logger.With().Str("component", "dispatch").Logger(),
	}
}

// Dispatch handles one request. Domain failures are rendered into the
// response payload; the returned error is reserved for payloads that cannot
// be rendered at all.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Message) (Response, error) {
	start := time.Now()
	_, span := telemetry.StartDispatchSpan(ctx, req.Type.String())

	d.publishRequest(req)

	resp, err := d.route(req)

	telemetry.EndDispatchSpan(span, resp.Type.String(), resp.Failed, err)
	telemetry.DispatchDuration.WithLabelValues(req.Type.String()).Observe(time.Since(start).Seconds())
	if resp.Failed {
		telemetry.DomainErrorsTotal.WithLabelValues(req.Type.String()).Inc()
	}
	if err != nil {
		return Response{}, err
	}

	d.logger.Debug().
		Str("type", req.Type.String()).
		Str("response", resp.Type.String()).
		Bool("failed", resp.Failed).
		Msg("dispatched request")

	return resp, nil
}

func (d *Dispatcher) route(req *protocol.Message) (Response, error) {
	switch req.Type {
	case protocol.TypeCatalogRequest:
		return d.catalog()
	case protocol.TypePlaylistRequest:
		return d.playlist()
	case protocol.TypeAddSong:
		return d.addSong(req.Payload)
	case protocol.TypeOpenPlaylist:
		return d.openPlaylist()
	case protocol.TypeRemoveSong:
		return d.removeSong(req.Payload)
	case protocol.TypeFindSong:
		return d.findSong(req.Payload)
	case protocol.TypeSwitchMode:
		return d.switchMode(req)
	case protocol.TypePlayNext:
		return d.playNext()
	case protocol.TypeGoBack:
		return d.goBack()
	default:
		return d.unsupported(req.Type)
	}
}

func (d *Dispatcher) catalog() (Response, error) {
	return respond(protocol.TypeCatalogResponse, d.engine.Catalog(), false)
}

func (d *Dispatcher) playlist() (Response, error) {
	songs := d.engine.Playlist()
	if len(songs) == 0 {
		return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{
			UpdatedPlaylist: songs,
			Error:           "No playlist found or playlist is empty.",
		}, true)
	}
	return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{UpdatedPlaylist: songs}, false)
}

func (d *Dispatcher) addSong(id string) (Response, error) {
	songs, err := d.engine.AddSong(id)
	switch {
	case errors.Is(err, playlist.ErrDuplicateSong):
		return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{
			UpdatedPlaylist: songs,
			Error:           "Song is already in the playlist.",
		}, true)
	case err != nil:
		return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{Error: "Invalid song ID."}, true)
	}

	d.publishPlaylist("add", id, songs)
	return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{
		Success:         fmt.Sprintf("Song %s added to the playlist.", id),
		UpdatedPlaylist: songs,
	}, false)
}

func (d *Dispatcher) openPlaylist() (Response, error) {
	d.engine.OpenNewPlaylist()
	d.publish(events.EventPlaylistOpened, events.Payload{})
	telemetry.PlaylistSize.Set(0)
	return Response{Type: protocol.TypePlaylistOpened, Payload: "New playlist opened."}, nil
}

func (d *Dispatcher) removeSong(id string) (Response, error) {
	songs, err := d.engine.RemoveSong(id)
	if err != nil {
		return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{
			Error: fmt.Sprintf("Song ID %s not found in the playlist.", id),
		}, true)
	}

	d.publishPlaylist("remove", id, songs)
	return respond(protocol.TypePlaylistUpdate, protocol.PlaylistUpdate{
		Success:         fmt.Sprintf("Song %s removed from the playlist.", id),
		UpdatedPlaylist: songs,
	}, false)
}

// findSong answers with TypeSongNotFound rather than TypePlaylistUpdate on
// failure; clients key off both codes.
func (d *Dispatcher) findSong(id string) (Response, error) {
	song, err := d.engine.FindSong(id)
	switch {
	case errors.Is(err, playlist.ErrEmptyPlaylist):
		return respond(protocol.TypeSongNotFound, protocol.ErrorPayload{
			Error: "No playlist found or playlist is empty.",
		}, true)
	case err != nil:
		return respond(protocol.TypeSongNotFound, protocol.ErrorPayload{
			Error: fmt.Sprintf("Song with ID %s not found.", id),
		}, true)
	}
	return respond(protocol.TypeSongResult, song, false)
}

func (d *Dispatcher) switchMode(req *protocol.Message) (Response, error) {
	invalid := protocol.PlayModeResponse{Error: "Invalid play mode."}

	body, err := req.DecodePlayModeRequest()
	if err != nil {
		return respond(protocol.TypeSongResult, invalid, true)
	}
	mode, err := playlist.ParseSubmode(body.Mode)
	if err != nil {
		return respond(protocol.TypeSongResult, invalid, true)
	}

	res, err := d.engine.SwitchToPlayMode(mode)
	d.publish(events.EventModeChanged, events.Payload{"mode": string(mode)})
	if err != nil {
		return respond(protocol.TypeSongResult, protocol.PlayModeResponse{
			PlayMode: string(res.Mode),
			Playlist: res.Queue,
			Error:    "Playlist is empty.",
		}, true)
	}

	d.publishNowPlaying(res.NowPlaying)
	song := res.NowPlaying.Song
	return respond(protocol.TypeSongResult, protocol.PlayModeResponse{
		PlayMode:   string(res.Mode),
		Playlist:   res.Queue,
		NowPlaying: &song,
	}, false)
}

func (d *Dispatcher) playNext() (Response, error) {
	np, err := d.engine.PlayNext()
	if err != nil {
		return respond(protocol.TypeSongResult, protocol.PlayNextResponse{Error: "Playlist is empty."}, true)
	}

	d.publishNowPlaying(np)
	song := np.Song
	return respond(protocol.TypeSongResult, protocol.PlayNextResponse{
		NowPlaying: &song,
		Message:    np.Message,
	}, false)
}

func (d *Dispatcher) goBack() (Response, error) {
	song, err := d.engine.GoBack()
	if err != nil {
		return respond(protocol.TypeSongResult, protocol.GoBackResponse{Error: "No previous song to restore."}, true)
	}

	d.publish(events.EventRestored, songPayload(song))
	return respond(protocol.TypeSongResult, protocol.GoBackResponse{
		Success:      "Restored the previous song.",
		RestoredSong: &song,
	}, false)
}

func (d *Dispatcher) unsupported(t protocol.MessageType) (Response, error) {
	d.logger.Warn().Uint8("type", uint8(t)).Msg("unsupported message type")
	return respond(protocol.TypeError, protocol.ErrorPayload{
		Error: fmt.Sprintf("Unsupported message type %d.", uint8(t)),
	}, true)
}

func respond(t protocol.MessageType, v any, failed bool) (Response, error) {
	payload, err := protocol.MarshalPayload(v)
	if err != nil {
		return Response{Type: t, Failed: failed}, err
	}
	return Response{Type: t, Payload: payload, Failed: failed}, nil
}

func (d *Dispatcher) publish(eventType events.EventType, payload events.Payload) {
	d.bus.Publish(eventType, payload)
	telemetry.EventsPublishedTotal.WithLabelValues(string(eventType)).Inc()
}

func (d *Dispatcher) publishRequest(req *protocol.Message) {
	d.publish(events.EventRequest, events.Payload{
		"type":      req.Type.String(),
		"type_code": int(req.Type),
		"payload":   req.Payload,
		"client_ip": req.ClientAddr,
		"server_ip": req.ServerAddr,
		"timestamp": req.Timestamp,
		"checksum":  int64(req.Checksum),
	})
}

func (d *Dispatcher) publishPlaylist(action, id string, songs []models.Song) {
	telemetry.PlaylistSize.Set(float64(len(songs)))
	d.publish(events.EventPlaylistUpdated, events.Payload{
		"action":  action,
		"song_id": id,
		"size":    len(songs),
	})
}

func (d *Dispatcher) publishNowPlaying(np playlist.NowPlaying) {
	payload := songPayload(np.Song)
	payload["message"] = np.Message
	d.publish(events.EventNowPlaying, payload)
}

func songPayload(s models.Song) events.Payload {
	return events.Payload{
		"song_id":  s.ID,
		"title":    s.Title,
		"artist":   s.Artist,
		"album":    s.Album,
		"duration": string(s.Duration),
	}
}
