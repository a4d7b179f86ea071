/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist holds the single, process-wide playlist state machine.
package playlist

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/friendsincode/playlistd/internal/models"
)

// Submode governs how the design queue is built and advanced.
type Submode string

const (
	SubmodeNone    Submode = ""
	SubmodeDefault Submode = "default"
	SubmodeShuffle Submode = "shuffle"
	SubmodeLoop    Submode = "loop"
)

// ParseSubmode validates a mode name received from a client.
func ParseSubmode(s string) (Submode, error) {
	switch m := Submode(s); m {
	case SubmodeDefault, SubmodeShuffle, SubmodeLoop:
		return m, nil
	}
	return SubmodeNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Domain errors. None of them is fatal to a connection.
var (
	ErrUnknownSong       = errors.New("song is not in the catalog")
	ErrDuplicateSong     = errors.New("song is already in the playlist")
	ErrSongNotInPlaylist = errors.New("song is not in the playlist")
	ErrEmptyPlaylist     = errors.New("playlist is empty")
	ErrEmptyHistory      = errors.New("no previous song to restore")
	ErrInvalidMode       = errors.New("invalid play mode")
	ErrDuplicateCatalog  = errors.New("duplicate catalog id")
)

// NowPlaying is the result of advancing the design queue.
type NowPlaying struct {
	Song    models.Song
	Message string
}

// PlayModeResult is the result of switching submode.
type PlayModeResult struct {
	Mode Submode
	// Queue is the rebuilt design queue, captured before advancing.
	Queue      []models.Song
	NowPlaying NowPlaying
}

// Engine owns the catalog, active playlist, design queue, restore queue and
// history. All methods are safe for concurrent use: mutations are serialized
// behind a write lock and snapshots share a read lock. No method does I/O.
type Engine struct {
	mu sync.RWMutex

	catalog []models.Song
	index   map[string]int

	active  []models.Song
	design  []models.Song
	restore []models.Song
	history []models.Song
	submode Submode

	rng *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used for shuffle.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = r
	}
}

// NewEngine creates the engine over a read-only catalog. Catalog ids must be
// unique.
func NewEngine(catalog []models.Song, opts ...Option) (*Engine, error) {
	e := &Engine{
		catalog: slices.Clone(catalog),
		index:   make(map[string]int, len(catalog)),
	}
	for i, s := range e.catalog {
		if _, dup := e.index[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateCatalog, s.ID)
		}
		e.index[s.ID] = i
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return e, nil
}

// Catalog returns the full catalog in load order.
func (e *Engine) Catalog() []models.Song {
	return snapshot(e.catalog)
}

// Playlist returns the active playlist. The result is never nil.
func (e *Engine) Playlist() []models.Song {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot(e.active)
}

// DesignQueue returns the current design queue.
func (e *Engine) DesignQueue() []models.Song {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot(e.design)
}

// RestoreQueue returns the songs go-back has restored, most recent first.
func (e *Engine) RestoreQueue() []models.Song {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot(e.restore)
}

// History returns played songs, oldest first.
func (e *Engine) History() []models.Song {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshot(e.history)
}

// Submode returns the current submode.
func (e *Engine) Submode() Submode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.submode
}

// State is a consistent copy of the whole engine, taken under one lock.
type State struct {
	Submode      Submode
	Playlist     []models.Song
	DesignQueue  []models.Song
	RestoreQueue []models.Song
	History      []models.Song
	CatalogSize  int
}

// State returns every queue and the submode as of a single instant.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return State{
		Submode:      e.submode,
		Playlist:     snapshot(e.active),
		DesignQueue:  snapshot(e.design),
		RestoreQueue: snapshot(e.restore),
		History:      snapshot(e.history),
		CatalogSize:  len(e.catalog),
	}
}

// AddSong appends a catalog song to the active playlist and design queue.
// The returned playlist reflects the state after the call, also on
// ErrDuplicateSong.
func (e *Engine) AddSong(id string) ([]models.Song, error) {
	i, ok := e.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSong, id)
	}
	song := e.catalog[i]

	e.mu.Lock()
	defer e.mu.Unlock()

	if contains(e.active, id) {
		return snapshot(e.active), fmt.Errorf("%w: %q", ErrDuplicateSong, id)
	}
	e.active = append(e.active, song)
	e.design = append(e.design, song)
	return snapshot(e.active), nil
}

// RemoveSong drops a song from the active playlist. It also leaves the design
// and restore queues so the design queue stays a subset of the playlist.
func (e *Engine) RemoveSong(id string) ([]models.Song, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !contains(e.active, id) {
		return nil, fmt.Errorf("%w: %q", ErrSongNotInPlaylist, id)
	}
	e.active = without(e.active, id)
	e.design = without(e.design, id)
	e.restore = without(e.restore, id)
	return snapshot(e.active), nil
}

// FindSong looks a song up in the active playlist.
func (e *Engine) FindSong(id string) (models.Song, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.active) == 0 {
		return models.Song{}, ErrEmptyPlaylist
	}
	for _, s := range e.active {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Song{}, fmt.Errorf("%w: %q", ErrSongNotInPlaylist, id)
}

// OpenNewPlaylist discards the active playlist and everything derived from it.
func (e *Engine) OpenNewPlaylist() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = nil
	e.design = nil
	e.restore = nil
	e.history = nil
	e.submode = SubmodeNone
}

// SwitchToPlayMode rebuilds the design queue for mode and advances to its
// first song.
//
//   - default keeps the design queue order, minus songs already played.
//   - shuffle takes the playlist songs not yet played in uniform random order.
//   - loop takes the whole playlist; play-next rotates instead of consuming.
//
// The submode is switched even when the rebuilt queue is empty, in which case
// ErrEmptyPlaylist is returned alongside the mode.
func (e *Engine) SwitchToPlayMode(mode Submode) (PlayModeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch mode {
	case SubmodeDefault:
		e.design = e.unplayed(e.design)
	case SubmodeShuffle:
		queue := e.unplayed(e.active)
		e.rng.Shuffle(len(queue), func(i, j int) {
			queue[i], queue[j] = queue[j], queue[i]
		})
		e.design = queue
	case SubmodeLoop:
		e.design = slices.Clone(e.active)
	default:
		return PlayModeResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	e.submode = mode

	result := PlayModeResult{Mode: mode, Queue: snapshot(e.design)}
	np, err := e.advance()
	if err != nil {
		return result, err
	}
	result.NowPlaying = np
	return result, nil
}

// PlayNext advances the design queue under the current submode.
func (e *Engine) PlayNext() (NowPlaying, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advance()
}

// GoBack moves the most recently played song from history to the front of
// the restore queue. The restore queue is separate from the design queue, so
// the restored song is not what the next PlayNext serves.
func (e *Engine) GoBack() (models.Song, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.history) == 0 {
		return models.Song{}, ErrEmptyHistory
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.restore = slices.Insert(e.restore, 0, last)
	return last, nil
}

// advance pops the head of the design queue. Loop re-appends it at the back;
// every other submode records it in history. Callers hold e.mu.
func (e *Engine) advance() (NowPlaying, error) {
	if len(e.design) == 0 {
		return NowPlaying{}, ErrEmptyPlaylist
	}
	song := e.design[0]
	e.design = slices.Delete(e.design, 0, 1)

	if e.submode == SubmodeLoop {
		e.design = append(e.design, song)
	} else {
		e.history = append(e.history, song)
	}

	return NowPlaying{
		Song:    song,
		Message: fmt.Sprintf("Now playing: %s by %s", song.Title, song.Artist),
	}, nil
}

// unplayed returns the songs of src that are not in history. Callers hold e.mu.
func (e *Engine) unplayed(src []models.Song) []models.Song {
	out := make([]models.Song, 0, len(src))
	for _, s := range src {
		if !contains(e.history, s.ID) {
			out = append(out, s)
		}
	}
	return out
}

func contains(songs []models.Song, id string) bool {
	return slices.ContainsFunc(songs, func(s models.Song) bool { return s.ID == id })
}

func without(songs []models.Song, id string) []models.Song {
	return slices.DeleteFunc(slices.Clone(songs), func(s models.Song) bool { return s.ID == id })
}

func snapshot(songs []models.Song) []models.Song {
	out := make([]models.Song, len(songs))
	copy(out, songs)
	return out
}
