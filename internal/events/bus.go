/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// EventRequest is published for every decoded request envelope.
	EventRequest EventType = "playlist.request"

	EventPlaylistUpdated EventType = "playlist.updated"
	EventPlaylistOpened  EventType = "playlist.opened"
	EventNowPlaying      EventType = "playlist.now_playing"
	EventModeChanged     EventType = "playlist.mode_changed"
	EventRestored        EventType = "playlist.restored"
)

// AllEventTypes lists every event type, in publication order of a typical
// session. Used by fan-out consumers that want everything.
var AllEventTypes = []EventType{
	EventRequest,
	EventPlaylistUpdated,
	EventPlaylistOpened,
	EventNowPlaying,
	EventModeChanged,
	EventRestored,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is the write side of a bus. Publish must not block.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Broker is implemented by the in-process bus and the distributed buses.
type Broker interface {
	Publisher
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Full subscribers miss the event.
// Sends happen under the read lock; Unsubscribe closes channels only under
// the write lock.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes it. Unknown subscribers are
// ignored.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Discard is a Publisher that drops everything.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(EventType, Payload) {}
