/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"testing"
)

func TestBusDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus()
	updated := bus.Subscribe(EventPlaylistUpdated)
	opened := bus.Subscribe(EventPlaylistOpened)

	bus.Publish(EventPlaylistUpdated, Payload{"song_id": "1"})

	select {
	case got := <-updated:
		if got["song_id"] != "1" {
			t.Fatalf("payload = %v, want song_id=1", got)
		}
	default:
		t.Fatal("subscriber did not receive event")
	}

	select {
	case got := <-opened:
		t.Fatalf("unrelated subscriber received %v", got)
	default:
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNowPlaying)

	for i := 0; i < cap(sub)*2; i++ {
		bus.Publish(EventNowPlaying, Payload{"i": i})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("len(sub) = %d, want %d", len(sub), cap(sub))
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventRestored)
	bus.Unsubscribe(EventRestored, sub)

	if _, ok := <-sub; ok {
		t.Fatal("subscriber channel not closed")
	}

	// Second unsubscribe must not panic on a closed channel.
	bus.Unsubscribe(EventRestored, sub)
	bus.Publish(EventRestored, Payload{})
}

func TestBusPublishConcurrentWithUnsubscribe(t *testing.T) {
	bus := NewBus()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	panics := make(chan any, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panics <- r
				}
			}()
			for {
				select {
				case <-stop:
					return
				default:
					bus.Publish(EventNowPlaying, Payload{"song_id": "1"})
				}
			}
		}()
	}

	for i := 0; i < 20000; i++ {
		sub := bus.Subscribe(EventNowPlaying)
		bus.Unsubscribe(EventNowPlaying, sub)
	}
	close(stop)
	wg.Wait()
	close(panics)

	if r, ok := <-panics; ok {
		t.Fatalf("Publish panicked: %v", r)
	}
}
