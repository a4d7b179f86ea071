/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logbuffer

import (
	"bytes"
	"testing"
	"time"
)

func TestBufferWrapsOldest(t *testing.T) {
	buf := New(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		buf.Add(LogEntry{Message: msg})
	}

	all := buf.GetAll()
	if len(all) != 3 || buf.Len() != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	for i, want := range []string{"c", "d", "e"} {
		if all[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, all[i].Message, want)
		}
	}

	buf.Clear()
	if buf.Len() != 0 || len(buf.GetAll()) != 0 {
		t.Fatal("buffer not empty after Clear")
	}
}

func TestNewDefaultCapacity(t *testing.T) {
	if got := New(0).Stats().Capacity; got != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", got, DefaultCapacity)
	}
}

func TestQuery(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	buf := New(10)
	buf.Add(LogEntry{Timestamp: base, Level: "info", Message: "client connected", Component: "protocol", SessionID: "s1"})
	buf.Add(LogEntry{Timestamp: base.Add(time.Minute), Level: "warn", Message: "Checksum mismatch", Component: "protocol", SessionID: "s1"})
	buf.Add(LogEntry{Timestamp: base.Add(2 * time.Minute), Level: "info", Message: "client disconnected", Component: "protocol", SessionID: "s2"})
	buf.Add(LogEntry{Timestamp: base.Add(3 * time.Minute), Level: "error", Message: "audit write failed", Component: "audit"})

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{"all", QueryParams{}, []string{"client connected", "Checksum mismatch", "client disconnected", "audit write failed"}},
		{"level", QueryParams{Level: "info"}, []string{"client connected", "client disconnected"}},
		{"component", QueryParams{Component: "audit"}, []string{"audit write failed"}},
		{"session", QueryParams{SessionID: "s1"}, []string{"client connected", "Checksum mismatch"}},
		{"search folds case", QueryParams{Search: "checksum"}, []string{"Checksum mismatch"}},
		{"since", QueryParams{Since: base.Add(2 * time.Minute)}, []string{"client disconnected", "audit write failed"}},
		{"limit keeps newest", QueryParams{Limit: 2}, []string{"client disconnected", "audit write failed"}},
		{"descending", QueryParams{Limit: 2, Descending: true}, []string{"audit write failed", "client disconnected"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buf.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i, msg := range tt.want {
				if got[i].Message != msg {
					t.Errorf("entry %d = %q, want %q", i, got[i].Message, msg)
				}
			}
		})
	}
}

func TestComponentsAndStats(t *testing.T) {
	buf := New(10)
	if stats := buf.Stats(); stats.Total != 0 || stats.Oldest != nil {
		t.Fatalf("empty stats = %+v", stats)
	}

	buf.Add(LogEntry{Level: "info", Component: "protocol"})
	buf.Add(LogEntry{Level: "info", Component: "audit"})
	buf.Add(LogEntry{Level: "warn", Component: "protocol"})
	buf.Add(LogEntry{Level: "warn"})

	comps := buf.Components()
	if len(comps) != 2 || comps[0] != "audit" || comps[1] != "protocol" {
		t.Fatalf("Components() = %v", comps)
	}
	stats := buf.Stats()
	if stats.Total != 4 || stats.ByLevel["info"] != 2 || stats.ByLevel["warn"] != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Oldest == nil || stats.Newest == nil {
		t.Fatal("stats missing time range")
	}
}

func TestWriterCapturesJSON(t *testing.T) {
	buf := New(10)
	var out bytes.Buffer
	w := NewWriter(buf, &out)

	line := []byte(`{"level":"warn","component":"protocol","session_id":"s9","time":1767225600,"peer":"10.0.0.1","message":"framing error"}` + "\n")
	n, err := w.Write(line)
	if err != nil || n != len(line) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if out.String() != string(line) {
		t.Fatalf("fallback got %q", out.String())
	}

	entries := buf.GetAll()
	if len(entries) != 1 {
		t.Fatalf("captured %d entries", len(entries))
	}
	got := entries[0]
	if got.Level != "warn" || got.Component != "protocol" || got.SessionID != "s9" || got.Message != "framing error" {
		t.Fatalf("entry = %+v", got)
	}
	if !got.Timestamp.Equal(time.Unix(1767225600, 0)) {
		t.Errorf("timestamp = %v", got.Timestamp)
	}
	if got.Fields["peer"] != "10.0.0.1" || len(got.Fields) != 1 {
		t.Errorf("fields = %v", got.Fields)
	}
}

func TestWriterSkipsNonJSON(t *testing.T) {
	buf := New(10)
	w := NewWriter(buf, nil)
	if _, err := w.Write([]byte("plain text\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("captured %d entries from plain text", buf.Len())
	}
}
