/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent process log lines in memory so the
// side HTTP server can serve them without a log shipper.
package logbuffer

import (
	"encoding/json"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 5000

// LogEntry is one captured log line.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-size ring of log entries, safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	entries  []LogEntry
	capacity int
	head     int
	count    int
}

// New creates a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, overwriting the oldest one when full.
func (b *Buffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = entry
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// GetAll returns every buffered entry, oldest first.
func (b *Buffer) GetAll() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]LogEntry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		result[i] = b.entries[(start+i)%b.capacity]
	}
	return result
}

// QueryParams filters Query results. Zero values match everything.
type QueryParams struct {
	Level      string
	Component  string
	SessionID  string
	Search     string // case-insensitive substring of the message
	Since      time.Time
	Limit      int
	Descending bool
}

// Query returns entries matching params. Limit keeps the newest entries.
func (b *Buffer) Query(params QueryParams) []LogEntry {
	search := strings.ToLower(params.Search)

	filtered := make([]LogEntry, 0)
	for _, entry := range b.GetAll() {
		if params.Level != "" && entry.Level != params.Level {
			continue
		}
		if params.Component != "" && entry.Component != params.Component {
			continue
		}
		if params.SessionID != "" && entry.SessionID != params.SessionID {
			continue
		}
		if !params.Since.IsZero() && entry.Timestamp.Before(params.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(entry.Message), search) {
			continue
		}
		filtered = append(filtered, entry)
	}

	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[len(filtered)-params.Limit:]
	}
	if params.Descending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}
	return filtered
}

// Components lists the distinct component names seen, sorted.
func (b *Buffer) Components() []string {
	seen := make(map[string]struct{})
	for _, entry := range b.GetAll() {
		if entry.Component != "" {
			seen[entry.Component] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes the buffer contents.
type Stats struct {
	Total    int            `json:"total"`
	Capacity int            `json:"capacity"`
	ByLevel  map[string]int `json:"by_level"`
	Oldest   *time.Time     `json:"oldest,omitempty"`
	Newest   *time.Time     `json:"newest,omitempty"`
}

// Stats counts entries per level.
func (b *Buffer) Stats() Stats {
	all := b.GetAll()
	stats := Stats{
		Total:    len(all),
		Capacity: b.capacity,
		ByLevel:  make(map[string]int),
	}
	for _, entry := range all {
		stats.ByLevel[entry.Level]++
	}
	if len(all) > 0 {
		oldest, newest := all[0].Timestamp, all[len(all)-1].Timestamp
		stats.Oldest, stats.Newest = &oldest, &newest
	}
	return stats
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]LogEntry, b.capacity)
	b.head = 0
	b.count = 0
}

// Writer captures zerolog JSON lines into a Buffer and passes every write
// through to an optional fallback writer.
type Writer struct {
	buffer   *Buffer
	fallback io.Writer
}

// NewWriter creates a capturing writer.
func NewWriter(buffer *Buffer, fallback io.Writer) *Writer {
	return &Writer{buffer: buffer, fallback: fallback}
}

// Write implements io.Writer. Lines that are not JSON objects are passed
// through without being captured.
func (w *Writer) Write(p []byte) (int, error) {
	if entry, ok := parseEntry(p); ok {
		w.buffer.Add(entry)
	}
	if w.fallback != nil {
		return w.fallback.Write(p)
	}
	return len(p), nil
}

func parseEntry(p []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{Timestamp: time.Now().UTC()}
	if v, ok := raw["level"].(string); ok {
		entry.Level = v
		delete(raw, "level")
	}
	if v, ok := raw["message"].(string); ok {
		entry.Message = v
		delete(raw, "message")
	}
	if v, ok := raw["component"].(string); ok {
		entry.Component = v
		delete(raw, "component")
	}
	if v, ok := raw["session_id"].(string); ok {
		entry.SessionID = v
		delete(raw, "session_id")
	}
	switch ts := raw["time"].(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Timestamp = t
		}
	}
	delete(raw, "time")

	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}
