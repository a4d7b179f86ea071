/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendsincode/playlistd/internal/logbuffer"
)

func TestLogsNotConfigured(t *testing.T) {
	_, _, h := newTestAPI(t, nil, nil)
	for _, path := range []string{"/api/v1/logs", "/api/v1/logs/stats"} {
		if w := get(t, h, path); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

func TestLogsQuery(t *testing.T) {
	a, _, h := newTestAPI(t, nil, nil)
	buf := logbuffer.New(10)
	a.SetLogBuffer(buf)

	now := time.Now()
	buf.Add(logbuffer.LogEntry{Timestamp: now, Level: "info", Message: "client connected", Component: "protocol", SessionID: "s1"})
	buf.Add(logbuffer.LogEntry{Timestamp: now, Level: "warn", Message: "checksum mismatch", Component: "protocol", SessionID: "s2"})
	buf.Add(logbuffer.LogEntry{Timestamp: now, Level: "info", Message: "catalog loaded", Component: "server"})

	tests := []struct {
		query    string
		wantMsgs []string
	}{
		{"", []string{"catalog loaded", "checksum mismatch", "client connected"}},
		{"?order=asc&limit=2", []string{"checksum mismatch", "catalog loaded"}},
		{"?level=warn", []string{"checksum mismatch"}},
		{"?component=protocol&session_id=s1", []string{"client connected"}},
		{"?search=CATALOG", []string{"catalog loaded"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, h, "/api/v1/logs"+tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var body struct {
				Logs       []logbuffer.LogEntry `json:"logs"`
				Count      int                  `json:"count"`
				Components []string             `json:"components"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Count != len(tt.wantMsgs) {
				t.Fatalf("count = %d, want %d", body.Count, len(tt.wantMsgs))
			}
			for i, msg := range tt.wantMsgs {
				if body.Logs[i].Message != msg {
					t.Errorf("logs[%d] = %q, want %q", i, body.Logs[i].Message, msg)
				}
			}
			if len(body.Components) != 2 {
				t.Errorf("components = %v", body.Components)
			}
		})
	}
}

func TestParseLogParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs?limit=5000&since=2026-01-02T03:04:05Z", nil)
	params := parseLogParams(req)
	if params.Limit != 1000 {
		t.Errorf("Limit = %d, want 1000", params.Limit)
	}
	if params.Since.IsZero() || !params.Descending {
		t.Errorf("params = %+v", params)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/logs?limit=-3&since=yesterday", nil)
	params = parseLogParams(req)
	if params.Limit != 200 || !params.Since.IsZero() {
		t.Errorf("params = %+v", params)
	}
}
