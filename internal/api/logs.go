/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/playlistd/internal/logbuffer"
)

// handleLogs returns recent process log lines, newest first.
func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_not_configured")
		return
	}

	params := parseLogParams(r)
	entries := a.logs.Query(params)

	writeJSON(w, http.StatusOK, map[string]any{
		"logs":       entries,
		"count":      len(entries),
		"components": a.logs.Components(),
	})
}

func (a *API) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "logs_not_configured")
		return
	}
	writeJSON(w, http.StatusOK, a.logs.Stats())
}

func parseLogParams(r *http.Request) logbuffer.QueryParams {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		SessionID:  q.Get("session_id"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: true,
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = min(n, 1000)
		}
	}
	if since := q.Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			params.Since = t
		}
	}
	if q.Get("order") == "asc" {
		params.Descending = false
	}
	return params
}
