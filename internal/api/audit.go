/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/playlistd/internal/audit"
	"github.com/friendsincode/playlistd/internal/models"
)

// auditLogResponse is the JSON response for an audit log entry.
type auditLogResponse struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Action      string         `json:"action"`
	MessageType int            `json:"message_type,omitempty"`
	Payload     string         `json:"payload,omitempty"`
	ClientIP    string         `json:"client_ip,omitempty"`
	ServerIP    string         `json:"server_ip,omitempty"`
	SentAt      string         `json:"sent_at,omitempty"`
	Checksum    int64          `json:"checksum,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// handleAuditList returns a paginated list of audit logs.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.auditSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_not_configured")
		return
	}

	filters := parseAuditFilters(r)

	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit logs")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}

	response := make([]auditLogResponse, len(logs))
	for i, log := range logs {
		response[i] = toAuditLogResponse(log)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit_logs": response,
		"total":      total,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}

// parseAuditFilters extracts query filters from the request.
func parseAuditFilters(r *http.Request) audit.QueryFilters {
	q := r.URL.Query()
	filters := audit.QueryFilters{
		Limit:  100,
		Offset: 0,
	}

	if action := q.Get("action"); action != "" {
		a := models.AuditAction(action)
		filters.Action = &a
	}

	if mt := q.Get("message_type"); mt != "" {
		if n, err := strconv.Atoi(mt); err == nil {
			filters.MessageType = &n
		}
	}

	if clientIP := q.Get("client_ip"); clientIP != "" {
		filters.ClientIP = &clientIP
	}

	if startTime := q.Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filters.StartTime = &t
		}
	}

	if endTime := q.Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filters.EndTime = &t
		}
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 1000 {
			filters.Limit = n
		}
	}

	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters
}

// toAuditLogResponse converts an AuditLog model to a response struct.
func toAuditLogResponse(log models.AuditLog) auditLogResponse {
	return auditLogResponse{
		ID:          log.ID,
		Timestamp:   log.Timestamp,
		Action:      string(log.Action),
		MessageType: log.MessageType,
		Payload:     log.Payload,
		ClientIP:    log.ClientIP,
		ServerIP:    log.ServerIP,
		SentAt:      log.SentAt,
		Checksum:    log.Checksum,
		Details:     log.Details,
	}
}
