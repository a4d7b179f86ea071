/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/playlistd/internal/events"
	"github.com/friendsincode/playlistd/internal/models"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// actions maps the recorded event types to their audit action.
var actions = map[events.EventType]models.AuditAction{
	events.EventRequest:         models.AuditActionRequest,
	events.EventPlaylistUpdated: models.AuditActionPlaylistUpdate,
	events.EventPlaylistOpened:  models.AuditActionPlaylistOpen,
	events.EventModeChanged:     models.AuditActionPlayModeChange,
	events.EventRestored:        models.AuditActionPlaylistRestore,
}

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    events.Broker
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus events.Broker, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

type subscription struct {
	eventType events.EventType
	ch        events.Subscriber
}

// Start subscribes to the audited events and writes an entry for each until
// ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	entries := make(chan models.AuditLog, 64)
	subs := make([]subscription, 0, len(actions))
	for eventType := range actions {
		subs = append(subs, subscription{eventType: eventType, ch: s.bus.Subscribe(eventType)})
	}
	defer func() {
		for _, sub := range subs {
			s.bus.Unsubscribe(sub.eventType, sub.ch)
		}
	}()

	// One forwarder per subscription funnels into entries.
	for _, sub := range subs {
		go func(sub subscription) {
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub.ch:
					if !ok {
						return
					}
					select {
					case entries <- entryFromPayload(actions[sub.eventType], payload):
					case <-ctx.Done():
						return
					}
				}
			}
		}(sub)
	}

	s.logger.Info().Int("event_types", len(subs)).Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case entry := <-entries:
			if err := s.Log(ctx, &entry); err != nil {
				s.logger.Error().Err(err).
					Str("action", string(entry.Action)).
					Msg("failed to log audit entry")
			}
		}
	}
}

// entryFromPayload builds an audit entry from an event payload. Payloads that
// crossed a distributed bus carry JSON numbers as float64.
func entryFromPayload(action models.AuditAction, payload events.Payload) models.AuditLog {
	now := time.Now().UTC()
	entry := models.AuditLog{
		ID:        uuid.NewString(),
		Timestamp: now,
		Action:    action,
		Details:   make(map[string]any),
		CreatedAt: now,
	}

	for k, v := range payload {
		switch k {
		case "type_code":
			entry.MessageType = toInt(v)
		case "payload":
			entry.Payload, _ = v.(string)
		case "client_ip":
			entry.ClientIP, _ = v.(string)
		case "server_ip":
			entry.ServerIP, _ = v.(string)
		case "timestamp":
			entry.SentAt, _ = v.(string)
		case "checksum":
			entry.Checksum = int64(toInt(v))
		default:
			entry.Details[k] = v
		}
	}
	return entry
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.Timestamp
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		telemetry.AuditWritesTotal.WithLabelValues("error").Inc()
		return err
	}
	telemetry.AuditWritesTotal.WithLabelValues("ok").Inc()

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	Action      *models.AuditAction
	MessageType *int
	ClientIP    *string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int
	Offset      int
}

// Query retrieves audit logs with filters, most recent first, along with the
// total number of matching rows.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.MessageType != nil {
		query = query.Where("message_type = ?", *filters.MessageType)
	}
	if filters.ClientIP != nil {
		query = query.Where("client_ip = ?", *filters.ClientIP)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
