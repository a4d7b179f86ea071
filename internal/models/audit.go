/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants, one per recorded event type.
const (
	AuditActionRequest         AuditAction = "protocol.request"
	AuditActionPlaylistUpdate  AuditAction = "playlist.update"
	AuditActionPlaylistOpen    AuditAction = "playlist.open"
	AuditActionPlayModeChange  AuditAction = "playlist.mode_change"
	AuditActionPlaylistRestore AuditAction = "playlist.restore"
)

// AuditLog records one request envelope or playlist mutation.
type AuditLog struct {
	ID          string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp   time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	Action      AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	MessageType int            `gorm:"index:idx_audit_message_type" json:"message_type,omitempty"`
	Payload     string         `gorm:"type:text" json:"payload,omitempty"`
	ClientIP    string         `gorm:"type:varchar(45);index:idx_audit_client" json:"client_ip,omitempty"`
	ServerIP    string         `gorm:"type:varchar(45)" json:"server_ip,omitempty"`
	SentAt      string         `gorm:"type:varchar(32)" json:"sent_at,omitempty"` // envelope timestamp as sent
	Checksum    int64          `json:"checksum,omitempty"`
	Details     map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
