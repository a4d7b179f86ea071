/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/playlistd/internal/telemetry"
)

const _startTime = "telemetry:start_time"

// RegisterCallbacks registers telemetry callbacks for GORM operations.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		operation string
		processor interface {
			Before(name string) *gorm.Callback
			After(name string) *gorm.Callback
		}
	}{
		{"query", cb.Query()},
		{"create", cb.Create()},
		{"update", cb.Update()},
		{"delete", cb.Delete()},
	}

	for _, h := range hooks {
		if err := h.processor.Before("gorm:"+h.operation).Register("telemetry:before_"+h.operation, beforeCallback); err != nil {
			return err
		}
		if err := h.processor.After("gorm:"+h.operation).Register("telemetry:after_"+h.operation, afterCallback(h.operation)); err != nil {
			return err
		}
	}
	return nil
}

// beforeCallback records the start time before a database operation.
func beforeCallback(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

// afterCallback creates a callback that records metrics after a database operation.
func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(_startTime)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation).Inc()
		}
	}
}

// UpdateConnectionMetrics updates connection pool metrics.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))
}
