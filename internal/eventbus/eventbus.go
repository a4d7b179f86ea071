/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides the distributed implementations of events.Broker.
package eventbus

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/config"
	"github.com/friendsincode/playlistd/internal/events"
)

// Bus is an events.Broker that owns resources.
type Bus interface {
	events.Broker
	Close() error
}

type memoryBus struct {
	*events.Bus
}

func (memoryBus) Close() error { return nil }

// Open builds the bus selected by cfg.EventBus.
func Open(cfg *config.Config, logger zerolog.Logger) (Bus, error) {
	nodeID := NodeID(cfg.InstanceID)

	switch cfg.EventBus {
	case config.EventBusMemory, "":
		return memoryBus{events.NewBus()}, nil
	case config.EventBusRedis:
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return NewRedisBus(rc, nodeID, logger), nil
	case config.EventBusNATS:
		nc := DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		return NewNATSBus(nc, nodeID, logger), nil
	}
	return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
}

// NodeID returns instanceID, or hostname plus a random suffix when unset.
func NodeID(instanceID string) string {
	if instanceID != "" {
		return instanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "playlistd"
	}
	return host + "-" + uuid.NewString()[:8]
}
