/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/events"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// NATSBus fans events out to other playlistd instances over NATS core
// pub/sub. Like RedisBus, local subscribers are served in-process.
type NATSBus struct {
	conn   *nats.Conn
	logger zerolog.Logger
	local  *events.Bus
	nodeID string
	prefix string

	mu   sync.Mutex
	subs map[events.EventType]int
	nsub map[events.EventType]*nats.Subscription
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string

	// Subjects are Prefix + event type.
	Prefix string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Prefix:        "playlistd.events.",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus creates a NATS-backed event bus. If the initial connection
// fails the bus runs on its in-memory fallback for the life of the process;
// once connected, the NATS client reconnects on its own.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) *NATSBus {
	nb := &NATSBus{
		logger: logger.With().Str("component", "eventbus").Str("backend", "nats").Logger(),
		local:  events.NewBus(),
		nodeID: nodeID,
		prefix: cfg.Prefix,
		subs:   make(map[events.EventType]int),
		nsub:   make(map[events.EventType]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name("playlistd-" + nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("NATS disconnected, events stay local")
			telemetry.EventBusFallback.WithLabelValues("nats").Set(1)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
			telemetry.EventBusFallback.WithLabelValues("nats").Set(0)
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-memory fallback")
		telemetry.EventBusFallback.WithLabelValues("nats").Set(1)
		return nb
	}

	nb.conn = conn
	telemetry.EventBusFallback.WithLabelValues("nats").Set(0)
	nb.logger.Info().Str("url", conn.ConnectedUrl()).Msg("NATS event bus initialized")
	return nb
}

// Subscribe registers a local subscriber and makes sure this node listens
// for the event type on NATS.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()

	nb.subs[eventType]++
	if nb.conn == nil {
		return sub
	}
	if _, exists := nb.nsub[eventType]; exists {
		return sub
	}

	s, err := nb.conn.Subscribe(nb.prefix+string(eventType), func(m *nats.Msg) {
		nb.handle(eventType, m)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to subscribe on NATS")
		return sub
	}
	nb.nsub[eventType] = s
	return sub
}

func (nb *NATSBus) handle(eventType events.EventType, m *nats.Msg) {
	wire, err := unmarshalMessage(m.Data)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
		return
	}
	if wire.NodeID == nb.nodeID {
		return
	}
	nb.local.Publish(eventType, wire.Payload)
}

// Publish delivers payload to local subscribers and to other nodes.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}

	data, err := json.Marshal(wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nb.nodeID,
		MessageID: uuid.NewString(),
	})
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}

	// While reconnecting the client buffers publishes.
	if err := nb.conn.Publish(nb.prefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a local subscriber. The NATS subscription for the
// event type is dropped with its last local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)

	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.subs[eventType] > 0 {
		nb.subs[eventType]--
	}
	if nb.subs[eventType] == 0 {
		delete(nb.subs, eventType)
		if s, exists := nb.nsub[eventType]; exists {
			delete(nb.nsub, eventType)
			if err := s.Unsubscribe(); err != nil {
				nb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("NATS unsubscribe failed")
			}
		}
	}
}

// Degraded reports whether events currently stay on this node.
func (nb *NATSBus) Degraded() bool {
	return nb.conn == nil || !nb.conn.IsConnected()
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	nb.logger.Info().Msg("closing NATS event bus")
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}
