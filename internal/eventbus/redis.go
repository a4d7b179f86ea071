/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/events"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// RedisBus fans events out to other playlistd instances over Redis pub/sub.
// Local subscribers are always served by an in-process bus; Redis only
// carries events between nodes.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
	local  *events.Bus
	nodeID string
	prefix string

	mu       sync.Mutex
	subs     map[events.EventType]int
	channels map[events.EventType]*redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Circuit breaker state
	useFallback bool
	failCount   int
	maxFails    int
	lastCheck   time.Time
	interval    time.Duration
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Channel names are Prefix + event type.
	Prefix string

	// Connection pooling
	PoolSize     int
	MinIdleConns int

	// Timeouts
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Prefix:        "playlistd.events.",
		PoolSize:      10,
		MinIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// NewRedisBus creates a Redis-backed event bus. If Redis is unreachable the
// bus starts on its in-memory fallback and keeps probing Redis in the
// background.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	rb := &RedisBus{
		client:   client,
		logger:   logger.With().Str("component", "eventbus").Str("backend", "redis").Logger(),
		local:    events.NewBus(),
		nodeID:   nodeID,
		prefix:   cfg.Prefix,
		subs:     make(map[events.EventType]int),
		channels: make(map[events.EventType]*redis.PubSub),
		ctx:      ctx,
		cancel:   cancel,
		maxFails: cfg.MaxFailures,
		interval: cfg.CheckInterval,
	}
	if rb.maxFails <= 0 {
		rb.maxFails = 1
	}
	if rb.interval <= 0 {
		rb.interval = 30 * time.Second
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		rb.logger.Warn().Err(err).Msg("Redis connection failed, using in-memory fallback")
		rb.useFallback = true
		rb.lastCheck = time.Now()
		telemetry.EventBusFallback.WithLabelValues("redis").Set(1)
	} else {
		rb.logger.Info().Str("addr", cfg.Addr).Msg("Redis event bus initialized")
		telemetry.EventBusFallback.WithLabelValues("redis").Set(0)
	}

	rb.wg.Add(1)
	go rb.monitor()

	return rb
}

// Subscribe registers a local subscriber and makes sure this node listens
// for the event type on Redis.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.subs[eventType]++
	if !rb.useFallback {
		if err := rb.listenLocked(eventType); err != nil {
			rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to subscribe on Redis")
			rb.failLocked()
		}
	}
	return sub
}

// listenLocked opens the Redis subscription for eventType if it is not open yet.
func (rb *RedisBus) listenLocked(eventType events.EventType) error {
	if _, exists := rb.channels[eventType]; exists {
		return nil
	}

	pubsub := rb.client.Subscribe(rb.ctx, rb.prefix+string(eventType))

	ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
	defer cancel()
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	rb.channels[eventType] = pubsub
	rb.wg.Add(1)
	go rb.receiveMessages(eventType, pubsub)
	return nil
}

// receiveMessages handles incoming Redis pub/sub messages.
func (rb *RedisBus) receiveMessages(eventType events.EventType, pubsub *redis.PubSub) {
	defer rb.wg.Done()

	ch := pubsub.Channel()

	rb.logger.Debug().Str("event_type", string(eventType)).Msg("started Redis message receiver")

	for {
		select {
		case <-rb.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				rb.mu.Lock()
				current := rb.channels[eventType]
				if current == pubsub {
					// Closed underneath us rather than by Unsubscribe.
					delete(rb.channels, eventType)
					rb.logger.Warn().Str("event_type", string(eventType)).Msg("Redis channel closed")
					rb.failLocked()
				}
				rb.mu.Unlock()
				return
			}

			wire, err := unmarshalMessage([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("failed to unmarshal Redis message")
				continue
			}

			// Local subscribers already saw our own events.
			if wire.NodeID == rb.nodeID {
				continue
			}

			rb.local.Publish(eventType, wire.Payload)

			rb.logger.Debug().
				Str("event_type", string(eventType)).
				Str("source_node", wire.NodeID).
				Msg("delivered Redis event to local subscribers")
		}
	}
}

// Publish delivers payload to local subscribers and, unless the breaker is
// open, to other nodes through Redis.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	rb.mu.Lock()
	fallback := rb.useFallback
	rb.mu.Unlock()
	if fallback {
		return
	}

	data, err := marshalMessage(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Msg("failed to marshal Redis message")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()

	if err := rb.client.Publish(ctx, rb.prefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to Redis")
		rb.mu.Lock()
		rb.failLocked()
		rb.mu.Unlock()
		return
	}

	rb.mu.Lock()
	rb.failCount = 0
	rb.mu.Unlock()
}

// Unsubscribe removes a local subscriber. The Redis subscription for the
// event type is dropped with its last local subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.subs[eventType] > 0 {
		rb.subs[eventType]--
	}
	if rb.subs[eventType] == 0 {
		delete(rb.subs, eventType)
		if pubsub, exists := rb.channels[eventType]; exists {
			delete(rb.channels, eventType)
			_ = pubsub.Close()
			rb.logger.Debug().Str("event_type", string(eventType)).Msg("closed Redis subscription")
		}
	}
}

// Degraded reports whether the bus is running on its in-memory fallback.
func (rb *RedisBus) Degraded() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.useFallback
}

// Close closes the Redis connection and all subscriptions.
func (rb *RedisBus) Close() error {
	rb.logger.Info().Msg("closing Redis event bus")

	rb.cancel()

	rb.mu.Lock()
	for eventType, pubsub := range rb.channels {
		delete(rb.channels, eventType)
		_ = pubsub.Close()
	}
	rb.mu.Unlock()

	rb.wg.Wait()

	if err := rb.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		rb.logger.Error().Err(err).Msg("failed to close Redis client")
		return err
	}

	rb.logger.Info().Msg("Redis event bus closed")
	return nil
}

// failLocked implements circuit breaker logic. rb.mu must be held.
func (rb *RedisBus) failLocked() {
	rb.failCount++

	if rb.failCount >= rb.maxFails && !rb.useFallback {
		rb.logger.Warn().
			Int("fail_count", rb.failCount).
			Msg("Redis failure threshold reached, switching to in-memory fallback")

		rb.useFallback = true
		rb.lastCheck = time.Now()
		telemetry.EventBusFallback.WithLabelValues("redis").Set(1)
	}
}

// monitor retries Redis while the breaker is open.
func (rb *RedisBus) monitor() {
	defer rb.wg.Done()

	ticker := time.NewTicker(rb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rb.ctx.Done():
			return
		case <-ticker.C:
			if err := rb.tryReconnect(); err != nil {
				rb.logger.Debug().Err(err).Msg("Redis reconnect attempt failed")
			}
		}
	}
}

// tryReconnect pings Redis and, on success, closes the breaker and restores
// the subscriptions of every event type that has local subscribers.
func (rb *RedisBus) tryReconnect() error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.useFallback {
		return nil
	}

	if time.Since(rb.lastCheck) < rb.interval {
		return fmt.Errorf("too soon to retry")
	}
	rb.lastCheck = time.Now()

	ctx, cancel := context.WithTimeout(rb.ctx, 5*time.Second)
	defer cancel()

	if err := rb.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis still unavailable: %w", err)
	}

	for eventType := range rb.subs {
		if err := rb.listenLocked(eventType); err != nil {
			return fmt.Errorf("resubscribe %s: %w", eventType, err)
		}
	}

	rb.useFallback = false
	rb.failCount = 0
	telemetry.EventBusFallback.WithLabelValues("redis").Set(0)

	rb.logger.Info().Msg("reconnected to Redis, disabling fallback")

	return nil
}

// wireMessage is the JSON envelope carried between nodes by both
// distributed buses.
type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id,omitempty"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
	})
}

func unmarshalMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}
