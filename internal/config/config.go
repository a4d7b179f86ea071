/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how playlist events leave the process.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	Bind        string
	Port        int

	// Catalog source. CatalogPath may be a local .json/.yaml/.yml file or an
	// s3://bucket/key URL.
	CatalogPath   string
	CatalogFromDB bool

	// Database is optional; an empty DSN disables the audit log and the
	// database catalog.
	DBBackend DatabaseBackend
	DBDSN     string

	// Side HTTP server (health, metrics, events). Empty disables it.
	MetricsBind string
	// JWTSecret, when set, guards the operator endpoints of the side server.
	JWTSecret string

	EventBus      EventBusBackend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	NATSURL       string
	InstanceID    string

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Endpoint        string // For S3-compatible services (MinIO, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"PLAYLISTD_ENV"}, "development"),
		Bind:        getEnvAny([]string{"PLAYLISTD_BIND", "PLAYLISTD_HOST"}, "localhost"),
		Port:        getEnvIntAny([]string{"PLAYLISTD_PORT"}, 12000),

		CatalogPath:   getEnvAny([]string{"PLAYLISTD_CATALOG_PATH", "PLAYLISTD_CATALOG"}, "catalog.json"),
		CatalogFromDB: getEnvBoolAny([]string{"PLAYLISTD_CATALOG_FROM_DB"}, false),

		DBBackend: DatabaseBackend(getEnvAny([]string{"PLAYLISTD_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"PLAYLISTD_DB_DSN"}, ""),

		MetricsBind: getEnvAny([]string{"PLAYLISTD_METRICS_BIND"}, "127.0.0.1:9000"),
		JWTSecret:   getEnvAny([]string{"PLAYLISTD_JWT_SECRET"}, ""),

		EventBus:      EventBusBackend(getEnvAny([]string{"PLAYLISTD_EVENTBUS"}, string(EventBusMemory))),
		RedisAddr:     getEnvAny([]string{"PLAYLISTD_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"PLAYLISTD_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"PLAYLISTD_REDIS_DB", "REDIS_DB"}, 0),
		NATSURL:       getEnvAny([]string{"PLAYLISTD_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		InstanceID:    getEnvAny([]string{"PLAYLISTD_INSTANCE_ID"}, ""),

		S3AccessKeyID:     getEnvAny([]string{"PLAYLISTD_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"PLAYLISTD_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"PLAYLISTD_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:        getEnvAny([]string{"PLAYLISTD_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"PLAYLISTD_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"PLAYLISTD_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"PLAYLISTD_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"PLAYLISTD_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PLAYLISTD_PORT must be between 1 and 65535, got %d", c.Port)
	}

	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}

	if c.CatalogFromDB && c.DBDSN == "" {
		return fmt.Errorf("PLAYLISTD_DB_DSN must be provided when PLAYLISTD_CATALOG_FROM_DB is set")
	}

	if !c.CatalogFromDB && strings.TrimSpace(c.CatalogPath) == "" {
		return fmt.Errorf("PLAYLISTD_CATALOG_PATH must be provided")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("PLAYLISTD_JWT_SECRET must be at least 16 bytes")
	}

	switch c.EventBus {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return fmt.Errorf("unsupported event bus %q", c.EventBus)
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("PLAYLISTD_TRACING_SAMPLE_RATE must be between 0 and 1, got %v", c.TracingSampleRate)
	}

	return nil
}

// Addr returns the protocol listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// DatabaseEnabled reports whether a database DSN is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.DBDSN != ""
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"TRACING_ENABLED":     "use PLAYLISTD_TRACING_ENABLED",
		"OTLP_ENDPOINT":       "use PLAYLISTD_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE": "use PLAYLISTD_TRACING_SAMPLE_RATE",
		"CATALOG_PATH":        "use PLAYLISTD_CATALOG_PATH",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
