/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Protocol server metrics.
var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistd_connections_active",
		Help: "Number of open client connections.",
	})

	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playlistd_connections_total",
		Help: "Total accepted client connections.",
	})

	// ConnectionClosesTotal is labeled by close reason: peer_disconnect,
	// framing_error, checksum_error, io_error, shutdown.
	ConnectionClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_connection_closes_total",
		Help: "Closed client connections by reason.",
	}, []string{"reason"})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_frames_total",
		Help: "Frames read or written, by direction and message type.",
	}, []string{"direction", "type"})

	FrameBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_frame_bytes_total",
		Help: "Frame bytes read or written, headers included.",
	}, []string{"direction"})
)

// Dispatcher and engine metrics.
var (
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playlistd_dispatch_duration_seconds",
		Help:    "Time spent handling one request.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"type"})

	// DomainErrorsTotal counts requests answered with an error payload.
	DomainErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_domain_errors_total",
		Help: "Requests answered with an error payload, by request type.",
	}, []string{"type"})

	PlaylistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistd_playlist_songs",
		Help: "Songs in the active playlist.",
	})

	CatalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistd_catalog_songs",
		Help: "Songs in the loaded catalog.",
	})
)

// Database metrics, recorded by gorm callbacks.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playlistd_database_query_duration_seconds",
		Help:    "Database operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_database_errors_total",
		Help: "Failed database operations.",
	}, []string{"operation"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistd_database_connections_open",
		Help: "Open connections in the database pool.",
	})
)

// Event fan-out and HTTP side server metrics.
var (
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_events_published_total",
		Help: "Events published to the bus.",
	}, []string{"event_type"})

	// EventBusFallback is 1 while a distributed bus runs on its in-memory
	// fallback.
	EventBusFallback = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playlistd_eventbus_fallback",
		Help: "Whether the distributed event bus is degraded to in-memory.",
	}, []string{"backend"})

	AuditWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_audit_writes_total",
		Help: "Audit log writes by result.",
	}, []string{"result"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlistd_api_requests_total",
		Help: "HTTP requests served by the side server.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playlistd_api_request_duration_seconds",
		Help:    "HTTP request latency on the side server.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistd_api_active_connections",
		Help: "In-flight HTTP requests on the side server.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlistd_api_websocket_connections",
		Help: "Open /events websocket streams.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
