/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerName is the instrumentation scope for dispatch spans.
const TracerName = "playlistd"

// Span attribute keys for dispatched requests.
const (
	AttrRequestType  = attribute.Key("playlistd.request_type")
	AttrResponseType = attribute.Key("playlistd.response_type")
	AttrFailed       = attribute.Key("playlistd.failed")
)

// TracerConfig selects the OTLP collector and sampling.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // collector gRPC host:port
	Enabled        bool
	SampleRate     float64
}

// TracerProvider owns the SDK provider; nil when tracing is disabled.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// InitTracer installs the global tracer provider. Disabled tracing installs
// a no-op provider so dispatch spans cost nothing.
func InitTracer(ctx context.Context, cfg TracerConfig, logger zerolog.Logger) (*TracerProvider, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		logger.Info().Msg("tracing disabled")
		return &TracerProvider{}, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(Sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logger.Info().
		Str("otlp_endpoint", cfg.OTLPEndpoint).
		Float64("sample_rate", cfg.SampleRate).
		Msg("tracing enabled")
	return &TracerProvider{provider: tp}, nil
}

// Sampler maps a sample rate to a root sampler.
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans, bounded to five seconds.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := tp.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

// StartDispatchSpan opens the server span for one protocol request.
func StartDispatchSpan(ctx context.Context, requestType string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "dispatch "+requestType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrRequestType.String(requestType)))
}

// EndDispatchSpan records the outcome of a dispatch and ends the span.
// failed marks a domain error answered to the client; err is a dispatch
// failure that produced no response.
func EndDispatchSpan(span trace.Span, responseType string, failed bool, err error) {
	span.SetAttributes(AttrResponseType.String(responseType), AttrFailed.Bool(failed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
