/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/playlistd/internal/config"
	"github.com/friendsincode/playlistd/internal/logbuffer"
	"github.com/friendsincode/playlistd/internal/logging"
	"github.com/friendsincode/playlistd/internal/server"
	"github.com/friendsincode/playlistd/internal/telemetry"
	"github.com/friendsincode/playlistd/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
	logBuf = logbuffer.New(logbuffer.DefaultCapacity)
)

var rootCmd = &cobra.Command{
	Use:          "playlistd",
	Short:        "playlistd - shared music playlist server",
	Long:         "playlistd serves a shared music playlist to clients over a framed TCP protocol.",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playlist server",
	Long:  "Start the framed-protocol listener and the HTTP side server (health, metrics, events)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithBuffer(cfg.Environment, os.Stdout, logBuf)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("playlistd starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "playlistd",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger, server.WithLogBuffer(logBuf))
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	srv.Start()
	logger.Info().Str("addr", cfg.Addr()).Msg("protocol server starting")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down gracefully...")
	case runErr = <-srv.Errors():
		logger.Error().Err(runErr).Msg("server error")
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("playlistd stopped")
	return runErr
}
