/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/friendsincode/playlistd/internal/logbuffer"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout)
}

// SetupWithWriter configures zerolog to write to out. Development gets a
// human-readable console at debug level; every other environment gets JSON
// lines at info level.
func SetupWithWriter(environment string, out io.Writer) zerolog.Logger {
	return setup(environment, out, nil)
}

// SetupWithBuffer is SetupWithWriter that also captures every JSON line into
// buf, regardless of how out is formatted.
func SetupWithBuffer(environment string, out io.Writer, buf *logbuffer.Buffer) zerolog.Logger {
	return setup(environment, out, buf)
}

func setup(environment string, out io.Writer, buf *logbuffer.Buffer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	writer := out
	if environment == "development" {
		level = zerolog.DebugLevel
		writer = zerolog.ConsoleWriter{Out: out}
	}
	if buf != nil {
		writer = zerolog.MultiLevelWriter(writer, logbuffer.NewWriter(buf, nil))
	}

	logger := zerolog.New(writer).With().Timestamp().Str("service", "playlistd").Logger().Level(level)
	log.Logger = logger
	return logger
}
