/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/friendsincode/playlistd/internal/dispatch"
	"github.com/friendsincode/playlistd/internal/protocol"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// connState is the position of a connection in its request/response cycle.
type connState int

const (
	stateOpen connState = iota
	stateReadingHeader
	stateReadingPayload
	stateDispatching
	stateWritingResponse
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateReadingHeader:
		return "reading_header"
	case stateReadingPayload:
		return "reading_payload"
	case stateDispatching:
		return "dispatching"
	case stateWritingResponse:
		return "writing_response"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Close reasons, also used as the metric label.
const (
	closePeerDisconnect = "peer_disconnect"
	closeFramingError   = "framing_error"
	closeChecksumError  = "checksum_error"
	closeIOError        = "io_error"
)

// conn serves one client: read a frame, dispatch it, write exactly one
// response, repeat. Requests are never pipelined.
type conn struct {
	nc         net.Conn
	r          *bufio.Reader
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	peer  string
	local string
	state connState
}

func newConn(pc *ProtocolConnection, d *dispatch.Dispatcher, logger zerolog.Logger) *conn {
	return &conn{
		nc:         pc.conn,
		r:          bufio.NewReader(pc.conn),
		dispatcher: d,
		logger: logger.With().
			Str("session_id", pc.SessionID).
			Str("remote_addr", pc.RemoteAddr).
			Logger(),
		peer:  hostOnly(pc.conn.RemoteAddr()),
		local: hostOnly(pc.conn.LocalAddr()),
		state: stateOpen,
	}
}

func (c *conn) serve(ctx context.Context) {
	c.logger.Info().Msg("client connected")
	reason := closePeerDisconnect
	defer func() {
		c.state = stateClosed
		_ = c.nc.Close()
		telemetry.ConnectionClosesTotal.WithLabelValues(reason).Inc()
		c.logger.Info().Str("reason", reason).Msg("client disconnected")
	}()

	for {
		c.state = stateReadingHeader
		h, err := protocol.ReadHeader(c.r)
		if err != nil {
			reason = c.fail(err)
			return
		}

		c.state = stateReadingPayload
		req, err := protocol.ReadEnvelope(c.r, h)
		if err != nil {
			reason = c.fail(err)
			return
		}
		telemetry.FramesTotal.WithLabelValues("in", req.Type.String()).Inc()
		telemetry.FrameBytesTotal.WithLabelValues("in").Add(float64(protocol.HeaderSize + int(h.Length)))

		c.state = stateDispatching
		resp, err := c.dispatcher.Dispatch(ctx, req)
		if err != nil {
			c.logger.Error().Err(err).Str("type", req.Type.String()).Msg("dispatch failed")
			resp = errorResponse("Internal server error.")
		}

		c.state = stateWritingResponse
		if err := c.write(resp); err != nil {
			reason = c.fail(err)
			return
		}
	}
}

// write frames and sends resp. A response too large for one frame is
// replaced by an error frame so the client still gets exactly one reply.
func (c *conn) write(resp dispatch.Response) error {
	msg := protocol.NewMessage(resp.Type, resp.Payload, c.peer, c.local)
	frame, err := msg.MarshalBinary()
	if errors.Is(err, protocol.ErrEnvelopeTooLarge) {
		c.logger.Warn().Err(err).Str("type", resp.Type.String()).Msg("response does not fit in one frame")
		msg = protocol.NewMessage(protocol.TypeError, errorResponse("Response too large.").Payload, c.peer, c.local)
		frame, err = msg.MarshalBinary()
	}
	if err != nil {
		return err
	}

	if _, err := c.nc.Write(frame); err != nil {
		return err
	}
	telemetry.FramesTotal.WithLabelValues("out", msg.Type.String()).Inc()
	telemetry.FrameBytesTotal.WithLabelValues("out").Add(float64(len(frame)))

	c.logger.Debug().
		Str("type", msg.Type.String()).
		Int("bytes", len(frame)).
		Msg("response sent")
	return nil
}

// fail classifies a read or write error and logs it. It returns the close
// reason.
func (c *conn) fail(err error) string {
	ev := c.logger.Warn().Err(err).Str("state", c.state.String())
	reason := classify(err)
	switch reason {
	case closePeerDisconnect:
		return reason
	case closeIOError:
		ev = c.logger.Error().Err(err).Str("state", c.state.String())
	}
	ev.Msg("closing connection")
	return reason
}

// classify maps a connection error onto a close reason. A clean EOF at a
// frame boundary and a reset by the peer both count as a disconnect.
func classify(err error) string {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), isConnReset(err):
		return closePeerDisconnect
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return closeChecksumError
	case errors.Is(err, protocol.ErrFraming):
		return closeFramingError
	default:
		return closeIOError
	}
}

func errorResponse(msg string) dispatch.Response {
	payload, _ := protocol.MarshalPayload(protocol.ErrorPayload{Error: msg})
	return dispatch.Response{Type: protocol.TypeError, Payload: payload, Failed: true}
}

func hostOnly(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE)
}
