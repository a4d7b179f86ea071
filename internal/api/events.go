/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/playlistd/internal/events"
	"github.com/friendsincode/playlistd/internal/telemetry"
)

// handleEvents streams bus events as {"type": ..., "payload": ...} text
// frames. ?types= selects event types; the default is every playlist event
// except raw requests.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	// Reads are only needed to observe the peer closing.
	ctx = conn.CloseRead(ctx)

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = events.AllEventTypes[1:]
	}

	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// cases: ctx.Done, ticker, then one per subscriber.
	cases := make([]reflect.SelectCase, 0, len(subscribers)+2)
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ticker.C)},
	)
	for _, sub := range subscribers {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(sub)})
	}

	for {
		chosen, value, ok := reflect.Select(cases)
		switch chosen {
		case 0:
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case 1:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			if !ok {
				conn.Close(ws.StatusGoingAway, "event stream closed")
				return
			}
			payload := value.Interface().(events.Payload)
			if err := a.writeEvent(ctx, conn, eventTypes[chosen-2], payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}
