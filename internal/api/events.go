/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/telemetry"
)

const eventsPingInterval = 15 * time.Second

type envelope struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams engine events to operators and the chat agent.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("types")
	eventTypes := parseEventTypes(raw)
	if raw != "" && len(eventTypes) == 0 {
		writeError(w, http.StatusBadRequest, "unknown_event_types")
		return
	}
	if len(eventTypes) == 0 {
		eventTypes = events.AllEventTypes
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIActiveConnections.Inc()
	defer telemetry.APIActiveConnections.Dec()

	// Clients only listen; CloseRead cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	out := make(chan envelope, 32)
	for _, eventType := range eventTypes {
		sub := a.bus.Subscribe(eventType)
		defer a.bus.Unsubscribe(eventType, sub)
		go forward(ctx, eventType, sub, out)
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-out:
			if err := a.writeEvent(ctx, conn, ev); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func forward(ctx context.Context, eventType events.EventType, sub events.Subscriber, out chan<- envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub:
			if !ok {
				return
			}
			select {
			case out <- envelope{Type: eventType, Payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, ev envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

// parseEventTypes keeps the known types named in a comma separated list.
func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	known := make(map[events.EventType]bool, len(events.AllEventTypes))
	for _, t := range events.AllEventTypes {
		known[t] = true
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.TrimSpace(part))
		if known[t] {
			out = append(out, t)
		}
	}
	return out
}
