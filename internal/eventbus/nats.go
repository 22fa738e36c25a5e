/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "fieldops.events",
		Name:          "fieldops",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus mirrors the in-process bus onto NATS subjects so the chat-bot
// integration and other engine instances see the same events. Local
// subscribers always go through the in-process bus; when NATS is unreachable
// the bus keeps working locally.
type NATSBus struct {
	logger zerolog.Logger
	local  *events.Bus
	conn   *nats.Conn
	sub    *nats.Subscription
	prefix string
	nodeID string

	closeOnce sync.Once
}

// NewNATSBus connects to NATS. A connection failure is logged and the bus
// degrades to in-process delivery.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) *NATSBus {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultNATSConfig().SubjectPrefix
	}
	nb := &NATSBus{
		logger: logger.With().Str("component", "nats_bus").Logger(),
		local:  local,
		prefix: cfg.SubjectPrefix,
		nodeID: generateNodeID(),
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("nats unavailable, events stay in-process")
		return nb
	}
	nb.conn = conn

	sub, err := conn.Subscribe(nb.prefix+".>", nb.handleRemote)
	if err != nil {
		nb.logger.Warn().Err(err).Msg("nats subscribe failed, remote events will not be relayed")
	} else {
		nb.sub = sub
	}

	nb.logger.Info().Str("url", conn.ConnectedUrl()).Str("node_id", nb.nodeID).Msg("nats event bus connected")
	return nb
}

// Connected reports whether events are being mirrored to NATS.
func (nb *NATSBus) Connected() bool {
	return nb.conn != nil && nb.conn.IsConnected()
}

// Subscribe registers a local subscriber.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally and forwards to NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}
	data, err := marshalNATSMessage(eventType, payload, nb.nodeID)
	if err != nil {
		telemetry.EventsForwardedTotal.WithLabelValues("encode_error").Inc()
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("encode event failed")
		return
	}
	if err := nb.conn.Publish(nb.subject(eventType), data); err != nil {
		telemetry.EventsForwardedTotal.WithLabelValues("failed").Inc()
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("forward event failed")
		return
	}
	telemetry.EventsForwardedTotal.WithLabelValues("ok").Inc()
}

// handleRemote relays events published by other nodes to local subscribers.
func (nb *NATSBus) handleRemote(m *nats.Msg) {
	msg, err := unmarshalNATSMessage(m.Data)
	if err != nil {
		nb.logger.Debug().Err(err).Str("subject", m.Subject).Msg("ignoring malformed event")
		return
	}
	if msg.NodeID == nb.nodeID {
		return
	}
	nb.local.Publish(msg.EventType, msg.Payload)
}

func (nb *NATSBus) subject(eventType events.EventType) string {
	return nb.prefix + "." + string(eventType)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	var err error
	nb.closeOnce.Do(func() {
		if nb.conn == nil {
			return
		}
		err = nb.conn.Drain()
	})
	return err
}

// natsMessage is the wire format published on each subject.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("nats message missing event type")
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return strings.ToLower(host) + "-" + uuid.NewString()[:8]
}
