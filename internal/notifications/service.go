/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package notifications tells the outside world about service-order status
// changes: engine events for operators and the chat agent, and a signed
// webhook for the client-messaging side.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/orders"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/rs/zerolog"
)

// WebhookSender is satisfied by *webhooks.Sender.
type WebhookSender interface {
	Enabled() bool
	Send(ctx context.Context, event, referenceID string, payload any) error
}

// StatusChangePayload is the body published for a status change.
type StatusChangePayload struct {
	Event         string     `json:"event"`
	Timestamp     time.Time  `json:"timestamp"`
	OrderID       string     `json:"order_id"`
	ClientID      *string    `json:"client_id,omitempty"`
	From          string     `json:"from"`
	To            string     `json:"to"`
	Notes         string     `json:"notes,omitempty"`
	Author        string     `json:"author,omitempty"`
	Reason        *string    `json:"cancellation_reason,omitempty"`
	CompletedDate *time.Time `json:"completed_date,omitempty"`
	ProgressEntry string     `json:"progress_entry_id,omitempty"`
}

// Service implements orders.Notifier. Webhook delivery runs in the
// background so a slow endpoint never holds up the request that changed
// the order.
type Service struct {
	bus     events.Publisher
	webhook WebhookSender
	timeout time.Duration
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// NewService creates a notification service. Either collaborator may be nil.
func NewService(bus events.Publisher, webhook WebhookSender, logger zerolog.Logger) *Service {
	return &Service{
		bus:     bus,
		webhook: webhook,
		timeout: 15 * time.Second,
		logger:  logger.With().Str("component", "notifications").Logger(),
	}
}

// OrderStatusChanged implements orders.Notifier.
func (s *Service) OrderStatusChanged(_ context.Context, change orders.Change) error {
	payload := buildPayload(change)

	if s.bus != nil {
		s.bus.Publish(events.EventOrderStatusChanged, events.Payload{
			"order_id":          payload.OrderID,
			"from":              payload.From,
			"to":                payload.To,
			"notes":             payload.Notes,
			"author":            payload.Author,
			"progress_entry_id": payload.ProgressEntry,
			"timestamp":         payload.Timestamp,
		})
		telemetry.NotificationDeliveriesTotal.WithLabelValues("bus", "delivered").Inc()
	}

	if s.webhook == nil || !s.webhook.Enabled() {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.webhook.Send(ctx, payload.Event, payload.OrderID, payload); err != nil {
			s.logger.Warn().Err(err).Str("order_id", payload.OrderID).Str("to", payload.To).Msg("status change webhook failed")
		}
	}()
	return nil
}

// Wait blocks until background deliveries have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func buildPayload(change orders.Change) StatusChangePayload {
	p := StatusChangePayload{
		Event:         string(events.EventOrderStatusChanged),
		Timestamp:     time.Now().UTC(),
		OrderID:       change.Order.ID,
		ClientID:      change.Order.ClientID,
		From:          string(change.Previous),
		To:            string(change.Order.Status),
		Reason:        change.Order.CancellationReason,
		CompletedDate: change.Order.CompletedDate,
	}
	if change.Entry != nil {
		p.Notes = change.Entry.Notes
		p.Author = change.Entry.Author
		p.ProgressEntry = change.Entry.ID
		p.Timestamp = change.Entry.CreatedAt
	}
	return p
}
