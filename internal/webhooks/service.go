/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers signed JSON callbacks to an external endpoint.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Header names sent with every delivery.
const (
	HeaderEvent     = "X-Fieldops-Event"
	HeaderTimestamp = "X-Fieldops-Timestamp"
	HeaderSignature = "X-Fieldops-Signature"
	HeaderDelivery  = "X-Fieldops-Delivery"
)

// Config configures the single outbound target.
type Config struct {
	URL     string
	Secret  string // HMAC-SHA256 key; unsigned when empty
	Timeout time.Duration
}

// Sender posts events to the configured URL and records each attempt.
type Sender struct {
	db     *gorm.DB
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// NewSender creates a Sender. db may be nil to skip delivery logging.
func NewSender(db *gorm.DB, cfg Config, logger zerolog.Logger) *Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sender{
		db:     db,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "webhooks").Logger(),
	}
}

// Enabled reports whether a target URL is configured.
func (s *Sender) Enabled() bool {
	return s != nil && s.cfg.URL != ""
}

// Send delivers payload as event. Non-2xx responses are returned as errors.
func (s *Sender) Send(ctx context.Context, event, referenceID string, payload any) error {
	if !s.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	started := time.Now()
	deliveryID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		s.logDelivery(deliveryID, event, referenceID, body, 0, err, started)
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Fieldops-Webhook/1.0")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(started.Unix(), 10))
	if s.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, s.cfg.Secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logDelivery(deliveryID, event, referenceID, body, 0, err, started)
		telemetry.NotificationDeliveriesTotal.WithLabelValues("webhook", "failed").Inc()
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
		s.logDelivery(deliveryID, event, referenceID, body, resp.StatusCode, err, started)
		telemetry.NotificationDeliveriesTotal.WithLabelValues("webhook", "failed").Inc()
		return err
	}

	s.logDelivery(deliveryID, event, referenceID, body, resp.StatusCode, nil, started)
	telemetry.NotificationDeliveriesTotal.WithLabelValues("webhook", "delivered").Inc()
	s.logger.Debug().Str("event", event).Str("reference_id", referenceID).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(body []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(body, secret)), []byte(signature))
}

func (s *Sender) logDelivery(id, event, referenceID string, body []byte, status int, deliveryErr error, started time.Time) {
	if deliveryErr != nil {
		s.logger.Warn().Err(deliveryErr).Str("event", event).Str("reference_id", referenceID).Msg("webhook delivery failed")
	}
	if s.db == nil {
		return
	}

	row := models.NotificationDelivery{
		ID:          id,
		Target:      s.cfg.URL,
		Event:       event,
		ReferenceID: referenceID,
		Payload:     string(body),
		StatusCode:  status,
		Duration:    int(time.Since(started).Milliseconds()),
		CreatedAt:   time.Now().UTC(),
	}
	if deliveryErr != nil {
		row.Error = deliveryErr.Error()
	}
	if err := s.db.Create(&row).Error; err != nil {
		s.logger.Warn().Err(err).Msg("failed to record webhook delivery")
	}
}
