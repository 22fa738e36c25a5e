/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("service order not found")
	ErrUnknownStatus    = errors.New("unknown service order status")
	ErrReasonRequired   = errors.New("cancellation reason required")
	ErrConcurrentUpdate = errors.New("service order changed concurrently")
)

// TransitionError reports a move the workflow does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal service order transition from %s to %s", e.From, e.To)
}

// Request asks for an order to move to Status.
type Request struct {
	OrderID string
	Status  string
	Notes   string
	Reason  string // required when Status is canceled
	Author  string
}

// Change is the outcome of an accepted request.
type Change struct {
	Order    models.ServiceOrder   `json:"order"`
	Previous Status                `json:"previous_status"`
	Entry    *models.ProgressEntry `json:"progress_entry,omitempty"`
	Changed  bool                  `json:"changed"`
}

// Notifier is told about every committed status change.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, change Change) error
}

// Service applies status changes to stored orders.
type Service struct {
	db       *gorm.DB
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a Service. notifier may be nil.
func NewService(db *gorm.DB, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		notifier: notifier,
		logger:   logger.With().Str("component", "orders").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a pending order and writes its first progress entry.
func (s *Service) Create(ctx context.Context, description string, clientID *string, author string) (*models.ServiceOrder, error) {
	order := models.NewServiceOrder(strings.TrimSpace(description))
	order.ClientID = clientID
	now := s.now()
	order.CreatedAt, order.UpdatedAt = now, now

	entry := models.ProgressEntry{
		ID:             uuid.NewString(),
		ServiceOrderID: order.ID,
		Status:         models.OrderPending,
		Notes:          "order opened",
		Author:         authorOrSystem(author),
		CreatedAt:      now,
	}
	order.LastProgressID = &entry.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("create service order: %w", err)
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create progress entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Get loads an order.
func (s *Service) Get(ctx context.Context, id string) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load service order: %w", err)
	}
	return &order, nil
}

// Transition moves an order to req.Status.
//
// Cancelling without a reason is refused whatever the current status.
// Requesting the current status succeeds without writing anything. Accepted
// changes update the order and append a progress entry in one transaction;
// the notifier runs after commit and its failure does not undo the change.
func (s *Service) Transition(ctx context.Context, req Request) (Change, error) {
	ctx, span := telemetry.StartSpan(ctx, "orders", "orders.Transition")
	defer span.End()

	target, err := ParseStatus(req.Status)
	if err != nil {
		telemetry.OrderTransitionsTotal.WithLabelValues("unknown", "invalid").Inc()
		return Change{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if target == models.OrderCanceled && reason == "" {
		telemetry.OrderTransitionsTotal.WithLabelValues(string(target), "reason_required").Inc()
		return Change{}, ErrReasonRequired
	}

	var change Change
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.ServiceOrder
		if err := tx.Where("id = ?", req.OrderID).Take(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load service order: %w", err)
		}

		current := order.Status
		change = Change{Order: order, Previous: current}
		if target == current {
			return nil
		}
		if !CanTransition(current, target) {
			return &TransitionError{From: current, To: target}
		}

		now := s.now()
		entry := models.ProgressEntry{
			ID:             uuid.NewString(),
			ServiceOrderID: order.ID,
			Status:         target,
			Notes:          progressNotes(current, target, req.Notes, reason),
			Author:         authorOrSystem(req.Author),
			CreatedAt:      now,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("append progress entry: %w", err)
		}

		updates := map[string]any{
			"status":           target,
			"last_progress_id": entry.ID,
			"updated_at":       now,
		}
		switch target {
		case models.OrderCompleted:
			updates["completed_date"] = now
			order.CompletedDate = &now
		case models.OrderCanceled:
			updates["cancellation_reason"] = reason
			order.CancellationReason = &reason
		}

		res := tx.Model(&models.ServiceOrder{}).
			Where("id = ? AND status = ?", order.ID, current).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update service order: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrConcurrentUpdate
		}

		order.Status = target
		order.LastProgressID = &entry.ID
		order.UpdatedAt = now
		change = Change{Order: order, Previous: current, Entry: &entry, Changed: true}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		telemetry.OrderTransitionsTotal.WithLabelValues(string(target), resultLabel(err)).Inc()
		return Change{}, err
	}

	if !change.Changed {
		telemetry.OrderTransitionsTotal.WithLabelValues(string(target), "noop").Inc()
		return change, nil
	}
	telemetry.OrderTransitionsTotal.WithLabelValues(string(target), "applied").Inc()

	s.logger.Info().
		Str("order_id", change.Order.ID).
		Str("from", string(change.Previous)).
		Str("to", string(target)).
		Msg("service order status changed")

	if s.notifier != nil {
		if err := s.notifier.OrderStatusChanged(ctx, change); err != nil {
			s.logger.Warn().Err(err).Str("order_id", change.Order.ID).Msg("status change notification failed")
		}
	}
	return change, nil
}

// Progress returns the order's log in the order it was written.
func (s *Service) Progress(ctx context.Context, orderID string) ([]models.ProgressEntry, error) {
	if _, err := s.Get(ctx, orderID); err != nil {
		return nil, err
	}
	var entries []models.ProgressEntry
	if err := s.db.WithContext(ctx).
		Where("service_order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return entries, nil
}

func progressNotes(from, to Status, notes, reason string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		notes = fmt.Sprintf("status changed from %s to %s", from, to)
	}
	if to == models.OrderCanceled && reason != "" {
		notes += " (reason: " + reason + ")"
	}
	return notes
}

func authorOrSystem(author string) string {
	if a := strings.TrimSpace(author); a != "" {
		return a
	}
	return "system"
}

func resultLabel(err error) string {
	var te *TransitionError
	switch {
	case errors.As(err, &te):
		return "illegal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrentUpdate):
		return "conflict"
	default:
		return "error"
	}
}
