/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/google/uuid"
)

// ListBlackouts returns blackouts intersecting [from, to). Zero bounds are open.
func (s *Service) ListBlackouts(ctx context.Context, from, to time.Time) ([]models.Blackout, error) {
	q := s.db.WithContext(ctx).Order("starts_at ASC")
	if !to.IsZero() {
		q = q.Where("starts_at < ?", to.UTC())
	}
	if !from.IsZero() {
		q = q.Where("ends_at > ?", from.UTC())
	}

	var out []models.Blackout
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	return out, nil
}

// CreateBlackout stores an operator window in which nobody may be booked.
func (s *Service) CreateBlackout(ctx context.Context, startsAt, endsAt time.Time, reason string) (*models.Blackout, error) {
	if startsAt.IsZero() || endsAt.IsZero() {
		return nil, invalid("invalid_window", "starts_at and ends_at are required")
	}
	if !endsAt.After(startsAt) {
		return nil, invalid("invalid_window", "ends_at must be after starts_at")
	}

	b := models.Blackout{
		ID:       uuid.NewString(),
		StartsAt: startsAt.UTC(),
		EndsAt:   endsAt.UTC(),
		Reason:   strings.TrimSpace(reason),
	}
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return nil, fmt.Errorf("create blackout: %w", err)
	}

	s.publish(events.EventBlackoutChanged, events.Payload{
		"action":      "created",
		"blackout_id": b.ID,
		"starts_at":   b.StartsAt,
		"ends_at":     b.EndsAt,
	})
	return &b, nil
}

// DeleteBlackout removes a blackout.
func (s *Service) DeleteBlackout(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Blackout{})
	if res.Error != nil {
		return fmt.Errorf("delete blackout: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBlackoutNotFound
	}
	s.publish(events.EventBlackoutChanged, events.Payload{
		"action":      "deleted",
		"blackout_id": id,
	})
	return nil
}
