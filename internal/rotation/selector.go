/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rotation picks the next technician in a fair round-robin.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrContention is returned when the cursor kept changing under us.
var ErrContention = errors.New("rotation cursor contention")

const defaultMaxAttempts = 8

// Filter narrows the candidate pool. Empty fields do not filter.
type Filter struct {
	Region string `json:"region,omitempty"`
	Group  string `json:"group,omitempty"`
	Skill  string `json:"skill,omitempty"`
}

// Selector hands out technicians in turn. Each distinct filter signature has
// its own cursor row so pools of different shapes do not skew each other.
type Selector struct {
	db          *gorm.DB
	caps        db.Capabilities
	logger      zerolog.Logger
	maxAttempts int
	now         func() time.Time
}

// Option customises a Selector.
type Option func(*Selector)

// WithMaxAttempts bounds compare-and-swap retries per pick.
func WithMaxAttempts(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a Selector.
func New(database *gorm.DB, caps db.Capabilities, logger zerolog.Logger, opts ...Option) *Selector {
	s := &Selector{
		db:          database,
		caps:        caps,
		logger:      logger.With().Str("component", "rotation").Logger(),
		maxAttempts: defaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// effective drops filters whose column the schema does not carry.
func (s *Selector) effective(f Filter) Filter {
	out := Filter{
		Region: strings.TrimSpace(f.Region),
		Group:  strings.TrimSpace(f.Group),
		Skill:  strings.TrimSpace(f.Skill),
	}
	if !s.caps.TechnicianRegions {
		out.Region = ""
	}
	if !s.caps.TechnicianGroups {
		out.Group = ""
	}
	if !s.caps.TechnicianSkills {
		out.Skill = ""
	}
	return out
}

// Scope returns the cursor key for the filters that will actually apply.
func (s *Selector) Scope(f Filter) string {
	f = s.effective(f)
	var parts []string
	if f.Region != "" {
		parts = append(parts, "region="+strings.ToLower(f.Region))
	}
	if f.Group != "" {
		parts = append(parts, "group="+strings.ToLower(f.Group))
	}
	if f.Skill != "" {
		parts = append(parts, "skill="+strings.ToLower(f.Skill))
	}
	if len(parts) == 0 {
		return db.GlobalRotationScope
	}
	return strings.Join(parts, "|")
}

// Candidates returns the active technicians matching f in rotation order:
// weight descending (missing weight last), then most recently updated, then id.
func (s *Selector) Candidates(ctx context.Context, f Filter) ([]models.Technician, error) {
	f = s.effective(f)

	var all []models.Technician
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&all).Error; err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}

	out := all[:0]
	for _, t := range all {
		if f.Region != "" && !containsFold(t.Regions, f.Region) {
			continue
		}
		if f.Group != "" && !containsFold(t.Groups, f.Group) {
			continue
		}
		if f.Skill != "" && !containsFold(t.Skills, f.Skill) {
			continue
		}
		out = append(out, t)
	}

	useWeight := s.caps.TechnicianWeight
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if useWeight {
			wa, wb := weight(a), weight(b)
			if wa != wb {
				return wa > wb
			}
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Next returns the technician at the cursor for f and advances the cursor.
// It returns nil without error when no technician qualifies, in which case
// the cursor is left untouched.
func (s *Selector) Next(ctx context.Context, f Filter) (*models.Technician, error) {
	ctx, span := telemetry.StartSpan(ctx, "rotation", "rotation.Next")
	defer span.End()

	candidates, err := s.Candidates(ctx, f)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(candidates) == 0 {
		telemetry.RotationAssignmentsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	scope := s.Scope(f)
	n := len(candidates)

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		cursor, err := s.loadCursor(ctx, scope)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}

		idx := cursor.Position % n
		if idx < 0 {
			idx += n
		}

		res := s.db.WithContext(ctx).
			Model(&models.RotationCursor{}).
			Where("scope = ? AND version = ?", scope, cursor.Version).
			Updates(map[string]any{
				"position":   (idx + 1) % n,
				"version":    cursor.Version + 1,
				"updated_at": s.now(),
			})
		if res.Error != nil {
			telemetry.RecordError(span, res.Error)
			return nil, fmt.Errorf("advance rotation cursor: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			picked := candidates[idx]
			telemetry.RotationAssignmentsTotal.WithLabelValues("assigned").Inc()
			telemetry.AddSpanAttributes(span, map[string]any{
				"scope":      scope,
				"candidates": n,
				"position":   idx,
				"technician": picked.ID,
			})
			return &picked, nil
		}

		telemetry.RotationCASRetriesTotal.Inc()
		s.logger.Debug().Str("scope", scope).Int("attempt", attempt+1).Msg("rotation cursor moved, retrying")
	}

	telemetry.RotationAssignmentsTotal.WithLabelValues("contention").Inc()
	return nil, ErrContention
}

func (s *Selector) loadCursor(ctx context.Context, scope string) (models.RotationCursor, error) {
	tx := s.db.WithContext(ctx)

	var cursor models.RotationCursor
	err := tx.Where("scope = ?", scope).Take(&cursor).Error
	if err == nil {
		return cursor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RotationCursor{}, fmt.Errorf("load rotation cursor: %w", err)
	}

	// First pick for this scope; a concurrent seeder may win, which is fine.
	seed := models.RotationCursor{Scope: scope, UpdatedAt: s.now()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return models.RotationCursor{}, fmt.Errorf("seed rotation cursor: %w", err)
	}
	if err := tx.Where("scope = ?", scope).Take(&cursor).Error; err != nil {
		return models.RotationCursor{}, fmt.Errorf("load rotation cursor: %w", err)
	}
	return cursor, nil
}

func weight(t models.Technician) int {
	if t.Weight == nil {
		return -1 << 31
	}
	return *t.Weight
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
