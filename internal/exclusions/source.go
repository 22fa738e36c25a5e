/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package exclusions gathers the busy intervals that block slots on a day.
package exclusions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/slots"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Kind names where a busy interval came from.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindBlackout    Kind = "blackout"
	KindLunch       Kind = "lunch"
)

// Busy is one blocked interval on a day.
type Busy struct {
	slots.Interval
	Kind  Kind   `json:"kind"`
	RefID string `json:"ref_id,omitempty"`
}

// Query selects the day and, optionally, the technician whose bookings count.
type Query struct {
	Day          time.Time // any instant on the wanted day
	TechnicianID string
}

// Source reads appointments and blackouts from the store.
type Source struct {
	db       *gorm.DB
	caps     db.Capabilities
	location *time.Location
	lunch    *slots.Interval
	logger   zerolog.Logger
}

// Config configures a Source.
type Config struct {
	Location *time.Location
	Lunch    *slots.Interval // nil disables the synthetic lunch window
}

// New creates a Source. caps comes from db.DetectCapabilities at startup.
func New(database *gorm.DB, caps db.Capabilities, cfg Config, logger zerolog.Logger) *Source {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Source{
		db:       database,
		caps:     caps,
		location: loc,
		lunch:    cfg.Lunch,
		logger:   logger.With().Str("component", "exclusions").Logger(),
	}
}

// Location returns the business time zone days are computed in.
func (s *Source) Location() *time.Location {
	return s.location
}

// DayStart returns local midnight of the day containing t.
func (s *Source) DayStart(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}

// Busy returns every interval that blocks slots on q.Day: active non-test
// appointments (only q.TechnicianID's when set), intersecting blackouts and
// the lunch window when enabled. Results are clipped to the day and sorted.
func (s *Source) Busy(ctx context.Context, q Query) ([]Busy, error) {
	ctx, span := telemetry.StartSpan(ctx, "exclusions", "exclusions.Busy")
	defer span.End()

	dayStart := s.DayStart(q.Day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	appointments, err := s.appointments(ctx, dayStart, dayEnd, q.TechnicianID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var blackouts []models.Blackout
	if err := s.db.WithContext(ctx).
		Where("starts_at < ? AND ends_at > ?", dayEnd.UTC(), dayStart.UTC()).
		Order("starts_at ASC").
		Find(&blackouts).Error; err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list blackouts: %w", err)
	}

	out := make([]Busy, 0, len(appointments)+len(blackouts)+1)
	for _, a := range appointments {
		if iv, ok := slots.Clip(dayStart, a.StartsAt, a.EndsAt); ok {
			out = append(out, Busy{Interval: iv, Kind: KindAppointment, RefID: a.ID})
		}
	}
	for _, b := range blackouts {
		if iv, ok := slots.Clip(dayStart, b.StartsAt, b.EndsAt); ok {
			out = append(out, Busy{Interval: iv, Kind: KindBlackout, RefID: b.ID})
		}
	}
	if s.lunch != nil && !s.lunch.Empty() {
		out = append(out, Busy{Interval: *s.lunch, Kind: KindLunch})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	telemetry.AddSpanAttributes(span, map[string]any{
		"day":          dayStart.Format("2006-01-02"),
		"technician":   q.TechnicianID,
		"busy_windows": len(out),
	})
	return out, nil
}

// DayAppointments returns the active, non-test appointments overlapping the
// day that contains day, across all technicians.
func (s *Source) DayAppointments(ctx context.Context, day time.Time) ([]models.Appointment, error) {
	dayStart := s.DayStart(day)
	return s.appointments(ctx, dayStart, dayStart.AddDate(0, 0, 1), "")
}

func (s *Source) appointments(ctx context.Context, from, to time.Time, technicianID string) ([]models.Appointment, error) {
	q := s.db.WithContext(ctx).
		Where("starts_at < ? AND ends_at > ?", to.UTC(), from.UTC()).
		Where("status <> ?", models.AppointmentCanceled)
	if s.caps.AppointmentIsTest {
		q = q.Where("is_test = ?", false)
	}
	if technicianID != "" {
		q = q.Where("technician_id = ?", technicianID)
	}

	var appointments []models.Appointment
	if err := q.Order("starts_at ASC").Find(&appointments).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

// Intervals strips the provenance from busy windows.
func Intervals(busy []Busy) []slots.Interval {
	out := make([]slots.Interval, len(busy))
	for i, b := range busy {
		out[i] = b.Interval
	}
	return out
}
