/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package conflicts finds double bookings after an appointment is stored.
// Findings are advisory data; the booking itself is never rolled back.
package conflicts

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Conflict describes one overlapping appointment.
type Conflict struct {
	AppointmentID  string    `json:"appointment_id"`
	ClientName     string    `json:"client_name,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	EndsAt         time.Time `json:"ends_at"`
	OverlapMinutes int       `json:"overlap_minutes"`
}

// Result is the outcome of a check.
type Result struct {
	AppointmentID string     `json:"appointment_id"`
	HasConflicts  bool       `json:"has_conflicts"`
	ConflictIDs   []string   `json:"conflict_ids"`
	Conflicts     []Conflict `json:"conflicts,omitempty"`
	Suggestions   []string   `json:"suggestions,omitempty"`
	Warnings      []string   `json:"warnings,omitempty"`
}

// Heuristic inspects an appointment for soft problems that are not overlaps.
type Heuristic interface {
	Name() string
	Inspect(appt models.Appointment) (warning string, ok bool)
}

// Checker looks for other bookings of the same technician.
type Checker struct {
	db         *gorm.DB
	caps       db.Capabilities
	location   *time.Location
	heuristics []Heuristic
	logger     zerolog.Logger
}

// Option customises a Checker.
type Option func(*Checker)

// WithHeuristics replaces the default heuristics. Pass none to disable them.
func WithHeuristics(h ...Heuristic) Option {
	return func(c *Checker) { c.heuristics = h }
}

// WithLocation sets the zone used when rendering suggestion times.
func WithLocation(loc *time.Location) Option {
	return func(c *Checker) {
		if loc != nil {
			c.location = loc
		}
	}
}

// New creates a Checker with the multi-unit pickup heuristic enabled.
func New(database *gorm.DB, caps db.Capabilities, logger zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		db:         database,
		caps:       caps,
		location:   time.UTC,
		heuristics: []Heuristic{NewMultiUnitPickup()},
		logger:     logger.With().Str("component", "conflicts").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check compares appt with the technician's other active, non-test bookings.
// Store failures are returned as errors; overlaps never are.
func (c *Checker) Check(ctx context.Context, appt models.Appointment) (Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "conflicts", "conflicts.Check")
	defer span.End()

	res := Result{AppointmentID: appt.ID, ConflictIDs: []string{}}

	// Test bookings never take part in overlap checks, on either side.
	if appt.TechnicianID != nil && *appt.TechnicianID != "" && appt.Active() && !appt.IsTest {
		q := c.db.WithContext(ctx).
			Where("technician_id = ?", *appt.TechnicianID).
			Where("id <> ?", appt.ID).
			Where("status <> ?", models.AppointmentCanceled).
			Where("starts_at < ? AND ends_at > ?", appt.EndsAt.UTC(), appt.StartsAt.UTC())
		if c.caps.AppointmentIsTest {
			q = q.Where("is_test = ?", false)
		}

		var others []models.Appointment
		if err := q.Order("starts_at ASC").Find(&others).Error; err != nil {
			telemetry.RecordError(span, err)
			return Result{}, fmt.Errorf("find overlapping appointments: %w", err)
		}

		latestEnd := appt.EndsAt
		for _, o := range others {
			res.ConflictIDs = append(res.ConflictIDs, o.ID)
			res.Conflicts = append(res.Conflicts, Conflict{
				AppointmentID:  o.ID,
				ClientName:     o.ClientName,
				StartsAt:       o.StartsAt,
				EndsAt:         o.EndsAt,
				OverlapMinutes: overlapMinutes(appt, o),
			})
			res.Suggestions = append(res.Suggestions, fmt.Sprintf(
				"technician is already booked %s-%s for %s; reassign or reschedule",
				c.clock(o.StartsAt), c.clock(o.EndsAt), clientLabel(o),
			))
			if o.EndsAt.After(latestEnd) {
				latestEnd = o.EndsAt
			}
		}
		if len(others) > 0 {
			res.HasConflicts = true
			res.Suggestions = append(res.Suggestions, fmt.Sprintf(
				"earliest start free of these bookings for the same technician is %s",
				c.clock(latestEnd),
			))
			telemetry.ConflictsDetectedTotal.Add(float64(len(others)))
			c.logger.Warn().
				Str("appointment_id", appt.ID).
				Str("technician_id", *appt.TechnicianID).
				Strs("conflict_ids", res.ConflictIDs).
				Msg("double booking detected")
		}
	}

	for _, h := range c.heuristics {
		if warning, ok := h.Inspect(appt); ok {
			res.Warnings = append(res.Warnings, warning)
			c.logger.Debug().Str("appointment_id", appt.ID).Str("heuristic", h.Name()).Msg(warning)
		}
	}

	telemetry.AddSpanAttributes(span, map[string]any{
		"appointment_id": appt.ID,
		"conflicts":      len(res.ConflictIDs),
		"warnings":       len(res.Warnings),
	})
	return res, nil
}

func (c *Checker) clock(t time.Time) string {
	return t.In(c.location).Format("15:04")
}

func overlapMinutes(a, b models.Appointment) int {
	start, end := a.StartsAt, a.EndsAt
	if b.StartsAt.After(start) {
		start = b.StartsAt
	}
	if b.EndsAt.Before(end) {
		end = b.EndsAt
	}
	return int(end.Sub(start) / time.Minute)
}

func clientLabel(a models.Appointment) string {
	if a.ClientName != "" {
		return a.ClientName
	}
	return "appointment " + a.ID
}
