/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package planner suggests appointment dates over the coming two weeks,
// keeping remote (group C) visits on days of their own.
package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/fieldops/internal/exclusions"
	"github.com/friendsincode/fieldops/internal/logistics"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/slots"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/rs/zerolog"
)

const (
	// HorizonDays is how far ahead suggestions look.
	HorizonDays = 14
	// MaxSuggestions caps the result.
	MaxSuggestions = 2
	// AfternoonStart is the earliest start group C prefers.
	AfternoonStart = 14 * 60
)

// Urgency levels accepted on requests.
const (
	UrgencyNormal = "normal"
	UrgencyHigh   = "high"
)

// HoursSource yields the working window for a day; false means closed.
type HoursSource interface {
	Window(ctx context.Context, day time.Time) (slots.Interval, bool, error)
}

// Request asks for suggestions.
type Request struct {
	Address   string
	Equipment string
	Urgency   string
	Duration  int // minutes, zero uses the planner default
}

// Suggestion is one proposed visit.
type Suggestion struct {
	Date       string                `json:"date"`
	WindowText string                `json:"window_text"`
	From       string                `json:"from"`
	To         string                `json:"to"`
	Group      models.LogisticsGroup `json:"group"`
	StartsAt   time.Time             `json:"starts_at"`
	EndsAt     time.Time             `json:"ends_at"`
}

// Result carries the inferred group and up to two suggestions.
type Result struct {
	Group       models.LogisticsGroup `json:"group"`
	Suggestions []Suggestion          `json:"suggestions"`
}

// Planner searches candidate days.
type Planner struct {
	source     *exclusions.Source
	hours      HoursSource
	classifier *logistics.Classifier
	grid       int
	duration   int
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithGrid sets slot grid and default duration in minutes.
func WithGrid(grid, duration int) Option {
	return func(p *Planner) {
		if grid > 0 {
			p.grid = grid
		}
		if duration > 0 {
			p.duration = duration
		}
	}
}

// New creates a Planner.
func New(source *exclusions.Source, hours HoursSource, classifier *logistics.Classifier, logger zerolog.Logger, opts ...Option) *Planner {
	if classifier == nil {
		classifier = logistics.Default()
	}
	p := &Planner{
		source:     source,
		hours:      hours,
		classifier: classifier,
		grid:       slots.DefaultGrid,
		duration:   60,
		now:        time.Now,
		logger:     logger.With().Str("component", "planner").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Suggest returns up to two visit proposals for req.
func (p *Planner) Suggest(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "planner", "planner.Suggest")
	defer span.End()

	group := p.classifier.Classify(req.Address)
	duration := req.Duration
	if duration <= 0 {
		duration = p.duration
	}

	now := p.now().In(p.source.Location())
	today := p.source.DayStart(now)
	first := today.AddDate(0, 0, 1)
	if strings.EqualFold(strings.TrimSpace(req.Urgency), UrgencyHigh) {
		first = today
	}
	last := today.AddDate(0, 0, HorizonDays)

	result := &Result{Group: group, Suggestions: []Suggestion{}}

	// The previous day's appointments feed the group C spacing rule.
	var previous []models.Appointment
	if group == models.GroupC {
		var err error
		previous, err = p.source.DayAppointments(ctx, first.AddDate(0, 0, -1))
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	for day := first; !day.After(last) && len(result.Suggestions) < MaxSuggestions; day = day.AddDate(0, 0, 1) {
		var todays []models.Appointment
		if group == models.GroupC {
			var err error
			todays, err = p.source.DayAppointments(ctx, day)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
		}

		ok, reason := dayAllowed(group, day, todays, previous)
		previous = todays
		if !ok {
			p.logger.Debug().Str("day", day.Format("2006-01-02")).Str("reason", reason).Msg("day skipped")
			continue
		}

		slot, found, err := p.pickSlot(ctx, day, now, group, duration)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if !found {
			continue
		}
		result.Suggestions = append(result.Suggestions, p.suggestion(day, slot, group))
	}

	telemetry.SuggestionsTotal.WithLabelValues(string(group), fmt.Sprint(len(result.Suggestions))).Inc()
	telemetry.AddSpanAttributes(span, map[string]any{
		"group":       string(group),
		"equipment":   req.Equipment,
		"urgency":     req.Urgency,
		"suggestions": len(result.Suggestions),
	})
	return result, nil
}

// dayAllowed applies the logistics day policy. todays and previous are the
// appointments on the day and the day before; only group C looks at them.
func dayAllowed(group models.LogisticsGroup, day time.Time, todays, previous []models.Appointment) (bool, string) {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false, "weekend"
	}
	if group != models.GroupC {
		return true, ""
	}
	if day.Weekday() == time.Monday {
		return false, "monday"
	}
	for _, a := range previous {
		if a.LogisticsGroup == models.GroupC {
			return false, "after_group_c_day"
		}
	}
	for _, a := range todays {
		if a.LogisticsGroup == models.GroupA || a.LogisticsGroup == models.GroupB {
			return false, "shares_day_with_a_b"
		}
	}
	return true, ""
}

func (p *Planner) pickSlot(ctx context.Context, day, now time.Time, group models.LogisticsGroup, duration int) (slots.Interval, bool, error) {
	window, open, err := p.hours.Window(ctx, day)
	if err != nil {
		return slots.Interval{}, false, err
	}
	if !open {
		return slots.Interval{}, false, nil
	}

	// Nothing in the past when today is a candidate.
	if day.Equal(p.source.DayStart(now)) {
		elapsed := slots.MinuteOf(day, now)
		if elapsed+1 > window.Start {
			window.Start = elapsed + 1
		}
		if window.Empty() {
			return slots.Interval{}, false, nil
		}
	}

	busy, err := p.source.Busy(ctx, exclusions.Query{Day: day})
	if err != nil {
		return slots.Interval{}, false, err
	}
	candidates := slots.Calculate(slots.Request{
		Window:   window,
		Duration: duration,
		Grid:     p.grid,
		Busy:     exclusions.Intervals(busy),
	})
	if len(candidates) == 0 {
		return slots.Interval{}, false, nil
	}
	if group == models.GroupC {
		for _, c := range candidates {
			if c.Start >= AfternoonStart {
				return c, true, nil
			}
		}
	}
	return candidates[0], true, nil
}

func (p *Planner) suggestion(day time.Time, slot slots.Interval, group models.LogisticsGroup) Suggestion {
	from, to := slots.FormatClock(slot.Start), slots.FormatClock(slot.End)
	period := "morning"
	if slot.Start >= 12*60 {
		period = "afternoon"
	}
	return Suggestion{
		Date:       day.Format("2006-01-02"),
		WindowText: fmt.Sprintf("%s %s, %s %s-%s", day.Weekday(), day.Format("02/01"), period, from, to),
		From:       from,
		To:         to,
		Group:      group,
		StartsAt:   slots.At(day, slot.Start).UTC(),
		EndsAt:     slots.At(day, slot.End).UTC(),
	}
}
