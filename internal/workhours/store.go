/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package workhours resolves the weekly working window, reading through the
// Redis cache and falling back to the configured default day.
package workhours

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/fieldops/internal/cache"
	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/slots"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalid reports a malformed working-hours update.
var ErrInvalid = errors.New("invalid working hours")

// Store reads and updates working hours.
type Store struct {
	db       *gorm.DB
	cache    *cache.Cache
	bus      events.Publisher
	fallback slots.Interval
	location *time.Location
	logger   zerolog.Logger
}

// NewStore creates a working-hours store. cache and bus may be nil.
func NewStore(database *gorm.DB, c *cache.Cache, bus events.Publisher, fallback slots.Interval, loc *time.Location, logger zerolog.Logger) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		db:       database,
		cache:    c,
		bus:      bus,
		fallback: fallback,
		location: loc,
		logger:   logger.With().Str("component", "workhours").Logger(),
	}
}

// Week returns seven entries, Sunday first. Weekdays without a stored row
// carry the default window.
func (s *Store) Week(ctx context.Context) ([]models.WorkingHours, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}

	week := make([]models.WorkingHours, 7)
	for d := range week {
		week[d] = models.WorkingHours{
			Weekday:   d,
			StartTime: slots.FormatClock(s.fallback.Start),
			EndTime:   slots.FormatClock(s.fallback.End),
		}
	}
	for _, r := range rows {
		if r.Weekday >= 0 && r.Weekday < 7 {
			week[r.Weekday] = r
		}
	}
	return week, nil
}

// Window returns the working window for the local day containing day.
// The boolean is false on closed days.
func (s *Store) Window(ctx context.Context, day time.Time) (slots.Interval, bool, error) {
	week, err := s.Week(ctx)
	if err != nil {
		return slots.Interval{}, false, err
	}
	wh := week[int(day.In(s.location).Weekday())]
	if wh.Closed {
		return slots.Interval{}, false, nil
	}

	iv, err := parse(wh.StartTime, wh.EndTime)
	if err != nil {
		// A bad stored row must not take availability down.
		s.logger.Warn().Err(err).Int("weekday", wh.Weekday).Msg("stored working hours invalid, using default")
		return s.fallback, true, nil
	}
	return iv, true, nil
}

// Set replaces the working hours for one weekday.
func (s *Store) Set(ctx context.Context, weekday int, start, end string, closed bool) (models.WorkingHours, error) {
	if weekday < 0 || weekday > 6 {
		return models.WorkingHours{}, fmt.Errorf("%w: weekday must be 0-6", ErrInvalid)
	}
	if !closed {
		if _, err := parse(start, end); err != nil {
			return models.WorkingHours{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	} else {
		if start == "" {
			start = slots.FormatClock(s.fallback.Start)
		}
		if end == "" {
			end = slots.FormatClock(s.fallback.End)
		}
	}

	row := models.WorkingHours{
		Weekday:   weekday,
		StartTime: start,
		EndTime:   end,
		Closed:    closed,
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "weekday"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "closed", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return models.WorkingHours{}, fmt.Errorf("save working hours: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateWorkingHours(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("invalidate working hours cache failed")
		}
	}
	if s.bus != nil {
		s.bus.Publish(events.EventWorkingHoursUpdated, events.Payload{
			"weekday":    weekday,
			"start_time": start,
			"end_time":   end,
			"closed":     closed,
		})
	}
	return row, nil
}

func (s *Store) rows(ctx context.Context) ([]models.WorkingHours, error) {
	if hours, ok := s.cache.GetWorkingHours(ctx); ok {
		return hours, nil
	}

	var rows []models.WorkingHours
	if err := s.db.WithContext(ctx).Order("weekday ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetWorkingHours(ctx, rows); err != nil {
			s.logger.Debug().Err(err).Msg("cache working hours failed")
		}
	}
	return rows, nil
}

func parse(start, end string) (slots.Interval, error) {
	from, err := slots.ParseClock(start)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("start_time: %w", err)
	}
	to, err := slots.ParseClock(end)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("end_time: %w", err)
	}
	if to <= from {
		return slots.Interval{}, fmt.Errorf("end_time %s not after start_time %s", end, start)
	}
	return slots.Interval{Start: from, End: to}, nil
}
