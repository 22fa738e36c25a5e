/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slots computes bookable start times inside a working window.
//
// Everything here works on minutes since local midnight and is free of I/O,
// so callers resolve dates, time zones and busy sources before calling in.
package slots

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultGrid is the slot granularity in minutes when none is configured.
const DefaultGrid = 60

// MinutesPerDay bounds every day-scoped interval.
const MinutesPerDay = 24 * 60

// Interval is a half-open range [Start, End) in minutes since midnight.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether the interval covers no time.
func (i Interval) Empty() bool {
	return i.End <= i.Start
}

// Overlaps reports whether two half-open intervals share any minute.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// String renders the interval as "HH:MM-HH:MM".
func (i Interval) String() string {
	return FormatClock(i.Start) + "-" + FormatClock(i.End)
}

// Overlaps is the half-open overlap test for [a,b) and [c,d).
func Overlaps(a, b, c, d int) bool {
	return a < d && c < b
}

// AlignUp rounds minute up to the next multiple of grid.
func AlignUp(minute, grid int) int {
	if grid <= 0 {
		return minute
	}
	if r := minute % grid; r != 0 {
		if minute < 0 {
			return minute - r
		}
		return minute + grid - r
	}
	return minute
}

// Request describes one day's slot computation.
type Request struct {
	Window   Interval   // working hours for the day
	Duration int        // appointment length in minutes
	Grid     int        // step between candidate starts
	Busy     []Interval // appointments, blackouts and breaks already clipped to the day
}

// Calculate returns the candidate slots for req in ascending order.
//
// Candidates start at the first grid point inside the window and advance by
// the grid, not by the duration. A candidate survives when it ends inside the
// window and overlaps no busy interval.
func Calculate(req Request) []Interval {
	if req.Duration <= 0 || req.Window.Empty() {
		return nil
	}
	grid := req.Grid
	if grid <= 0 {
		grid = DefaultGrid
	}

	busy := make([]Interval, 0, len(req.Busy))
	for _, b := range req.Busy {
		if !b.Empty() && b.Overlaps(req.Window) {
			busy = append(busy, b)
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start < busy[j].Start })

	var out []Interval
	for t := AlignUp(req.Window.Start, grid); t+req.Duration <= req.Window.End; t += grid {
		candidate := Interval{Start: t, End: t + req.Duration}
		if !collides(candidate, busy) {
			out = append(out, candidate)
		}
	}
	return out
}

func collides(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if b.Start >= candidate.End {
			return false
		}
		if candidate.Overlaps(b) {
			return true
		}
	}
	return false
}

// Clip converts the timestamp range [from, to) into wall-clock minutes on
// the day that starts at dayStart, clamped to the day. ok is false when
// nothing of the range falls on the day.
func Clip(dayStart, from, to time.Time) (Interval, bool) {
	iv := Interval{Start: MinuteOf(dayStart, from), End: minuteOf(dayStart, to, true)}
	if iv.Empty() {
		return Interval{}, false
	}
	return iv, true
}

// MinuteOf returns the wall-clock minute of t on the day that starts at
// dayStart, in dayStart's location. Instants before the day map to 0 and
// instants after it to MinutesPerDay.
func MinuteOf(dayStart, t time.Time) int {
	return minuteOf(dayStart, t, false)
}

func minuteOf(dayStart, t time.Time, roundUp bool) int {
	if !t.After(dayStart) {
		return 0
	}
	loc := dayStart.Location()
	next := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day()+1, 0, 0, 0, 0, loc)
	if !t.Before(next) {
		return MinutesPerDay
	}
	local := t.In(loc)
	m := local.Hour()*60 + local.Minute()
	if roundUp && (local.Second() != 0 || local.Nanosecond() != 0) {
		m++
	}
	return m
}

// At returns the instant for the wall-clock minute on the day that starts at
// dayStart. MinutesPerDay is the following midnight.
func At(dayStart time.Time, minute int) time.Time {
	return time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), 0, minute, 0, 0, dayStart.Location())
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is accepted
// as the end of the day.
func ParseClock(value string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", value)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", value, err)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || hours > 24 || (hours == 24 && minutes != 0) {
		return 0, fmt.Errorf("invalid clock %q: out of range", value)
	}
	return hours*60 + minutes, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
