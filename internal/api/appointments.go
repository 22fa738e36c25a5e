/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/fieldops/internal/booking"
	"github.com/friendsincode/fieldops/internal/slots"
)

func (a *API) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	duration, ok := parseMinutes(q.Get("duration_minutes"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	}

	res, err := a.booking.Availability(r.Context(), booking.AvailabilityRequest{
		Date:         q.Get("date"),
		TechnicianID: q.Get("technician_id"),
		Duration:     duration,
		Region:       q.Get("region"),
		ServiceType:  q.Get("service_type"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type bookRequest struct {
	ClientName     string  `json:"client_name"`
	ClientPhone    string  `json:"client_phone"`
	ClientID       *string `json:"client_id"`
	Address        string  `json:"address"`
	ServiceType    string  `json:"service_type"`
	EquipmentType  string  `json:"equipment_type"`
	EquipmentBrand string  `json:"equipment_brand"`

	// Either starts_at (RFC3339) or date plus start ("HH:MM", business zone).
	// The end follows the same form and overrides duration_minutes.
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Date     string `json:"date"`
	Start    string `json:"start"`
	End      string `json:"end"`

	DurationMinutes int     `json:"duration_minutes"`
	TechnicianID    string  `json:"technician_id"`
	Region          string  `json:"region"`
	Group           string  `json:"group"`
	Skill           string  `json:"skill"`
	ServiceOrderID  *string `json:"service_order_id"`
	IsTest          bool    `json:"is_test"`
	Author          string  `json:"author"`
}

func (a *API) handleAppointmentsCreate(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	startsAt, code := a.bookingStart(req)
	if code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}
	duration, code := a.bookingDuration(req, startsAt)
	if code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}

	res, err := a.booking.Book(r.Context(), booking.BookRequest{
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		ClientID:       emptyToNil(req.ClientID),
		Address:        req.Address,
		ServiceType:    req.ServiceType,
		EquipmentType:  req.EquipmentType,
		EquipmentBrand: req.EquipmentBrand,
		StartsAt:       startsAt,
		Duration:       duration,
		TechnicianID:   req.TechnicianID,
		Region:         req.Region,
		Group:          req.Group,
		Skill:          req.Skill,
		ServiceOrderID: emptyToNil(req.ServiceOrderID),
		IsTest:         req.IsTest,
		Author:         req.Author,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// bookingStart resolves the requested start. A missing start is left to the
// booking service to reject; a malformed one is rejected here.
func (a *API) bookingStart(req bookRequest) (time.Time, string) {
	if s := strings.TrimSpace(req.StartsAt); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, "invalid_start"
		}
		return t, ""
	}
	if strings.TrimSpace(req.Date) == "" && strings.TrimSpace(req.Start) == "" {
		return time.Time{}, ""
	}
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), a.location)
	if err != nil {
		return time.Time{}, "invalid_date"
	}
	minute, err := slots.ParseClock(req.Start)
	if err != nil {
		return time.Time{}, "invalid_start"
	}
	return slots.At(day, minute), ""
}

// bookingDuration derives the duration from an explicit end when one is sent.
func (a *API) bookingDuration(req bookRequest, startsAt time.Time) (int, string) {
	var endsAt time.Time
	switch {
	case strings.TrimSpace(req.EndsAt) != "":
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(req.EndsAt))
		if err != nil {
			return 0, "invalid_end"
		}
		endsAt = t
	case strings.TrimSpace(req.End) != "":
		day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), a.location)
		if err != nil {
			return 0, "invalid_date"
		}
		minute, err := slots.ParseClock(req.End)
		if err != nil {
			return 0, "invalid_end"
		}
		endsAt = slots.At(day, minute)
	default:
		return req.DurationMinutes, ""
	}

	if startsAt.IsZero() || !endsAt.After(startsAt) {
		return 0, "invalid_end"
	}
	span := endsAt.Sub(startsAt)
	if span%time.Minute != 0 {
		return 0, "invalid_end"
	}
	minutes := int(span / time.Minute)
	if req.DurationMinutes != 0 && req.DurationMinutes != minutes {
		return 0, "invalid_end"
	}
	return minutes, ""
}

func (a *API) handleAppointmentsGet(w http.ResponseWriter, r *http.Request) {
	appt, err := a.booking.Get(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleAppointmentsCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	appt, err := a.booking.Cancel(r.Context(), chi.URLParam(r, "appointmentID"), req.Reason)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (a *API) handleAppointmentsConflicts(w http.ResponseWriter, r *http.Request) {
	res, err := a.booking.Conflicts(r.Context(), chi.URLParam(r, "appointmentID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
