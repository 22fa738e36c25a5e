/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/fieldops/internal/booking"
	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/orders"
	"github.com/friendsincode/fieldops/internal/planner"
	"github.com/friendsincode/fieldops/internal/workhours"
)

// API exposes HTTP handlers.
type API struct {
	booking  *booking.Service
	orders   *orders.Service
	planner  *planner.Planner
	hours    *workhours.Store
	bus      events.Broker
	location *time.Location
	logger   zerolog.Logger
}

// Deps are the services behind the handlers.
type Deps struct {
	Booking  *booking.Service
	Orders   *orders.Service
	Planner  *planner.Planner
	Hours    *workhours.Store
	Bus      events.Broker
	Location *time.Location
}

// New creates the API router wrapper.
func New(d Deps, logger zerolog.Logger) *API {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	return &API{
		booking:  d.Booking,
		orders:   d.Orders,
		planner:  d.Planner,
		hours:    d.Hours,
		bus:      d.Bus,
		location: loc,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers the request/response endpoints.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/availability", a.handleAvailability)

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", a.handleAppointmentsCreate)
			r.Route("/{appointmentID}", func(r chi.Router) {
				r.Get("/", a.handleAppointmentsGet)
				r.Post("/cancel", a.handleAppointmentsCancel)
				r.Get("/conflicts", a.handleAppointmentsConflicts)
			})
		})

		r.Route("/service-orders", func(r chi.Router) {
			r.Post("/", a.handleOrdersCreate)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", a.handleOrdersGet)
				r.Post("/status", a.handleOrdersStatus)
				r.Get("/progress", a.handleOrdersProgress)
			})
		})

		r.Get("/suggestions", a.handleSuggestions)

		r.Route("/blackouts", func(r chi.Router) {
			r.Get("/", a.handleBlackoutsList)
			r.Post("/", a.handleBlackoutsCreate)
			r.Delete("/{blackoutID}", a.handleBlackoutsDelete)
		})

		r.Route("/working-hours", func(r chi.Router) {
			r.Get("/", a.handleWorkingHoursList)
			r.Put("/{weekday}", a.handleWorkingHoursUpdate)
		})
	})
}

// StreamRoutes registers long-lived endpoints that must not sit behind the
// request timeout.
func (a *API) StreamRoutes(r chi.Router) {
	r.Get("/api/v1/events", a.handleEvents)
}

// writeServiceError maps service errors onto status codes and reason codes.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *booking.ValidationError
	var te *orders.TransitionError
	switch {
	case errors.As(err, &ve):
		status := http.StatusBadRequest
		if ve.Code == "cancellation_reason_required" {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": ve.Code, "message": ve.Message})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "illegal_transition",
			"from":  string(te.From),
			"to":    string(te.To),
		})
	case errors.Is(err, orders.ErrReasonRequired):
		writeError(w, http.StatusUnprocessableEntity, "cancellation_reason_required")
	case errors.Is(err, orders.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, "unknown_status")
	case errors.Is(err, workhours.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_working_hours", "message": err.Error()})
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "service_order_not_found")
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found")
	case errors.Is(err, booking.ErrBlackoutNotFound):
		writeError(w, http.StatusNotFound, "blackout_not_found")
	case errors.Is(err, booking.ErrNotCancelable):
		writeError(w, http.StatusConflict, "not_cancelable")
	case errors.Is(err, orders.ErrConcurrentUpdate):
		writeError(w, http.StatusConflict, "concurrent_update")
	default:
		a.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dest)
}

// parseTime accepts RFC3339 or a bare date, which means local midnight.
func (a *API) parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", value, a.location)
}

func parseMinutes(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
