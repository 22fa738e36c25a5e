/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/fieldops/internal/planner"
)

func (a *API) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := strings.TrimSpace(q.Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, "address_required")
		return
	}
	duration, ok := parseMinutes(q.Get("duration_minutes"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_duration")
		return
	}

	res, err := a.planner.Suggest(r.Context(), planner.Request{
		Address:   address,
		Equipment: q.Get("equipment"),
		Urgency:   q.Get("urgency"),
		Duration:  duration,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleBlackoutsList(w http.ResponseWriter, r *http.Request) {
	from, err := a.parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from")
		return
	}
	to, err := a.parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to")
		return
	}

	blackouts, err := a.booking.ListBlackouts(r.Context(), from, to)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blackouts": blackouts})
}

type blackoutRequest struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Reason   string `json:"reason"`
}

func (a *API) handleBlackoutsCreate(w http.ResponseWriter, r *http.Request) {
	var req blackoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	startsAt, err := a.parseTime(req.StartsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_starts_at")
		return
	}
	endsAt, err := a.parseTime(req.EndsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_ends_at")
		return
	}

	b, err := a.booking.CreateBlackout(r.Context(), startsAt, endsAt, req.Reason)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) handleBlackoutsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.booking.DeleteBlackout(r.Context(), chi.URLParam(r, "blackoutID")); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWorkingHoursList(w http.ResponseWriter, r *http.Request) {
	week, err := a.hours.Week(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"working_hours": week})
}

type workingHoursRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Closed    bool   `json:"closed"`
}

func (a *API) handleWorkingHoursUpdate(w http.ResponseWriter, r *http.Request) {
	weekday, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_weekday")
		return
	}
	var req workingHoursRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	row, err := a.hours.Set(r.Context(), weekday, req.StartTime, req.EndTime, req.Closed)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
