/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/fieldops/internal/orders"
)

type orderCreateRequest struct {
	Description string  `json:"description"`
	ClientID    *string `json:"client_id"`
	Author      string  `json:"author"`
}

func (a *API) handleOrdersCreate(w http.ResponseWriter, r *http.Request) {
	var req orderCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description_required")
		return
	}

	order, err := a.orders.Create(r.Context(), req.Description, emptyToNil(req.ClientID), req.Author)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (a *API) handleOrdersGet(w http.ResponseWriter, r *http.Request) {
	order, err := a.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type statusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
	Author string `json:"author"`
}

func (a *API) handleOrdersStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		writeError(w, http.StatusBadRequest, "status_required")
		return
	}

	change, err := a.orders.Transition(r.Context(), orders.Request{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
		Notes:   req.Notes,
		Reason:  req.Reason,
		Author:  req.Author,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (a *API) handleOrdersProgress(w http.ResponseWriter, r *http.Request) {
	entries, err := a.orders.Progress(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": entries})
}
