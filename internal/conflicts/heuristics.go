/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package conflicts

import (
	"regexp"
	"strings"

	"github.com/friendsincode/fieldops/internal/models"
)

var (
	defaultPickupKeywords = []string{"coleta", "pickup", "pick-up", "retirada"}

	// Unit markers used in Brazilian and English street addresses.
	multiUnitPattern = regexp.MustCompile(`(?i)(^|[\s,;/-])(apto?|apartamento|bloco|bl|torre|sala|conjunto|cj|edif[ií]cio|ed|condom[ií]nio|cond|unit|suite|flat)(\.|\s|\d|$)`)
)

// MultiUnitPickup warns when equipment is to be collected from a building
// with several units, where crews often lose time getting access.
type MultiUnitPickup struct {
	keywords []string
}

// NewMultiUnitPickup returns the heuristic with the default pickup keywords.
func NewMultiUnitPickup(keywords ...string) *MultiUnitPickup {
	if len(keywords) == 0 {
		keywords = defaultPickupKeywords
	}
	return &MultiUnitPickup{keywords: keywords}
}

// Name implements Heuristic.
func (h *MultiUnitPickup) Name() string { return "multi_unit_pickup" }

// Inspect implements Heuristic.
func (h *MultiUnitPickup) Inspect(appt models.Appointment) (string, bool) {
	if !h.isPickup(appt.ServiceType) || !multiUnitPattern.MatchString(appt.Address) {
		return "", false
	}
	return "pickup at a multi-unit address: confirm building access and unit number with the client", true
}

func (h *MultiUnitPickup) isPickup(serviceType string) bool {
	st := strings.ToLower(serviceType)
	for _, k := range h.keywords {
		if strings.Contains(st, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
