/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package orders owns the service-order workflow: which status may follow
// which, and the progress log written on every change.
package orders

import (
	"fmt"
	"strings"

	"github.com/friendsincode/fieldops/internal/models"
)

// Status aliases the persisted order status.
type Status = models.OrderStatus

// Transitions returns the statuses reachable from s in one step. Terminal and
// unknown statuses have none.
func Transitions(s Status) []Status {
	switch s {
	case models.OrderPending:
		return []Status{models.OrderScheduled, models.OrderInProgress, models.OrderCanceled}
	case models.OrderScheduled:
		return []Status{models.OrderPending, models.OrderInProgress, models.OrderDiagnosis, models.OrderCanceled}
	case models.OrderInProgress:
		return []Status{models.OrderDiagnosis, models.OrderAwaitingParts, models.OrderRepair, models.OrderCompleted, models.OrderCanceled}
	case models.OrderDiagnosis:
		return []Status{models.OrderAwaitingApproval, models.OrderAwaitingParts, models.OrderRepair, models.OrderCanceled, models.OrderReturned}
	case models.OrderAwaitingParts:
		return []Status{models.OrderRepair, models.OrderCanceled}
	case models.OrderAwaitingApproval:
		return []Status{models.OrderAwaitingParts, models.OrderRepair, models.OrderCanceled, models.OrderReturned}
	case models.OrderRepair:
		return []Status{models.OrderTesting, models.OrderCompleted, models.OrderCanceled}
	case models.OrderTesting:
		return []Status{models.OrderRepair, models.OrderCompleted, models.OrderCanceled}
	case models.OrderCompleted:
		return []Status{models.OrderDelivered, models.OrderReturned}
	case models.OrderDelivered, models.OrderCanceled, models.OrderReturned:
		return nil
	default:
		return nil
	}
}

// CanTransition reports whether to may follow from. Staying put is always allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return Known(from)
	}
	for _, next := range Transitions(from) {
		if next == to {
			return true
		}
	}
	return false
}

// Known reports whether s is one of the workflow statuses.
func Known(s Status) bool {
	for _, candidate := range models.OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func Terminal(s Status) bool {
	return Known(s) && len(Transitions(s)) == 0
}

// ParseStatus normalises user input into a Status.
func ParseStatus(value string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(value)))
	if s == "cancelled" {
		s = models.OrderCanceled
	}
	if !Known(s) {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return s, nil
}
