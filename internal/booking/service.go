/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package booking ties the scheduling components together: availability,
// booking with technician rotation and conflict checks, cancellation and
// the operator-managed blackouts.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/fieldops/internal/conflicts"
	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/exclusions"
	"github.com/friendsincode/fieldops/internal/logistics"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/orders"
	"github.com/friendsincode/fieldops/internal/rotation"
	"github.com/friendsincode/fieldops/internal/slots"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// HoursSource yields the working window for a day; false means closed.
type HoursSource interface {
	Window(ctx context.Context, day time.Time) (slots.Interval, bool, error)
}

// Deps are the collaborators of a Service. Orders and Bus may be nil.
type Deps struct {
	DB         *gorm.DB
	Source     *exclusions.Source
	Hours      HoursSource
	Rotation   *rotation.Selector
	Checker    *conflicts.Checker
	Orders     *orders.Service
	Classifier *logistics.Classifier
	Bus        events.Publisher

	Grid            int // minutes
	DefaultDuration int // minutes
}

// Service runs availability and booking requests.
type Service struct {
	db         *gorm.DB
	source     *exclusions.Source
	hours      HoursSource
	rotation   *rotation.Selector
	checker    *conflicts.Checker
	orders     *orders.Service
	classifier *logistics.Classifier
	bus        events.Publisher
	grid       int
	duration   int
	logger     zerolog.Logger
}

// NewService creates a booking service.
func NewService(d Deps, logger zerolog.Logger) *Service {
	grid := d.Grid
	if grid <= 0 {
		grid = slots.DefaultGrid
	}
	duration := d.DefaultDuration
	if duration <= 0 {
		duration = 60
	}
	classifier := d.Classifier
	if classifier == nil {
		classifier = logistics.Default()
	}
	return &Service{
		db:         d.DB,
		source:     d.Source,
		hours:      d.Hours,
		rotation:   d.Rotation,
		checker:    d.Checker,
		orders:     d.Orders,
		classifier: classifier,
		bus:        d.Bus,
		grid:       grid,
		duration:   duration,
		logger:     logger.With().Str("component", "booking").Logger(),
	}
}

// AvailabilityRequest selects a day and optional narrowing.
type AvailabilityRequest struct {
	Date         string // YYYY-MM-DD in the business time zone
	TechnicianID string
	Duration     int
	Region       string
	ServiceType  string
}

// Slot is one bookable window rendered in local clock time.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability is the answer to an AvailabilityRequest.
type Availability struct {
	Date   string `json:"date"`
	Closed bool   `json:"closed,omitempty"`
	Slots  []Slot `json:"slots"`
}

// Availability lists the free slots of a day. With a technician only that
// technician's bookings count. With a region or service type, a slot is
// offered when at least one matching technician is free for it.
func (s *Service) Availability(ctx context.Context, req AvailabilityRequest) (*Availability, error) {
	day, err := s.parseDay(req.Date)
	if err != nil {
		return nil, err
	}
	duration := req.Duration
	if duration == 0 {
		duration = s.duration
	}
	if duration < 0 || duration > slots.MinutesPerDay {
		return nil, invalid("invalid_duration", "duration must be between 1 and %d minutes", slots.MinutesPerDay)
	}

	out := &Availability{Date: day.Format(dateLayout), Slots: []Slot{}}

	window, open, err := s.hours.Window(ctx, day)
	if err != nil {
		return nil, err
	}
	if !open {
		out.Closed = true
		return out, nil
	}

	var free []slots.Interval
	switch {
	case req.TechnicianID != "" || (req.Region == "" && req.ServiceType == ""):
		free, err = s.freeSlots(ctx, day, window, duration, req.TechnicianID)
		if err != nil {
			return nil, err
		}
	default:
		free, err = s.freeForAnyCandidate(ctx, day, window, duration, rotation.Filter{Region: req.Region, Skill: req.ServiceType})
		if err != nil {
			return nil, err
		}
	}

	for _, iv := range free {
		out.Slots = append(out.Slots, Slot{Start: slots.FormatClock(iv.Start), End: slots.FormatClock(iv.End)})
	}
	telemetry.SlotsOffered.Observe(float64(len(out.Slots)))
	return out, nil
}

func (s *Service) freeSlots(ctx context.Context, day time.Time, window slots.Interval, duration int, technicianID string) ([]slots.Interval, error) {
	busy, err := s.source.Busy(ctx, exclusions.Query{Day: day, TechnicianID: technicianID})
	if err != nil {
		return nil, err
	}
	return slots.Calculate(slots.Request{
		Window:   window,
		Duration: duration,
		Grid:     s.grid,
		Busy:     exclusions.Intervals(busy),
	}), nil
}

func (s *Service) freeForAnyCandidate(ctx context.Context, day time.Time, window slots.Interval, duration int, f rotation.Filter) ([]slots.Interval, error) {
	candidates, err := s.rotation.Candidates(ctx, f)
	if err != nil {
		return nil, err
	}

	seen := make(map[slots.Interval]bool)
	for _, tech := range candidates {
		free, err := s.freeSlots(ctx, day, window, duration, tech.ID)
		if err != nil {
			return nil, err
		}
		for _, iv := range free {
			seen[iv] = true
		}
	}

	// Same grid for every technician, so walking the grid keeps the order.
	var out []slots.Interval
	for t := slots.AlignUp(window.Start, s.grid); t+duration <= window.End; t += s.grid {
		iv := slots.Interval{Start: t, End: t + duration}
		if seen[iv] {
			out = append(out, iv)
		}
	}
	return out, nil
}

// BookRequest describes a new appointment.
type BookRequest struct {
	ClientName     string
	ClientPhone    string
	ClientID       *string
	Address        string
	ServiceType    string
	EquipmentType  string
	EquipmentBrand string

	StartsAt time.Time
	Duration int // minutes, zero uses the default

	// TechnicianID is a hint; it is used when that technician is active
	// and free, otherwise rotation picks.
	TechnicianID string
	Region       string
	Group        string
	Skill        string

	ServiceOrderID *string
	IsTest         bool
	Author         string
}

// BookResult is the persisted appointment plus advisory findings.
type BookResult struct {
	Appointment models.Appointment `json:"appointment"`
	Conflicts   conflicts.Result   `json:"conflicts"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// Book validates req, assigns a technician, stores the appointment and runs
// the conflict check. Conflicts never fail the booking.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "booking", "booking.Book")
	defer span.End()

	if err := s.validate(&req); err != nil {
		telemetry.BookingsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if req.ServiceOrderID != nil && s.orders != nil {
		if _, err := s.orders.Get(ctx, *req.ServiceOrderID); err != nil {
			return nil, err
		}
	}

	appt := models.NewAppointment(req.ClientName, req.StartsAt, req.StartsAt.Add(time.Duration(req.Duration)*time.Minute))
	appt.ClientID = req.ClientID
	appt.ClientPhone = req.ClientPhone
	appt.Address = req.Address
	appt.ServiceType = req.ServiceType
	appt.EquipmentType = req.EquipmentType
	appt.EquipmentBrand = req.EquipmentBrand
	appt.LogisticsGroup = s.classifier.Classify(req.Address)
	appt.IsTest = req.IsTest
	appt.ServiceOrderID = req.ServiceOrderID

	var warnings []string
	tech, err := s.assign(ctx, req, *appt)
	switch {
	case errors.Is(err, rotation.ErrContention):
		warnings = append(warnings, "technician rotation busy, booked unassigned")
		s.logger.Warn().Err(err).Msg("rotation contention, booking unassigned")
	case err != nil:
		telemetry.RecordError(span, err)
		return nil, err
	}
	if tech != nil {
		appt.TechnicianID = &tech.ID
	} else if err == nil && !req.IsTest {
		warnings = append(warnings, "no technician available, booked unassigned")
	}

	if err := s.db.WithContext(ctx).Create(appt).Error; err != nil {
		telemetry.RecordError(span, err)
		telemetry.BookingsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	result := &BookResult{Appointment: *appt}

	check, err := s.checker.Check(ctx, *appt)
	if err != nil {
		// The booking stands; the check can be re-run on demand.
		s.logger.Error().Err(err).Str("appointment_id", appt.ID).Msg("conflict check failed")
		warnings = append(warnings, "conflict check unavailable")
		check = conflicts.Result{AppointmentID: appt.ID, ConflictIDs: []string{}}
	}
	result.Conflicts = check

	if req.ServiceOrderID != nil && s.orders != nil {
		if w := s.scheduleOrder(ctx, *req.ServiceOrderID, appt, req.Author); w != "" {
			warnings = append(warnings, w)
		}
	}
	result.Warnings = warnings

	outcome := "assigned"
	switch {
	case appt.TechnicianID == nil:
		outcome = "unassigned"
	case check.HasConflicts:
		outcome = "conflict"
	}
	telemetry.BookingsTotal.WithLabelValues(outcome).Inc()

	s.publish(events.EventAppointmentBooked, appointmentPayload(*appt))
	if check.HasConflicts {
		payload := appointmentPayload(*appt)
		payload["conflict_ids"] = check.ConflictIDs
		s.publish(events.EventAppointmentConflict, payload)
	}

	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("group", string(appt.LogisticsGroup)).
		Str("outcome", outcome).
		Msg("appointment booked")
	return result, nil
}

func (s *Service) validate(req *BookRequest) error {
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" {
		return invalid("client_name_required", "client name is required")
	}
	if req.StartsAt.IsZero() {
		return invalid("invalid_start", "start time is required")
	}
	if req.Duration == 0 {
		req.Duration = s.duration
	}
	if req.Duration < 0 || req.Duration > slots.MinutesPerDay {
		return invalid("invalid_duration", "duration must be between 1 and %d minutes", slots.MinutesPerDay)
	}
	if req.Group != "" && !models.LogisticsGroup(strings.ToUpper(req.Group)).Valid() {
		return invalid("invalid_group", "group must be A, B or C")
	}
	return nil
}

// assign honors the technician hint when possible and falls back to rotation.
func (s *Service) assign(ctx context.Context, req BookRequest, appt models.Appointment) (*models.Technician, error) {
	if req.TechnicianID != "" {
		tech, free, err := s.hintAvailable(ctx, req.TechnicianID, appt)
		if err != nil {
			return nil, err
		}
		if free {
			return tech, nil
		}
		s.logger.Debug().Str("technician_id", req.TechnicianID).Msg("hinted technician unavailable, using rotation")
	}
	// Test bookings leave the rotation cursor where it is.
	if s.rotation == nil || req.IsTest {
		return nil, nil
	}
	return s.rotation.Next(ctx, rotation.Filter{Region: req.Region, Group: strings.ToUpper(req.Group), Skill: req.Skill})
}

func (s *Service) hintAvailable(ctx context.Context, technicianID string, appt models.Appointment) (*models.Technician, bool, error) {
	var tech models.Technician
	err := s.db.WithContext(ctx).Where("id = ?", technicianID).Take(&tech).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load technician: %w", err)
	}
	if !tech.Active {
		return nil, false, nil
	}

	busy, err := s.source.Busy(ctx, exclusions.Query{Day: appt.StartsAt, TechnicianID: technicianID})
	if err != nil {
		return nil, false, err
	}
	dayStart := s.source.DayStart(appt.StartsAt)
	want, ok := slots.Clip(dayStart, appt.StartsAt, appt.EndsAt)
	if !ok {
		return &tech, true, nil
	}
	for _, b := range busy {
		if b.Kind == exclusions.KindAppointment && b.Overlaps(want) {
			return &tech, false, nil
		}
	}
	return &tech, true, nil
}

// scheduleOrder moves a linked order to scheduled when the workflow allows
// it. Failures become warnings; the appointment is already stored.
func (s *Service) scheduleOrder(ctx context.Context, orderID string, appt *models.Appointment, author string) string {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID).Msg("load linked order failed")
		return "linked service order could not be loaded"
	}
	if order.Status == models.OrderScheduled || !orders.CanTransition(order.Status, models.OrderScheduled) {
		return ""
	}

	_, err = s.orders.Transition(ctx, orders.Request{
		OrderID: orderID,
		Status:  string(models.OrderScheduled),
		Notes:   fmt.Sprintf("visit booked for %s", appt.StartsAt.In(s.source.Location()).Format("2006-01-02 15:04")),
		Author:  author,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID).Msg("schedule linked order failed")
		return "linked service order status not updated"
	}
	return ""
}

// Get loads an appointment.
func (s *Service) Get(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return &appt, nil
}

// Cancel marks an appointment canceled. Canceling twice returns the stored
// appointment unchanged; completed visits cannot be canceled.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*models.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("cancellation_reason_required", "a cancellation reason is required")
	}

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case models.AppointmentCanceled:
		return appt, nil
	case models.AppointmentCompleted:
		return nil, ErrNotCancelable
	}

	res := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND status = ?", appt.ID, appt.Status).
		Updates(map[string]any{
			"status":              models.AppointmentCanceled,
			"cancellation_reason": reason,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("cancel appointment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Someone else moved it first; report what is stored now.
		return s.Get(ctx, id)
	}

	appt.Status = models.AppointmentCanceled
	appt.CancellationReason = reason

	payload := appointmentPayload(*appt)
	payload["reason"] = reason
	s.publish(events.EventAppointmentCanceled, payload)
	return appt, nil
}

// Conflicts re-runs the conflict check for a stored appointment.
func (s *Service) Conflicts(ctx context.Context, id string) (conflicts.Result, error) {
	appt, err := s.Get(ctx, id)
	if err != nil {
		return conflicts.Result{}, err
	}
	return s.checker.Check(ctx, *appt)
}

func (s *Service) parseDay(value string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), s.source.Location())
	if err != nil {
		return time.Time{}, invalid("invalid_date", "date must be YYYY-MM-DD")
	}
	return day, nil
}

func (s *Service) publish(t events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(t, payload)
	}
}

func appointmentPayload(a models.Appointment) events.Payload {
	p := events.Payload{
		"appointment_id":  a.ID,
		"starts_at":       a.StartsAt,
		"ends_at":         a.EndsAt,
		"status":          string(a.Status),
		"logistics_group": string(a.LogisticsGroup),
		"is_test":         a.IsTest,
	}
	if a.TechnicianID != nil {
		p["technician_id"] = *a.TechnicianID
	}
	if a.ServiceOrderID != nil {
		p["service_order_id"] = *a.ServiceOrderID
	}
	return p
}
