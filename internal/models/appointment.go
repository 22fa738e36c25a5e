/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of a booked visit.
type AppointmentStatus string

const (
	AppointmentScheduled   AppointmentStatus = "scheduled"
	AppointmentConfirmed   AppointmentStatus = "confirmed"
	AppointmentInProgress  AppointmentStatus = "in_progress"
	AppointmentCompleted   AppointmentStatus = "completed"
	AppointmentCanceled    AppointmentStatus = "canceled"
	AppointmentRescheduled AppointmentStatus = "rescheduled"
)

// LogisticsGroup clusters addresses by travel cost.
type LogisticsGroup string

const (
	GroupA LogisticsGroup = "A"
	GroupB LogisticsGroup = "B"
	GroupC LogisticsGroup = "C"
)

// Valid reports whether g is one of the known groups.
func (g LogisticsGroup) Valid() bool {
	return g == GroupA || g == GroupB || g == GroupC
}

// Appointment is a booked visit occupying [StartsAt, EndsAt).
type Appointment struct {
	ID                 string            `gorm:"type:uuid;primaryKey" json:"id"`
	StartsAt           time.Time         `gorm:"index;not null" json:"starts_at"`
	EndsAt             time.Time         `gorm:"index;not null" json:"ends_at"`
	ClientID           *string           `gorm:"type:uuid;index" json:"client_id,omitempty"`
	ClientName         string            `gorm:"type:varchar(255);not null" json:"client_name"`
	ClientPhone        string            `gorm:"type:varchar(32)" json:"client_phone,omitempty"`
	Address            string            `gorm:"type:text" json:"address,omitempty"`
	ServiceType        string            `gorm:"type:varchar(64)" json:"service_type,omitempty"`
	EquipmentType      string            `gorm:"type:varchar(64)" json:"equipment_type,omitempty"`
	EquipmentBrand     string            `gorm:"type:varchar(64)" json:"equipment_brand,omitempty"`
	TechnicianID       *string           `gorm:"type:uuid;index" json:"technician_id,omitempty"`
	Status             AppointmentStatus `gorm:"type:varchar(32);index;not null;default:scheduled" json:"status"`
	LogisticsGroup     LogisticsGroup    `gorm:"type:varchar(1)" json:"logistics_group,omitempty"`
	IsTest             bool              `gorm:"not null;default:false" json:"is_test"`
	ServiceOrderID     *string           `gorm:"type:uuid;index" json:"service_order_id,omitempty"`
	CancellationReason string            `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Appointment) TableName() string {
	return "appointments"
}

// NewAppointment returns a scheduled appointment with a fresh ID.
func NewAppointment(clientName string, startsAt, endsAt time.Time) *Appointment {
	return &Appointment{
		ID:         uuid.NewString(),
		ClientName: clientName,
		StartsAt:   startsAt.UTC(),
		EndsAt:     endsAt.UTC(),
		Status:     AppointmentScheduled,
	}
}

// Active reports whether the appointment still occupies its interval.
func (a Appointment) Active() bool {
	return a.Status != AppointmentCanceled
}

// Overlaps reports whether a and b share any instant (half-open).
func (a Appointment) Overlaps(b Appointment) bool {
	return a.StartsAt.Before(b.EndsAt) && b.StartsAt.Before(a.EndsAt)
}

// Blackout is an operator-declared window in which nobody may be booked.
type Blackout struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	StartsAt  time.Time `gorm:"index;not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"index;not null" json:"ends_at"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (Blackout) TableName() string {
	return "blackouts"
}

// WorkingHours holds the working window for one weekday (0 = Sunday).
type WorkingHours struct {
	Weekday   int       `gorm:"primaryKey;autoIncrement:false" json:"weekday"`
	StartTime string    `gorm:"type:varchar(5);not null" json:"start_time"` // HH:MM
	EndTime   string    `gorm:"type:varchar(5);not null" json:"end_time"`   // HH:MM
	Closed    bool      `gorm:"not null;default:false" json:"closed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (WorkingHours) TableName() string {
	return "working_hours"
}
