/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the workflow state of a service order.
type OrderStatus string

const (
	OrderPending          OrderStatus = "pending"
	OrderScheduled        OrderStatus = "scheduled"
	OrderInProgress       OrderStatus = "in_progress"
	OrderDiagnosis        OrderStatus = "diagnosis"
	OrderAwaitingParts    OrderStatus = "awaiting_parts"
	OrderAwaitingApproval OrderStatus = "awaiting_approval"
	OrderRepair           OrderStatus = "repair"
	OrderTesting          OrderStatus = "testing"
	OrderCompleted        OrderStatus = "completed"
	OrderDelivered        OrderStatus = "delivered"
	OrderCanceled         OrderStatus = "canceled"
	OrderReturned         OrderStatus = "returned"
)

// OrderStatuses lists every status in workflow order.
var OrderStatuses = []OrderStatus{
	OrderPending,
	OrderScheduled,
	OrderInProgress,
	OrderDiagnosis,
	OrderAwaitingParts,
	OrderAwaitingApproval,
	OrderRepair,
	OrderTesting,
	OrderCompleted,
	OrderDelivered,
	OrderCanceled,
	OrderReturned,
}

// ServiceOrder is a repair or maintenance job that moves through OrderStatus.
type ServiceOrder struct {
	ID                 string      `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID           *string     `gorm:"type:uuid;index" json:"client_id,omitempty"`
	Description        string      `gorm:"type:text" json:"description,omitempty"`
	Status             OrderStatus `gorm:"type:varchar(32);index;not null;default:pending" json:"status"`
	CancellationReason *string     `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CompletedDate      *time.Time  `json:"completed_date,omitempty"`
	LastProgressID     *string     `gorm:"type:uuid" json:"last_progress_id,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ServiceOrder) TableName() string {
	return "service_orders"
}

// NewServiceOrder creates a pending order.
func NewServiceOrder(description string) *ServiceOrder {
	return &ServiceOrder{
		ID:          uuid.NewString(),
		Description: description,
		Status:      OrderPending,
	}
}

// ProgressEntry is one append-only line of a service order's history.
type ProgressEntry struct {
	ID             string      `gorm:"type:uuid;primaryKey" json:"id"`
	ServiceOrderID string      `gorm:"type:uuid;index;not null" json:"service_order_id"`
	Status         OrderStatus `gorm:"type:varchar(32);not null" json:"status"`
	Notes          string      `gorm:"type:text" json:"notes"`
	Author         string      `gorm:"type:varchar(255)" json:"author,omitempty"`
	CreatedAt      time.Time   `gorm:"index" json:"created_at"`
}

// TableName returns the table name for GORM.
func (ProgressEntry) TableName() string {
	return "service_order_progress"
}

// NotificationDelivery records an outbound status-change notification attempt.
type NotificationDelivery struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Target      string    `gorm:"type:varchar(512);not null" json:"target"`
	Event       string    `gorm:"type:varchar(64);not null" json:"event"`
	ReferenceID string    `gorm:"type:varchar(64);index" json:"reference_id"`
	Payload     string    `gorm:"type:text;not null" json:"payload"`
	StatusCode  int       `json:"status_code"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	Duration    int       `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (NotificationDelivery) TableName() string {
	return "notification_deliveries"
}
