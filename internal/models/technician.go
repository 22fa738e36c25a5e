/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Technician is a field worker that appointments are assigned to.
type Technician struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone,omitempty"`
	Active    bool      `gorm:"not null;default:true;index" json:"active"`
	Skills    []string  `gorm:"type:text;serializer:json" json:"skills,omitempty"`
	Regions   []string  `gorm:"type:text;serializer:json" json:"regions,omitempty"`
	Groups    []string  `gorm:"column:logistics_groups;type:text;serializer:json" json:"groups,omitempty"`
	Weight    *int      `json:"weight,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Technician) TableName() string {
	return "technicians"
}

// RotationCursor persists the round-robin position for one filter scope.
type RotationCursor struct {
	Scope     string    `gorm:"type:varchar(255);primaryKey" json:"scope"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (RotationCursor) TableName() string {
	return "rotation_cursors"
}
