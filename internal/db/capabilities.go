/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Capabilities records which optional columns the connected schema carries.
// Older deployments predate some of them; callers skip the matching filters
// instead of probing on every query.
type Capabilities struct {
	AppointmentIsTest  bool
	TechnicianSkills   bool
	TechnicianRegions  bool
	TechnicianGroups   bool
	TechnicianWeight   bool
	TechnicianModified bool
}

// AllCapabilities describes a fully migrated schema.
func AllCapabilities() Capabilities {
	return Capabilities{
		AppointmentIsTest:  true,
		TechnicianSkills:   true,
		TechnicianRegions:  true,
		TechnicianGroups:   true,
		TechnicianWeight:   true,
		TechnicianModified: true,
	}
}

// DetectCapabilities inspects the schema once. Run it at startup and pass the
// result to the components that need it.
func DetectCapabilities(database *gorm.DB, logger zerolog.Logger) Capabilities {
	m := database.Migrator()
	caps := Capabilities{
		AppointmentIsTest:  m.HasColumn(&models.Appointment{}, "is_test"),
		TechnicianSkills:   m.HasColumn(&models.Technician{}, "skills"),
		TechnicianRegions:  m.HasColumn(&models.Technician{}, "regions"),
		TechnicianGroups:   m.HasColumn(&models.Technician{}, "logistics_groups"),
		TechnicianWeight:   m.HasColumn(&models.Technician{}, "weight"),
		TechnicianModified: m.HasColumn(&models.Technician{}, "updated_at"),
	}

	logger.Info().
		Bool("appointment_is_test", caps.AppointmentIsTest).
		Bool("technician_skills", caps.TechnicianSkills).
		Bool("technician_regions", caps.TechnicianRegions).
		Bool("technician_groups", caps.TechnicianGroups).
		Bool("technician_weight", caps.TechnicianWeight).
		Msg("schema capabilities detected")

	return caps
}
