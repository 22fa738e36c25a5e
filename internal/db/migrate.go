/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/fieldops/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Scheduling
		&models.Appointment{},
		&models.Blackout{},
		&models.WorkingHours{},

		// Dispatch
		&models.Technician{},
		&models.RotationCursor{},

		// Service orders
		&models.ServiceOrder{},
		&models.ProgressEntry{},
		&models.NotificationDelivery{},
	); err != nil {
		return err
	}

	if err := applyPostgresIntervalGuards(database); err != nil {
		return err
	}
	if err := normalizeLegacyStatuses(database); err != nil {
		return err
	}
	if err := seedGlobalRotationCursor(database); err != nil {
		return err
	}

	return nil
}

// GlobalRotationScope is the cursor scope used when no filter is applied.
const GlobalRotationScope = "all"

func seedGlobalRotationCursor(database *gorm.DB) error {
	cursor := models.RotationCursor{Scope: GlobalRotationScope}
	if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&cursor).Error; err != nil {
		return fmt.Errorf("seed rotation cursor: %w", err)
	}
	return nil
}

func applyPostgresIntervalGuards(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
DO $$
BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_appointments_interval') THEN
    ALTER TABLE appointments ADD CONSTRAINT chk_appointments_interval CHECK (ends_at > starts_at);
  END IF;
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_blackouts_interval') THEN
    ALTER TABLE blackouts ADD CONSTRAINT chk_blackouts_interval CHECK (ends_at > starts_at);
  END IF;
END;
$$;
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres interval guards: %w", err)
	}

	return nil
}

// normalizeLegacyStatuses rewrites the British spelling some older clients
// stored for cancellation.
func normalizeLegacyStatuses(database *gorm.DB) error {
	if err := database.Exec("UPDATE appointments SET status = ? WHERE LOWER(TRIM(status)) = ?", models.AppointmentCanceled, "cancelled").Error; err != nil {
		return fmt.Errorf("normalize legacy appointment status: %w", err)
	}
	if err := database.Exec("UPDATE service_orders SET status = ? WHERE LOWER(TRIM(status)) = ?", models.OrderCanceled, "cancelled").Error; err != nil {
		return fmt.Errorf("normalize legacy service order status: %w", err)
	}
	return nil
}
