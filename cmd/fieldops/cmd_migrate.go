/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/fieldops/internal/db"
)

var migrateCheckOnly bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Apply the schema migrations without starting the server.

Examples:
  # Migrate the configured database
  fieldops migrate

  # Only report which optional columns the current schema has
  fieldops migrate --check
`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateCheckOnly, "check", false, "Report schema capabilities without migrating")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	if !migrateCheckOnly {
		if err := db.Migrate(database); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Str("backend", string(cfg.DBBackend)).Msg("schema migrated")
	}

	caps := db.DetectCapabilities(database, logger)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "appointments.is_test          %v\n", caps.AppointmentIsTest)
	fmt.Fprintf(out, "technicians.skills            %v\n", caps.TechnicianSkills)
	fmt.Fprintf(out, "technicians.regions           %v\n", caps.TechnicianRegions)
	fmt.Fprintf(out, "technicians.logistics_groups  %v\n", caps.TechnicianGroups)
	fmt.Fprintf(out, "technicians.weight            %v\n", caps.TechnicianWeight)
	fmt.Fprintf(out, "technicians.updated_at        %v\n", caps.TechnicianModified)
	return nil
}
