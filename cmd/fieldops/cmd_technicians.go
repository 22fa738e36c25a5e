/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/models"
)

var technicianCmd = &cobra.Command{
	Use:   "technicians",
	Short: "Manage the technician roster",
}

var technicianImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Create or update technicians from a YAML roster",
	Long: `Create or update technicians from a YAML roster file.

Entries are matched by id, then by name. Unknown technicians are created.

Example roster:
  technicians:
    - name: Ana
      skills: [washer, dryer]
      regions: [north]
      groups: [A, B]
    - name: Bruno
      active: false

Examples:
  # Preview the changes
  fieldops technicians import --file roster.yaml --dry-run

  # Apply them
  fieldops technicians import --file roster.yaml
`,
	RunE: runTechnicianImport,
}

var technicianListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the technician roster",
	RunE:  runTechnicianList,
}

var (
	rosterPath   string
	rosterDryRun bool
)

func init() {
	technicianImportCmd.Flags().StringVar(&rosterPath, "file", "", "Path to the roster YAML file (required)")
	technicianImportCmd.Flags().BoolVar(&rosterDryRun, "dry-run", false, "Show what would change without writing")
	technicianImportCmd.MarkFlagRequired("file")

	technicianCmd.AddCommand(technicianImportCmd)
	technicianCmd.AddCommand(technicianListCmd)
	rootCmd.AddCommand(technicianCmd)
}

type rosterFile struct {
	Technicians []rosterEntry `yaml:"technicians"`
}

type rosterEntry struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Phone   string   `yaml:"phone"`
	Active  *bool    `yaml:"active"`
	Skills  []string `yaml:"skills"`
	Regions []string `yaml:"regions"`
	Groups  []string `yaml:"groups"`
	Weight  *int     `yaml:"weight"`
}

// parseRoster decodes and validates a roster document.
func parseRoster(data []byte) ([]rosterEntry, error) {
	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	seen := make(map[string]bool)
	for i, e := range file.Technicians {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			return nil, fmt.Errorf("roster entry %d: name is required", i+1)
		}
		if e.ID != "" {
			if _, err := uuid.Parse(e.ID); err != nil {
				return nil, fmt.Errorf("roster entry %q: invalid id", e.Name)
			}
		}
		key := strings.ToLower(e.Name)
		if seen[key] {
			return nil, fmt.Errorf("roster entry %q appears twice", e.Name)
		}
		seen[key] = true
		for _, g := range e.Groups {
			if !models.LogisticsGroup(g).Valid() {
				return nil, fmt.Errorf("roster entry %q: unknown logistics group %q", e.Name, g)
			}
		}
		if e.Weight != nil && *e.Weight < 0 {
			return nil, fmt.Errorf("roster entry %q: weight must not be negative", e.Name)
		}
		file.Technicians[i] = e
	}
	return file.Technicians, nil
}

// applyRoster upserts the roster and reports one line per technician.
func applyRoster(database *gorm.DB, entries []rosterEntry, dryRun bool, out io.Writer) (created, updated int, err error) {
	err = database.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			var tech models.Technician
			q := tx.Where("name = ?", e.Name)
			if e.ID != "" {
				q = tx.Where("id = ?", e.ID)
			}
			findErr := q.First(&tech).Error
			isNew := false
			switch {
			case errors.Is(findErr, gorm.ErrRecordNotFound):
				tech = models.Technician{ID: e.ID, Active: true}
				if tech.ID == "" {
					tech.ID = uuid.NewString()
				}
				isNew = true
				created++
				fmt.Fprintf(out, "create  %s\n", e.Name)
			case findErr != nil:
				return fmt.Errorf("lookup %q: %w", e.Name, findErr)
			default:
				updated++
				fmt.Fprintf(out, "update  %s\n", e.Name)
			}

			tech.Name = e.Name
			tech.Phone = e.Phone
			if e.Active != nil {
				tech.Active = *e.Active
			}
			tech.Skills = e.Skills
			tech.Regions = e.Regions
			tech.Groups = e.Groups
			tech.Weight = e.Weight

			if dryRun {
				continue
			}
			if !isNew {
				if err := tx.Save(&tech).Error; err != nil {
					return fmt.Errorf("save %q: %w", e.Name, err)
				}
				continue
			}
			// Create writes the column default back over a false Active.
			active := tech.Active
			if err := tx.Create(&tech).Error; err != nil {
				return fmt.Errorf("create %q: %w", e.Name, err)
			}
			if !active {
				tech.Active = false
				if err := tx.Model(&tech).Update("active", false).Error; err != nil {
					return fmt.Errorf("deactivate %q: %w", e.Name, err)
				}
			}
		}
		return nil
	})
	return created, updated, err
}

func runTechnicianImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	data, err := os.ReadFile(rosterPath)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	entries, err := parseRoster(data)
	if err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	created, updated, err := applyRoster(database, entries, rosterDryRun, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	logger.Info().
		Int("created", created).
		Int("updated", updated).
		Bool("dry_run", rosterDryRun).
		Msg("technician roster imported")
	return nil
}

func runTechnicianList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := initDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	return listTechnicians(database, cmd.OutOrStdout())
}

func listTechnicians(database *gorm.DB, out io.Writer) error {
	var techs []models.Technician
	if err := database.Order("name ASC").Find(&techs).Error; err != nil {
		return fmt.Errorf("list technicians: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACTIVE\tSKILLS\tREGIONS\tGROUPS")
	for _, t := range techs {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\t%s\n",
			t.ID, t.Name, t.Active,
			strings.Join(t.Skills, ","), strings.Join(t.Regions, ","), strings.Join(t.Groups, ","))
	}
	return w.Flush()
}
