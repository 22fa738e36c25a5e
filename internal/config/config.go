/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/fieldops/internal/slots"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	AutoMigrate bool

	// Scheduling
	TimeZone               string
	Location               *time.Location
	SlotGridMinutes        int
	DefaultDurationMinutes int
	WorkdayStart           string // HH:MM used when a weekday has no working-hours row
	WorkdayEnd             string
	LunchEnabled           bool
	LunchStart             string
	LunchEnd               string
	LogisticsRulesPath     string // optional YAML file overriding the built-in logistics groups
	PickupHeuristic        bool
	PickupKeywords         []string // service types treated as pickups; empty uses the built-in list

	// Status-change notifications
	NotifyWebhookURL    string
	NotifyWebhookSecret string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis cache
	CacheEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS forwarding of engine events (empty disables)
	NATSURL string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"FIELDOPS_ENV", "APP_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"FIELDOPS_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"FIELDOPS_HTTP_PORT", "PORT"}, 8080),
		DBBackend:   DatabaseBackend(getEnvAny([]string{"FIELDOPS_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:       getEnvAny([]string{"FIELDOPS_DB_DSN", "DATABASE_URL"}, ""),
		AutoMigrate: getEnvBoolAny([]string{"FIELDOPS_DB_AUTOMIGRATE"}, true),

		TimeZone:               getEnvAny([]string{"FIELDOPS_TIMEZONE"}, "UTC"),
		SlotGridMinutes:        getEnvIntAny([]string{"FIELDOPS_SLOT_GRID_MINUTES"}, slots.DefaultGrid),
		DefaultDurationMinutes: getEnvIntAny([]string{"FIELDOPS_DEFAULT_DURATION_MINUTES"}, 60),
		WorkdayStart:           getEnvAny([]string{"FIELDOPS_WORKDAY_START"}, "08:00"),
		WorkdayEnd:             getEnvAny([]string{"FIELDOPS_WORKDAY_END"}, "18:00"),
		LunchEnabled:           getEnvBoolAny([]string{"FIELDOPS_LUNCH_ENABLED"}, false),
		LunchStart:             getEnvAny([]string{"FIELDOPS_LUNCH_START"}, "12:00"),
		LunchEnd:               getEnvAny([]string{"FIELDOPS_LUNCH_END"}, "13:00"),
		LogisticsRulesPath:     getEnvAny([]string{"FIELDOPS_LOGISTICS_RULES"}, ""),
		PickupHeuristic:        getEnvBoolAny([]string{"FIELDOPS_PICKUP_HEURISTIC"}, true),
		PickupKeywords:         splitList(getEnvAny([]string{"FIELDOPS_PICKUP_KEYWORDS"}, "")),

		NotifyWebhookURL:    getEnvAny([]string{"FIELDOPS_NOTIFY_WEBHOOK_URL"}, ""),
		NotifyWebhookSecret: getEnvAny([]string{"FIELDOPS_NOTIFY_WEBHOOK_SECRET"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"FIELDOPS_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"FIELDOPS_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"FIELDOPS_TRACING_SAMPLE_RATE"}, 1.0),

		CacheEnabled:  getEnvBoolAny([]string{"FIELDOPS_CACHE_ENABLED"}, false),
		RedisAddr:     getEnvAny([]string{"FIELDOPS_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"FIELDOPS_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"FIELDOPS_REDIS_DB"}, 0),

		NATSURL: getEnvAny([]string{"FIELDOPS_NATS_URL", "NATS_URL"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("FIELDOPS_DB_DSN or DATABASE_URL must be provided")
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("FIELDOPS_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.SlotGridMinutes <= 0 || cfg.SlotGridMinutes > slots.MinutesPerDay {
		return nil, fmt.Errorf("FIELDOPS_SLOT_GRID_MINUTES must be between 1 and %d", slots.MinutesPerDay)
	}
	if cfg.DefaultDurationMinutes <= 0 {
		return nil, fmt.Errorf("FIELDOPS_DEFAULT_DURATION_MINUTES must be positive")
	}

	if _, err := cfg.Workday(); err != nil {
		return nil, err
	}
	if cfg.LunchEnabled {
		if _, err := cfg.Lunch(); err != nil {
			return nil, err
		}
	}

	if cfg.TracingSampleRate < 0 || cfg.TracingSampleRate > 1 {
		return nil, fmt.Errorf("FIELDOPS_TRACING_SAMPLE_RATE must be between 0 and 1")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.NotifyWebhookURL != "" && cfg.NotifyWebhookSecret == "" {
		return nil, fmt.Errorf("FIELDOPS_NOTIFY_WEBHOOK_SECRET is required when a notification webhook is configured in production")
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

// Workday returns the fallback working window for weekdays without a row.
func (c *Config) Workday() (slots.Interval, error) {
	return parseWindow("FIELDOPS_WORKDAY", c.WorkdayStart, c.WorkdayEnd)
}

// Lunch returns the configured lunch break window.
func (c *Config) Lunch() (slots.Interval, error) {
	return parseWindow("FIELDOPS_LUNCH", c.LunchStart, c.LunchEnd)
}

func parseWindow(prefix, start, end string) (slots.Interval, error) {
	s, err := slots.ParseClock(start)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("%s_START: %w", prefix, err)
	}
	e, err := slots.ParseClock(end)
	if err != nil {
		return slots.Interval{}, fmt.Errorf("%s_END: %w", prefix, err)
	}
	if e <= s {
		return slots.Interval{}, fmt.Errorf("%s_END must be after %s_START", prefix, prefix)
	}
	return slots.Interval{Start: s, End: e}, nil
}

// SlotGrid returns the slot granularity as a duration.
func (c *Config) SlotGrid() time.Duration {
	return time.Duration(c.SlotGridMinutes) * time.Minute
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use FIELDOPS_ENV",
		"DB_DSN":              "use FIELDOPS_DB_DSN (or DATABASE_URL)",
		"SLOT_INTERVAL":       "use FIELDOPS_SLOT_GRID_MINUTES",
		"TRACING_ENABLED":     "use FIELDOPS_TRACING_ENABLED",
		"OTLP_ENDPOINT":       "use FIELDOPS_OTLP_ENDPOINT",
		"TRACING_SAMPLE_RATE": "use FIELDOPS_TRACING_SAMPLE_RATE",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// splitList parses a comma separated list, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
