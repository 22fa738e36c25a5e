package config

import (
	"testing"

	"github.com/friendsincode/fieldops/internal/slots"
)

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("FIELDOPS_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("FIELDOPS_ENV", "development")
	t.Setenv("FIELDOPS_SLOT_GRID_MINUTES", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN == "" {
		t.Fatal("expected DB DSN to be set")
	}
	if cfg.SlotGridMinutes != 30 {
		t.Fatalf("unexpected slot grid: %d", cfg.SlotGridMinutes)
	}
	if cfg.Location == nil {
		t.Fatal("expected location to be resolved")
	}
	window, err := cfg.Workday()
	if err != nil {
		t.Fatalf("workday: %v", err)
	}
	if window != (slots.Interval{Start: 8 * 60, End: 18 * 60}) {
		t.Fatalf("unexpected default workday: %v", window)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("FIELDOPS_DB_DSN", "")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected load to fail without a DSN")
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("FIELDOPS_DB_DSN", "file::memory:")
	t.Setenv("SLOT_INTERVAL", "30")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadValidatesSchedulingWindows(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero grid", map[string]string{"FIELDOPS_SLOT_GRID_MINUTES": "0"}},
		{"bad workday", map[string]string{"FIELDOPS_WORKDAY_START": "8am"}},
		{"inverted workday", map[string]string{"FIELDOPS_WORKDAY_START": "18:00", "FIELDOPS_WORKDAY_END": "08:00"}},
		{"inverted lunch", map[string]string{"FIELDOPS_LUNCH_ENABLED": "true", "FIELDOPS_LUNCH_START": "13:00", "FIELDOPS_LUNCH_END": "12:00"}},
		{"unknown zone", map[string]string{"FIELDOPS_TIMEZONE": "Mars/Olympus_Mons"}},
		{"unknown backend", map[string]string{"FIELDOPS_DB_BACKEND": "oracle"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FIELDOPS_DB_DSN", "file::memory:")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadProductionRequiresWebhookSecret(t *testing.T) {
	t.Setenv("FIELDOPS_DB_DSN", "host=localhost user=test dbname=test sslmode=disable")
	t.Setenv("FIELDOPS_ENV", "production")
	t.Setenv("FIELDOPS_NOTIFY_WEBHOOK_URL", "https://hooks.example.com/orders")
	t.Setenv("FIELDOPS_NOTIFY_WEBHOOK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a webhook secret")
	}

	t.Setenv("FIELDOPS_NOTIFY_WEBHOOK_SECRET", "s3cret")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with secret to succeed: %v", err)
	}
}

func TestLoadPickupKeywords(t *testing.T) {
	t.Setenv("FIELDOPS_DB_DSN", "file::memory:")
	t.Setenv("FIELDOPS_PICKUP_KEYWORDS", " Coleta , ,pickup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.PickupHeuristic {
		t.Fatal("pickup heuristic should default to enabled")
	}
	if len(cfg.PickupKeywords) != 2 || cfg.PickupKeywords[0] != "Coleta" || cfg.PickupKeywords[1] != "pickup" {
		t.Fatalf("PickupKeywords = %q", cfg.PickupKeywords)
	}
}
