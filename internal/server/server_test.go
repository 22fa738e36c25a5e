package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/fieldops/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:            "test",
		HTTPBind:               "127.0.0.1",
		HTTPPort:               0,
		DBBackend:              config.DatabaseSQLite,
		DBDSN:                  ":memory:",
		AutoMigrate:            true,
		TimeZone:               "UTC",
		Location:               time.UTC,
		SlotGridMinutes:        60,
		DefaultDurationMinutes: 60,
		WorkdayStart:           "08:00",
		WorkdayEnd:             "18:00",
		LunchEnabled:           true,
		LunchStart:             "12:00",
		LunchEnd:               "13:00",
	}
}

func TestServerWiring(t *testing.T) {
	srv, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	handler := srv.HTTPServer().Handler

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d: %s", rec.Code, rec.Body.String())
	}
	var health map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["database"] != "ok" || health["nats"] != false {
		t.Fatalf("unexpected health %v", health)
	}

	// Lunch is enabled, so 12:00 is never offered.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/availability?date=2026-03-10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("availability status = %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"start":"12:00"`) {
		t.Fatalf("lunch slot offered: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"start":"13:00"`) {
		t.Fatalf("expected 13:00 slot: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "fieldops_") {
		t.Fatalf("metrics not served: %d", rec.Code)
	}
}

func TestServerRejectsBadLogisticsRules(t *testing.T) {
	cfg := testConfig()
	cfg.LogisticsRulesPath = t.TempDir() + "/missing.yaml"
	if _, err := New(cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}
