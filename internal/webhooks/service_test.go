package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestSendSignsAndLogsDelivery(t *testing.T) {
	var gotSig, gotEvent string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	database := newTestDB(t)
	sender := NewSender(database, Config{URL: srv.URL, Secret: "s3cret"}, zerolog.Nop())

	if err := sender.Send(context.Background(), "service_order.status_changed", "0b0f4f7e-1111-4a4a-9a9a-000000000001", map[string]string{"to": "repair"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotEvent != "service_order.status_changed" {
		t.Fatalf("unexpected event header %q", gotEvent)
	}
	if !Verify(gotBody, "s3cret", gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}

	var rows []models.NotificationDelivery
	if err := database.Find(&rows).Error; err != nil {
		t.Fatalf("list deliveries: %v", err)
	}
	if len(rows) != 1 || rows[0].StatusCode != http.StatusAccepted || rows[0].Error != "" {
		t.Fatalf("unexpected delivery log: %+v", rows)
	}
}

func TestSendReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	database := newTestDB(t)
	sender := NewSender(database, Config{URL: srv.URL}, zerolog.Nop())

	if err := sender.Send(context.Background(), "test", "", map[string]int{"n": 1}); err == nil {
		t.Fatal("expected an error for a 502 response")
	}

	var row models.NotificationDelivery
	if err := database.First(&row).Error; err != nil {
		t.Fatalf("load delivery: %v", err)
	}
	if row.StatusCode != http.StatusBadGateway || row.Error == "" {
		t.Fatalf("failed delivery should be logged with its error: %+v", row)
	}
}

func TestDisabledSenderIsNoOp(t *testing.T) {
	sender := NewSender(nil, Config{}, zerolog.Nop())
	if sender.Enabled() {
		t.Fatal("sender without URL should be disabled")
	}
	if err := sender.Send(context.Background(), "test", "", nil); err != nil {
		t.Fatalf("disabled send: %v", err)
	}
}
