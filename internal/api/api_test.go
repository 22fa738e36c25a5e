package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/fieldops/internal/booking"
	"github.com/friendsincode/fieldops/internal/conflicts"
	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/exclusions"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/orders"
	"github.com/friendsincode/fieldops/internal/planner"
	"github.com/friendsincode/fieldops/internal/rotation"
	"github.com/friendsincode/fieldops/internal/slots"
	"github.com/friendsincode/fieldops/internal/workhours"
)

type testEnv struct {
	db     *gorm.DB
	bus    *events.Bus
	orders *orders.Service
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
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

	logger := zerolog.Nop()
	caps := db.AllCapabilities()
	bus := events.NewBus()
	source := exclusions.New(database, caps, exclusions.Config{Location: time.UTC}, logger)
	hours := workhours.NewStore(database, nil, bus, slots.Interval{Start: 8 * 60, End: 18 * 60}, time.UTC, logger)
	orderSvc := orders.NewService(database, nil, logger)
	bookingSvc := booking.NewService(booking.Deps{
		DB:       database,
		Source:   source,
		Hours:    hours,
		Rotation: rotation.New(database, caps, logger),
		Checker:  conflicts.New(database, caps, logger),
		Orders:   orderSvc,
		Bus:      bus,
	}, logger)
	plan := planner.New(source, hours, nil, logger,
		planner.WithClock(func() time.Time { return time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC) }))

	a := New(Deps{
		Booking:  bookingSvc,
		Orders:   orderSvc,
		Planner:  plan,
		Hours:    hours,
		Bus:      bus,
		Location: time.UTC,
	}, logger)

	r := chi.NewRouter()
	a.Routes(r)
	a.StreamRoutes(r)
	return &testEnv{db: database, bus: bus, orders: orderSvc, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) map[string]string {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["error"] != code {
		t.Fatalf("error = %q, want %q", body["error"], code)
	}
	return body
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t)
	for _, h := range []int{9, 12} {
		a := models.NewAppointment("Existing", time.Date(2026, 3, 10, h, 0, 0, 0, time.UTC), time.Date(2026, 3, 10, h+1, 0, 0, 0, time.UTC))
		if err := env.db.Create(a).Error; err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got booking.Availability
	decode(t, rec, &got)
	if got.Date != "2026-03-10" || len(got.Slots) != 8 || got.Slots[1].Start != "10:00" {
		t.Fatalf("unexpected availability %+v", got)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/availability?date=tomorrow", nil), http.StatusBadRequest, "invalid_date")
	expectError(t, env.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-10&duration_minutes=abc", nil), http.StatusBadRequest, "invalid_duration")
}

func TestAppointmentLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	expectError(t, env.do(t, http.MethodPost, "/api/v1/appointments", "{"), http.StatusBadRequest, "invalid_json")
	expectError(t, env.do(t, http.MethodPost, "/api/v1/appointments", map[string]any{
		"date": "2026-03-10", "start": "09:00",
	}), http.StatusBadRequest, "client_name_required")
	expectError(t, env.do(t, http.MethodPost, "/api/v1/appointments", map[string]any{
		"client_name": "Ana", "date": "2026-03-10", "start": "9h",
	}), http.StatusBadRequest, "invalid_start")

	rec := env.do(t, http.MethodPost, "/api/v1/appointments", map[string]any{
		"client_name": "Ana",
		"address":     "Rua Central 1",
		"date":        "2026-03-10",
		"start":       "09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var created booking.BookResult
	decode(t, rec, &created)
	if !created.Appointment.StartsAt.Equal(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", created.Appointment.StartsAt)
	}
	id := created.Appointment.ID

	rec = env.do(t, http.MethodGet, "/api/v1/appointments/"+id+"/conflicts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("conflicts status = %d", rec.Code)
	}

	expectError(t, env.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/cancel", map[string]string{}), http.StatusUnprocessableEntity, "cancellation_reason_required")

	rec = env.do(t, http.MethodPost, "/api/v1/appointments/"+id+"/cancel", map[string]string{"reason": "client asked"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d: %s", rec.Code, rec.Body.String())
	}
	var canceled models.Appointment
	decode(t, rec, &canceled)
	if canceled.Status != models.AppointmentCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/appointments/nope", nil), http.StatusNotFound, "appointment_not_found")
}

func TestAppointmentCreateHonorsEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/appointments", map[string]any{
		"client_name": "Ana",
		"starts_at":   "2026-03-10T09:00:00Z",
		"ends_at":     "2026-03-10T10:30:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var created booking.BookResult
	decode(t, rec, &created)
	if !created.Appointment.EndsAt.Equal(time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("ends_at = %s, want 10:30", created.Appointment.EndsAt)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/appointments", map[string]any{
		"client_name": "Bia", "date": "2026-03-10", "start": "13:00", "end": "15:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &created)
	if !created.Appointment.EndsAt.Equal(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("ends_at = %s, want 15:00", created.Appointment.EndsAt)
	}

	tests := []struct {
		name string
		body map[string]any
	}{
		{"end before start", map[string]any{"client_name": "Ana", "starts_at": "2026-03-10T09:00:00Z", "ends_at": "2026-03-10T08:00:00Z"}},
		{"end equals start", map[string]any{"client_name": "Ana", "starts_at": "2026-03-10T09:00:00Z", "ends_at": "2026-03-10T09:00:00Z"}},
		{"malformed end", map[string]any{"client_name": "Ana", "starts_at": "2026-03-10T09:00:00Z", "ends_at": "10:30"}},
		{"end without start", map[string]any{"client_name": "Ana", "ends_at": "2026-03-10T10:00:00Z"}},
		{"end disagrees with duration", map[string]any{"client_name": "Ana", "starts_at": "2026-03-10T09:00:00Z", "ends_at": "2026-03-10T10:00:00Z", "duration_minutes": 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodPost, "/api/v1/appointments", tt.body), http.StatusBadRequest, "invalid_end")
		})
	}
}

func TestOrderStatusEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/service-orders", map[string]string{"description": "fridge noisy", "author": "desk"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var order models.ServiceOrder
	decode(t, rec, &order)
	base := "/api/v1/service-orders/" + order.ID

	body := expectError(t, env.do(t, http.MethodPost, base+"/status", map[string]string{"status": "delivered"}), http.StatusConflict, "illegal_transition")
	if body["from"] != "pending" || body["to"] != "delivered" {
		t.Fatalf("expected from/to in body, got %v", body)
	}

	expectError(t, env.do(t, http.MethodPost, base+"/status", map[string]string{"status": "canceled"}), http.StatusUnprocessableEntity, "cancellation_reason_required")
	expectError(t, env.do(t, http.MethodPost, base+"/status", map[string]string{"status": "archived"}), http.StatusBadRequest, "unknown_status")
	expectError(t, env.do(t, http.MethodPost, base+"/status", map[string]string{}), http.StatusBadRequest, "status_required")

	rec = env.do(t, http.MethodPost, base+"/status", map[string]string{"status": "in_progress", "author": "tech"})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition status = %d: %s", rec.Code, rec.Body.String())
	}
	var change orders.Change
	decode(t, rec, &change)
	if change.Order.Status != models.OrderInProgress || change.Previous != models.OrderPending || !change.Changed {
		t.Fatalf("unexpected change %+v", change)
	}

	rec = env.do(t, http.MethodGet, base+"/progress", nil)
	var progress struct {
		Progress []models.ProgressEntry `json:"progress"`
	}
	decode(t, rec, &progress)
	if len(progress.Progress) != 2 {
		t.Fatalf("expected 2 progress entries, got %d", len(progress.Progress))
	}

	expectError(t, env.do(t, http.MethodGet, "/api/v1/service-orders/00000000-0000-0000-0000-000000000000/progress", nil), http.StatusNotFound, "service_order_not_found")
}

func TestSuggestionsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	expectError(t, env.do(t, http.MethodGet, "/api/v1/suggestions", nil), http.StatusBadRequest, "address_required")

	rec := env.do(t, http.MethodGet, "/api/v1/suggestions?address=Sitio+Azul,+zona+rural", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res planner.Result
	decode(t, rec, &res)
	if res.Group != models.GroupC || len(res.Suggestions) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	// Friday 6th: weekend and Monday are skipped, afternoon preferred.
	if res.Suggestions[0].Date != "2026-03-10" || res.Suggestions[0].From != "14:00" {
		t.Fatalf("unexpected first suggestion %+v", res.Suggestions[0])
	}
}

func TestOperatorEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/v1/working-hours/2", map[string]any{"start_time": "10:00", "end_time": "12:00"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body.String())
	}
	expectError(t, env.do(t, http.MethodPut, "/api/v1/working-hours/9", map[string]any{"start_time": "10:00", "end_time": "12:00"}), http.StatusBadRequest, "invalid_working_hours")
	expectError(t, env.do(t, http.MethodPut, "/api/v1/working-hours/tue", map[string]any{}), http.StatusBadRequest, "invalid_weekday")

	rec = env.do(t, http.MethodGet, "/api/v1/working-hours", nil)
	var week struct {
		WorkingHours []models.WorkingHours `json:"working_hours"`
	}
	decode(t, rec, &week)
	if len(week.WorkingHours) != 7 || week.WorkingHours[2].StartTime != "10:00" {
		t.Fatalf("unexpected week %+v", week)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/blackouts", map[string]string{
		"starts_at": "2026-03-10T10:00:00Z",
		"ends_at":   "2026-03-10T11:00:00Z",
		"reason":    "training",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("blackout status = %d: %s", rec.Code, rec.Body.String())
	}
	var b models.Blackout
	decode(t, rec, &b)

	rec = env.do(t, http.MethodGet, "/api/v1/availability?date=2026-03-10", nil)
	var avail booking.Availability
	decode(t, rec, &avail)
	if len(avail.Slots) != 1 || avail.Slots[0].Start != "11:00" {
		t.Fatalf("expected only 11:00 left, got %+v", avail.Slots)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/blackouts?from=2026-03-10&to=2026-03-11", nil)
	var list struct {
		Blackouts []models.Blackout `json:"blackouts"`
	}
	decode(t, rec, &list)
	if len(list.Blackouts) != 1 {
		t.Fatalf("expected 1 blackout, got %d", len(list.Blackouts))
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/blackouts/"+b.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	expectError(t, env.do(t, http.MethodDelete, "/api/v1/blackouts/"+b.ID, nil), http.StatusNotFound, "blackout_not_found")
	expectError(t, env.do(t, http.MethodPost, "/api/v1/blackouts", map[string]string{"starts_at": "2026-03-10T10:00:00Z", "ends_at": "2026-03-10T09:00:00Z"}), http.StatusBadRequest, "invalid_window")
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=appointment.booked"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	// The subscription is registered after the upgrade; publish until it lands.
	received := make(chan envelope, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var ev envelope
		if json.Unmarshal(data, &ev) == nil {
			received <- ev
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-received:
			if ev.Type != events.EventAppointmentBooked || ev.Payload["appointment_id"] != "a-1" {
				t.Fatalf("unexpected event %+v", ev)
			}
			return
		case <-ticker.C:
			env.bus.Publish(events.EventOrderStatusChanged, events.Payload{"order_id": "ignored"})
			env.bus.Publish(events.EventAppointmentBooked, events.Payload{"appointment_id": "a-1"})
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}

func TestEventsRejectsUnknownTypes(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(t, http.MethodGet, "/api/v1/events?types=bogus", nil), http.StatusBadRequest, "unknown_event_types")
}
