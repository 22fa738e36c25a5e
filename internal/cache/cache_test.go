package cache

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/rs/zerolog"
)

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := New(cfg, zerolog.Nop())

	if c.IsAvailable() {
		t.Fatal("disabled cache should not be available")
	}
	ctx := context.Background()
	if err := c.SetWorkingHours(ctx, []models.WorkingHours{{Weekday: 1, StartTime: "08:00", EndTime: "18:00"}}); err != nil {
		t.Fatalf("set on disabled cache should be a no-op: %v", err)
	}
	if _, ok := c.GetWorkingHours(ctx); ok {
		t.Fatal("disabled cache should miss")
	}
	if err := c.InvalidateWorkingHours(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestUnreachableRedisDegradesToMisses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisAddr = "127.0.0.1:1"
	c := New(cfg, zerolog.Nop())

	if c.IsAvailable() {
		t.Fatal("cache should not be available without Redis")
	}
	if _, ok := c.GetWorkingHours(context.Background()); ok {
		t.Fatal("expected miss")
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	if c.IsAvailable() {
		t.Fatal("nil cache should not be available")
	}
	if _, ok := c.GetWorkingHours(context.Background()); ok {
		t.Fatal("nil cache should miss")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestListenForInvalidationsStopsWithContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	c := New(cfg, zerolog.Nop())
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.ListenForInvalidations(ctx, bus)
		close(done)
	}()

	bus.Publish(events.EventWorkingHoursUpdated, events.Payload{"weekday": 1})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after cancellation")
	}
}
