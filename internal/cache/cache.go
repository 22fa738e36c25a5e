/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for slow-changing
// scheduling reference data.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/models"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultWorkingHoursTTL = 1 * time.Hour
)

// Key prefixes for Redis cache
const (
	KeyWorkingHours = "fieldops:cache:working_hours"
)

// Config contains cache configuration.
type Config struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	WorkingHoursTTL time.Duration

	// After a Redis error the cache is bypassed until RetryAfter has passed.
	RetryAfter time.Duration
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RedisAddr:       "localhost:6379",
		WorkingHoursTTL: DefaultWorkingHoursTTL,
		RetryAfter:      30 * time.Second,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil or
// disabled cache always misses.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu            sync.RWMutex
	disabledUntil time.Time
}

// New creates a cache. An unreachable Redis yields a cache that always
// misses rather than an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	c := &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}
	if !cfg.Enabled {
		c.logger.Info().Msg("cache disabled by configuration")
		return c
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return c
	}

	c.client = client
	c.logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return c
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil || c.client == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().After(c.disabledUntil)
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	retry := c.config.RetryAfter
	if retry <= 0 {
		retry = 30 * time.Second
	}
	c.mu.Lock()
	c.disabledUntil = time.Now().Add(retry)
	c.mu.Unlock()
	c.logger.Warn().Err(err).Str("operation", operation).Dur("retry_after", retry).Msg("cache bypassed after Redis error")
}

func (c *Cache) get(ctx context.Context, kind, key string, dest any) bool {
	if !c.IsAvailable() {
		return false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		c.handleError(err, "get")
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "miss").Inc()
		return false
	}
	telemetry.CacheRequestsTotal.WithLabelValues(kind, "hit").Inc()
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// GetWorkingHours returns the cached weekly working hours.
func (c *Cache) GetWorkingHours(ctx context.Context) ([]models.WorkingHours, bool) {
	var hours []models.WorkingHours
	if !c.get(ctx, "working_hours", KeyWorkingHours, &hours) {
		return nil, false
	}
	return hours, true
}

// SetWorkingHours caches the weekly working hours.
func (c *Cache) SetWorkingHours(ctx context.Context, hours []models.WorkingHours) error {
	if !c.IsAvailable() {
		return nil
	}
	return c.set(ctx, KeyWorkingHours, hours, c.config.WorkingHoursTTL)
}

// InvalidateWorkingHours drops the cached working hours.
func (c *Cache) InvalidateWorkingHours(ctx context.Context) error {
	return c.delete(ctx, KeyWorkingHours)
}

// ListenForInvalidations drops cached working hours whenever another part of
// the process (or another node, through the bus) announces a change. It
// returns when ctx is cancelled.
func (c *Cache) ListenForInvalidations(ctx context.Context, bus events.Broker) {
	sub := bus.Subscribe(events.EventWorkingHoursUpdated)
	defer bus.Unsubscribe(events.EventWorkingHoursUpdated, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			if err := c.InvalidateWorkingHours(ctx); err != nil {
				c.logger.Warn().Err(err).Msg("invalidate working hours failed")
			}
		}
	}
}
