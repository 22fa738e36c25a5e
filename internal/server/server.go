/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/fieldops/internal/api"
	"github.com/friendsincode/fieldops/internal/booking"
	"github.com/friendsincode/fieldops/internal/cache"
	"github.com/friendsincode/fieldops/internal/config"
	"github.com/friendsincode/fieldops/internal/conflicts"
	"github.com/friendsincode/fieldops/internal/db"
	"github.com/friendsincode/fieldops/internal/eventbus"
	"github.com/friendsincode/fieldops/internal/events"
	"github.com/friendsincode/fieldops/internal/exclusions"
	"github.com/friendsincode/fieldops/internal/logistics"
	"github.com/friendsincode/fieldops/internal/notifications"
	"github.com/friendsincode/fieldops/internal/orders"
	"github.com/friendsincode/fieldops/internal/planner"
	"github.com/friendsincode/fieldops/internal/rotation"
	"github.com/friendsincode/fieldops/internal/slots"
	"github.com/friendsincode/fieldops/internal/telemetry"
	"github.com/friendsincode/fieldops/internal/webhooks"
	"github.com/friendsincode/fieldops/internal/workhours"
)

const requestTimeout = 30 * time.Second

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db       *gorm.DB
	caps     db.Capabilities
	cache    *cache.Cache
	local    *events.Bus
	bus      *eventbus.NATSBus
	notifier *notifications.Service
	api      *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("fieldops-api"))
	router.Use(telemetry.MetricsMiddleware)

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		local:  events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// The event stream is long-lived; other routes are bounded by the
		// timeout middleware.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	if s.cfg.AutoMigrate {
		if err := db.Migrate(database); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.caps = db.DetectCapabilities(database, s.logger)

	workday, err := s.cfg.Workday()
	if err != nil {
		return err
	}
	var lunch *slots.Interval
	if s.cfg.LunchEnabled {
		l, err := s.cfg.Lunch()
		if err != nil {
			return err
		}
		lunch = &l
	}
	classifier, err := logistics.Load(s.cfg.LogisticsRulesPath)
	if err != nil {
		return err
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Enabled = s.cfg.CacheEnabled
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	s.cache = cache.New(cacheCfg, s.logger)
	s.DeferClose(s.cache.Close)

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		s.bus = eventbus.NewNATSBus(natsCfg, s.local, s.logger)
		s.DeferClose(s.bus.Close)
	}

	sender := webhooks.NewSender(database, webhooks.Config{
		URL:    s.cfg.NotifyWebhookURL,
		Secret: s.cfg.NotifyWebhookSecret,
	}, s.logger)
	s.notifier = notifications.NewService(s.broker(), sender, s.logger)
	s.DeferClose(func() error { s.notifier.Wait(); return nil })

	loc := s.cfg.Location
	source := exclusions.New(database, s.caps, exclusions.Config{Location: loc, Lunch: lunch}, s.logger)
	hours := workhours.NewStore(database, s.cache, s.broker(), workday, loc, s.logger)
	orderSvc := orders.NewService(database, s.notifier, s.logger)

	var heuristics []conflicts.Heuristic
	if s.cfg.PickupHeuristic {
		heuristics = append(heuristics, conflicts.NewMultiUnitPickup(s.cfg.PickupKeywords...))
	}

	bookingSvc := booking.NewService(booking.Deps{
		DB:              database,
		Source:          source,
		Hours:           hours,
		Rotation:        rotation.New(database, s.caps, s.logger),
		Checker:         conflicts.New(database, s.caps, s.logger, conflicts.WithLocation(loc), conflicts.WithHeuristics(heuristics...)),
		Orders:          orderSvc,
		Classifier:      classifier,
		Bus:             s.broker(),
		Grid:            s.cfg.SlotGridMinutes,
		DefaultDuration: s.cfg.DefaultDurationMinutes,
	}, s.logger)

	plan := planner.New(source, hours, classifier, s.logger,
		planner.WithGrid(s.cfg.SlotGridMinutes, s.cfg.DefaultDurationMinutes))

	s.api = api.New(api.Deps{
		Booking:  bookingSvc,
		Orders:   orderSvc,
		Planner:  plan,
		Hours:    hours,
		Bus:      s.broker(),
		Location: loc,
	}, s.logger)
	return nil
}

// broker is the NATS-mirrored bus when configured, else the local one.
func (s *Server) broker() events.Broker {
	if s.bus != nil {
		return s.bus
	}
	return s.local
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.cache.IsAvailable() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.cache.ListenForInvalidations(ctx, s.broker())
		}()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.runConnectionMetrics(ctx)
	}()
}

func (s *Server) runConnectionMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		db.UpdateConnectionMetrics(s.db)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", telemetry.Handler())

	// The event stream stays outside the request timeout.
	s.api.StreamRoutes(s.router)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		s.api.Routes(r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status": "ok",
		"cache":  s.cache.IsAvailable(),
		"nats":   s.bus != nil && s.bus.Connected(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("health check: database unreachable")
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unreachable"
	} else {
		body["database"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
