package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/jwttoken"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger"
	ledgerhandler "github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger/handler"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/location"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/membership"
	membershiphandler "github.com/hanibalsk/phone-manager-backend-sub002/internal/membership/handler"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration"
	migrationhandler "github.com/hanibalsk/phone-manager-backend-sub002/internal/migration/handler"
	migrationmetrics "github.com/hanibalsk/phone-manager-backend-sub002/internal/migration/metrics"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/config"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/httpserver"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/kafka"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/logger"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/metrics"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/middleware"
	platformredis "github.com/hanibalsk/phone-manager-backend-sub002/internal/platform/redis"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/status"
	statushandler "github.com/hanibalsk/phone-manager-backend-sub002/internal/status/handler"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/httputil"
)

const (
	shutdownTimeout = 10 * time.Second
	relayClientID   = "phone-manager-ledger-relay"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type handlers struct {
	migration  *migrationhandler.Handler
	membership *membershiphandler.Handler
	status     *statushandler.Handler
	ledger     *ledgerhandler.Handler
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer func() {
		if err := be.close(); err != nil {
			log.Error("failed to close storage", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		log.Info("location cache enabled", "ttl", cfg.Redis.LocationCacheTTL)
	}

	a := newApp(cfg, log, reg, be, redisClient)
	if cfg.Server.DevSeed {
		if err := seedDemo(ctx, be, a.locations, a.tokens, log); err != nil {
			return err
		}
	}
	srv := httpserver.New(cfg.Server.Addr, a.router, cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", "addr", cfg.Server.Addr, "storage", be.name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(ctx, kafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			ClientID:          relayClientID,
			Partitions:        3,
			ReplicationFactor: 1,
		})
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("kafka: %w", err)
		}
		defer producer.Close()
		relay := ledger.NewRelay(be.outbox, producer,
			ledger.WithRelayLogger(log),
			ledger.WithRelayMetrics(ledger.NewRelayMetrics(reg)),
			ledger.WithPollInterval(cfg.Kafka.OutboxPollInterval),
		)
		g.Go(func() error { return relay.Run(gctx) })
		log.Info("ledger relay started", "topic", cfg.Kafka.Topic)
	} else {
		log.Info("KAFKA_BROKERS not set, ledger relay disabled")
	}

	return g.Wait()
}

// app holds what run needs after wiring beyond the router itself.
type app struct {
	router    http.Handler
	tokens    *jwttoken.JWTService
	locations *location.Service
}

func newApp(cfg config.Config, log *slog.Logger, reg *prometheus.Registry, be *backend, redisClient *platformredis.Client) *app {
	httpMetrics := metrics.New(reg)

	locationOpts := []location.Option{location.WithLogger(log)}
	if redisClient != nil {
		locationOpts = append(locationOpts,
			location.WithCache(location.NewRedisCache(redisClient.Client, cfg.Redis.LocationCacheTTL)))
	}
	locations := location.New(be.locations, locationOpts...)

	ledgerService := ledger.New(be.ledger, ledger.WithLogger(log))
	migrationService := migration.New(be.tx,
		migration.Stores{
			Devices:     be.devices,
			Groups:      be.groups,
			Memberships: be.memberships,
			Migrations:  be.migrations,
		},
		ledgerService,
		migration.WithLogger(log),
		migration.WithMetrics(migrationmetrics.New(reg)),
		migration.WithSlowThreshold(cfg.Server.MigrationProgressAfter),
	)
	membershipService := membership.New(
		membership.Stores{
			Devices:     be.devices,
			Groups:      be.groups,
			Memberships: be.memberships,
		},
		membership.WithLogger(log),
		membership.WithMetrics(membership.NewMetrics(reg)),
		membership.WithLocations(locations),
	)
	statusService := status.New(be.devices, be.migrations, status.WithLogger(log))

	tokens := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	h := handlers{
		migration: migrationhandler.New(migrationService, log,
			migrationhandler.WithProgressAfter(cfg.Server.MigrationProgressAfter),
			migrationhandler.WithRunTimeout(cfg.Server.RequestTimeout),
		),
		membership: membershiphandler.New(membershipService, log),
		status:     statushandler.New(statusService, log),
		ledger:     ledgerhandler.New(ledgerService, log),
	}
	return &app{
		router:    newRouter(cfg.Server, log, reg, httpMetrics, jwttoken.NewBearerValidator(tokens), h, healthCheck(be, redisClient)),
		tokens:    tokens,
		locations: locations,
	}
}

func newRouter(
	cfg config.Server,
	log *slog.Logger,
	reg *prometheus.Registry,
	httpMetrics *metrics.Metrics,
	validator middleware.JWTValidator,
	h handlers,
	health http.HandlerFunc,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(cfg.RequestTimeout, httpMetrics))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.LatencyMiddleware(httpMetrics))

	r.Get("/health", health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(authed chi.Router) {
			authed.Use(middleware.RequireAuth(validator, log))
			h.migration.Register(authed)
			h.membership.Register(authed)
			h.status.Register(authed)
		})
		api.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireAdminToken(cfg.AdminAPIToken, log))
			h.ledger.Register(admin)
		})
	})
	return r
}

func healthCheck(be *backend, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]string{"status": "ok", "storage": be.name}
		code := http.StatusOK
		if err := be.ping(ctx); err != nil {
			body["status"], body["storage_error"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				// the cache is optional; reads fall back to storage
				body["cache"] = "unavailable"
			} else {
				body["cache"] = "ok"
			}
		}
		httputil.WriteJSON(w, code, body)
	}
}
