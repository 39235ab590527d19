package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	wardenhttp "github.com/wardenhq/warden/internal/adapter/http"
	wardennats "github.com/wardenhq/warden/internal/adapter/nats"
	"github.com/wardenhq/warden/internal/adapter/natskv"
	"github.com/wardenhq/warden/internal/adapter/otel"
	"github.com/wardenhq/warden/internal/adapter/postgres"
	"github.com/wardenhq/warden/internal/adapter/ristretto"
	"github.com/wardenhq/warden/internal/adapter/tiered"
	"github.com/wardenhq/warden/internal/adapter/ws"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/middleware"
	"github.com/wardenhq/warden/internal/service"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "admin" {
		if err := runAdmin(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return err
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownOtel := otel.NoopShutdown()
	if cfg.Telemetry.Enabled {
		shutdownOtel, err = otel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := wardennats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}()

	idempotencyKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("cache bucket: %w", err)
	}
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	decisionCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.ControlTTL)

	// --- Services ---
	hub := ws.NewHub(cfg.Server.CORSOrigin, log)
	store := postgres.NewStore(pool)

	controls := service.NewControlService(store, decisionCache, queue, hub, cfg.Cache.ControlTTL)
	policies := service.NewPolicyService(store)
	reg := service.NewRegistryService(store)
	approvals := service.NewApprovalService(store, queue, hub, cfg.Approvals.DefaultTTL)
	tasks := service.NewTaskService(store, controls, approvals, queue, hub, metrics)
	deployments := service.NewDeploymentService(store, queue, hub)
	backfill := service.NewBackfillService(store, queue, metrics)
	tenants := service.NewTenantService(store)
	gatekeeper := service.NewGatekeeperService(store, reg, controls, policies, approvals, queue, hub, metrics)

	if n, err := policies.SeedFromDirectory(ctx, cfg.Policy.EnvelopeDir); err != nil {
		return fmt.Errorf("seed envelopes: %w", err)
	} else if n > 0 {
		slog.Info("policy envelopes seeded", "count", n)
	}

	handlers := &wardenhttp.Handlers{
		Gatekeeper:  gatekeeper,
		Controls:    controls,
		Policies:    policies,
		Registry:    reg,
		Tasks:       tasks,
		Deployments: deployments,
		Approvals:   approvals,
		Backfill:    backfill,
		Tenants:     tenants,
		Hub:         hub,
		Queue:       queue,
	}

	// --- HTTP ---
	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(wardenhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(wardenhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(wardenhttp.SecurityHeaders)
	r.Use(middleware.TenantID)
	r.Use(limiter.Handler)
	r.Use(middleware.Idempotency(idempotencyKV))
	if cfg.Telemetry.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}
	r.Use(chimw.Timeout(30 * time.Second))

	wardenhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
