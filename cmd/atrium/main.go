package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	atriumhttp "github.com/atriumlabs/atrium/internal/adapter/http"
	atriumnats "github.com/atriumlabs/atrium/internal/adapter/nats"
	"github.com/atriumlabs/atrium/internal/adapter/natskv"
	"github.com/atriumlabs/atrium/internal/adapter/otel"
	"github.com/atriumlabs/atrium/internal/adapter/postgres"
	"github.com/atriumlabs/atrium/internal/adapter/ristretto"
	"github.com/atriumlabs/atrium/internal/adapter/tiered"
	"github.com/atriumlabs/atrium/internal/adapter/ws"
	"github.com/atriumlabs/atrium/internal/config"
	"github.com/atriumlabs/atrium/internal/logger"
	"github.com/atriumlabs/atrium/internal/middleware"
	"github.com/atriumlabs/atrium/internal/resilience"
	"github.com/atriumlabs/atrium/internal/secrets"
	"github.com/atriumlabs/atrium/internal/service"
)

// jwtSecretKey is the vault key holding the JWT signing secret.
const jwtSecretKey = "ATRIUM_AUTH_JWT_SECRET" //nolint:gosec // key name, not a credential

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, yamlPath)

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Secrets ---

	vault, err := secrets.NewVault(secrets.EnvLoader(jwtSecretKey))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	secret := signingSecret(vault, func() string { return holder.Get().Auth.JWTSecret })
	if len(secret()) == 0 {
		return errors.New("jwt signing secret is not configured (set " + jwtSecretKey + ")")
	}

	// SIGHUP reloads the YAML config and the secret vault in place.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := holder.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			} else {
				slog.Info("config reloaded")
			}
			if changed, err := vault.Reload(); err != nil {
				slog.Error("secret reload failed", "error", err)
			} else if len(changed) > 0 {
				slog.Info("secrets rotated", "keys", changed)
			}
		}
	}()

	// --- Telemetry ---

	shutdownTelemetry, err := otel.Setup(ctx, "atrium", cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
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

	// Refuse to serve if any tenant-scoped table has row security disabled.
	if err := postgres.VerifyRowSecurity(ctx, pool); err != nil {
		return fmt.Errorf("row security: %w", err)
	}

	queue, err := atriumnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Tiered cache: in-process ristretto in front of a JetStream KV bucket
	// shared across instances.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	cacheKV, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("cache bucket: %w", err)
	}
	tenantCache := tiered.New(l1, natskv.New(cacheKV), cfg.Cache.L1TTL)

	idemKV, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return fmt.Errorf("idempotency bucket: %w", err)
	}

	// --- Services ---

	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	auditStore := postgres.NewEventStore(pool)

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	dispatcher := service.NewDispatcher(auditStore, queue, hub, breaker, 64, metrics)

	tenantSvc := service.NewTenantService(store, tenantCache, cfg.Cache.L2TTL, dispatcher, metrics, cfg.Tenants)
	authSvc := service.NewAuthService(store, cfg.Auth, secret, metrics)
	authSvc.StartTokenCleanup(ctx, time.Hour)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopLimiter()

	// --- HTTP ---

	handlers := &atriumhttp.Handlers{
		Tenants: tenantSvc,
		Auth:    authSvc,
		Events:  auditStore,
		Hub:     hub,
		ReadyChecks: []atriumhttp.ReadyCheck{
			{Name: "postgres", Check: store.Ping},
			{Name: "nats", Check: func(context.Context) error {
				if !queue.IsConnected() {
					return errors.New("nats disconnected")
				}
				return nil
			}},
			{Name: "breaker", Check: func(context.Context) error {
				if breaker.State() == "open" {
					return errors.New("event publisher circuit open")
				}
				return nil
			}},
		},
	}

	r := chi.NewRouter()

	r.Use(atriumhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(atriumhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otel.HTTPMiddleware("atrium"))
	r.Use(atriumhttp.Logger)
	r.Use(middleware.Auth(authSvc))
	r.Use(middleware.TenantScope)
	r.Use(limiter.Handler)
	r.Use(middleware.Idempotency(idemKV))

	atriumhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if err := queue.Drain(); err != nil {
		slog.Warn("nats drain failed", "error", err)
	}
	return nil
}

// signingSecret prefers the vault value and falls back to the loaded config,
// so the secret can be rotated via SIGHUP without a restart.
func signingSecret(vault *secrets.Vault, fallback func() string) func() []byte {
	return func() []byte {
		if s := vault.Bytes(jwtSecretKey); len(s) > 0 {
			return s
		}
		return []byte(fallback())
	}
}
