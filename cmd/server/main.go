// Package main is the entrypoint for the carbonledger API server.
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

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/carbonledger/internal/analytics"
	"github.com/kiranshivaraju/carbonledger/internal/api"
	"github.com/kiranshivaraju/carbonledger/internal/api/handler"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/kiranshivaraju/carbonledger/internal/cache"
	"github.com/kiranshivaraju/carbonledger/internal/catalog"
	"github.com/kiranshivaraju/carbonledger/internal/config"
	"github.com/kiranshivaraju/carbonledger/internal/credential"
	"github.com/kiranshivaraju/carbonledger/internal/emissions"
	"github.com/kiranshivaraju/carbonledger/internal/identity"
	"github.com/kiranshivaraju/carbonledger/internal/metrics"
	"github.com/kiranshivaraju/carbonledger/internal/session"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Namespace)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Identity provider
	var provider identity.Provider = identity.NewHTTPClient(cfg.Identity.BaseURL, cfg.Identity.AnonKey, cfg.Identity.Timeout)
	if cfg.Identity.JWTSecret != "" {
		provider = identity.NewJWTProvider(cfg.Identity.JWTSecret, provider)
		slog.Info("session tokens verified locally")
	}

	// 6. Services
	pgStore := store.NewPostgresStore(pool)
	timeout := cfg.Server.StoreTimeout

	keys := credential.NewService(pgStore, cfg.Keys.Prefix, timeout)
	sessions := session.NewResolver(provider, pgStore, timeout)
	factors := catalog.NewService(pgStore, redisCache, cfg.Redis.FactorCacheTTL, timeout)
	entries := emissions.NewService(pgStore, timeout)
	reports := analytics.NewService(pgStore, timeout)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// 7. Build router with dependencies
	deps := api.Dependencies{
		Auth:           mw.NewAuth(keys, sessions, cfg.Identity.CookieName),
		RateLimit:      mw.NewRateLimit(redisCache, cfg.Redis.RateLimitPerMinute),
		RequestTimeout: cfg.Server.RequestTimeout,

		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
		HealthHandler:  healthHandler(pgStore, redisCache),
		AuthCallbackHandler: handler.NewAuthCallbackHandler(provider, handler.CallbackConfig{
			CookieName: cfg.Identity.CookieName,
			Secure:     cfg.Server.Env == "production",
		}),
		FactorsHandler:     handler.NewFactorsHandler(factors),
		AnalyticsHandler:   handler.NewAnalyticsHandler(reports),
		CalculateHandler:   handler.NewCalculateHandler(entries),
		DeleteEntryHandler: handler.NewDeleteEntryHandler(entries),
		GenerateKeyHandler: handler.NewGenerateKeyHandler(keys),
		ListKeysHandler:    handler.NewListKeysHandler(keys),
		RevokeKeyHandler:   handler.NewRevokeKeyHandler(keys),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" || checks["cache"] != "ok" {
			response.Degraded(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", map[string]any{"services": checks})
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
