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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/tenantauth/internal/featureflags"
	"github.com/aryan0dhankhar/tenantauth/internal/handler"
	"github.com/aryan0dhankhar/tenantauth/internal/infrastructure/logger"
	redisinfra "github.com/aryan0dhankhar/tenantauth/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/metrics"
	"github.com/aryan0dhankhar/tenantauth/internal/observability/tracing"
	"github.com/aryan0dhankhar/tenantauth/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/tenantauth/internal/reliability/retry"
	"github.com/aryan0dhankhar/tenantauth/internal/repository"
	"github.com/aryan0dhankhar/tenantauth/internal/security"
	"github.com/aryan0dhankhar/tenantauth/internal/security/audit"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
	"github.com/aryan0dhankhar/tenantauth/internal/security/lockout"
	"github.com/aryan0dhankhar/tenantauth/internal/security/middleware"
	"github.com/aryan0dhankhar/tenantauth/internal/security/ratelimit"
	"github.com/aryan0dhankhar/tenantauth/internal/service"
	"github.com/aryan0dhankhar/tenantauth/internal/worker"
	"github.com/aryan0dhankhar/tenantauth/pkg/config"
	"github.com/aryan0dhankhar/tenantauth/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("starting tenantauth server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "tenantauth", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Connect to the record store; it may still be starting
	pool, err := retry.Do(ctx, nil, log, "database connect", func(ctx context.Context) (*database.ConnectionPool, error) {
		return database.NewConnectionPool(ctx, &database.Config{
			Driver: cfg.DBDriver,
			DSN:    cfg.DatabaseURL,
		}, log)
	})
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DBMigrate {
		if err := repository.Migrate(ctx, pool.GetDB(), log); err != nil {
			log.Error("failed to migrate database", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 4. Optional Redis for shared lockout counters
	var redisClient *redisinfra.Client
	if cfg.RedisURL != "" {
		redisClient, err = retry.Do(ctx, nil, log, "redis connect", func(ctx context.Context) (*redisinfra.Client, error) {
			return redisinfra.NewClient(ctx, cfg.RedisURL, log)
		})
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	// 5. Security primitives
	hasher, err := auth.NewHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		log.Error("failed to create password hasher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	tokenManager, err := auth.NewTokenManager(auth.TokenManagerConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		Issuer:        "tenantauth",
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		log.Error("failed to create token manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	auditLogger := audit.NewLogger(log)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	guard := newLockoutGuard(cfg, redisClient, log)

	cleanupWorker := worker.NewCleanupWorker(log, time.Minute)
	if sweeper, ok := guard.(worker.Sweeper); ok {
		cleanupWorker.Register("lockout", sweeper)
	}
	go cleanupWorker.Start(ctx)

	// 6. Repositories and services
	tenantRepo := repository.NewSQLTenantRepository(pool.GetDB(), log)
	userRepo := repository.NewSQLUserRepository(pool.GetDB(), log)

	tenantService := service.NewTenantService(tenantRepo, hasher, auditLogger, log)
	authService := service.NewAuthService(service.AuthServiceDeps{
		Resolver: service.NewAPIKeyResolver(tenantRepo, log),
		Tenants:  tenantService,
		Users:    service.NewUserService(userRepo, hasher, log),
		Sessions: service.NewSessionService(userRepo, tokenManager, log),
		Lockout:  guard,
		Authz:    security.NewAuthorizationService(log),
		Audit:    auditLogger,
	}, log)

	// 7. Setup HTTP routes
	mux := http.NewServeMux()
	handler.Routes{
		Company:  handler.NewCompanyHandler(tenantService, authService, log),
		User:     handler.NewUserHandler(authService, cfg.CookieSecure, cfg.RefreshTokenTTL, log),
		Health:   handler.NewHealthHandler(pool, redisClient, log),
		Verifier: authService,
		Logger:   log,
	}.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Metrics wraps the mux directly so the matched pattern is visible.
	var rootHandler http.Handler = metrics.HTTPMetricsMiddleware(mux)
	rootHandler = middleware.RateLimit(rateLimiter, log)(rootHandler)
	rootHandler = middleware.ValidateJSONContentType(log)(rootHandler)
	rootHandler = middleware.SanitizeInputs(log)(rootHandler)
	rootHandler = middleware.CORS(cfg.CORSAllowedOrigins)(rootHandler)
	rootHandler = middleware.RequestID(log)(rootHandler)
	rootHandler = otelhttp.NewHandler(rootHandler, "tenantauth")

	// 8. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("db_driver", pool.Driver()),
		slog.Bool("redis", redisClient != nil),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop cleanup worker
	rateLimiter.Stop()
	log.Info("server stopped")
}

// newLockoutGuard picks where failed-signin counters live. Redis shares
// them across replicas; without it each process counts on its own.
func newLockoutGuard(cfg *config.Config, redisClient *redisinfra.Client, log *slog.Logger) lockout.Guard {
	if !featureflags.EnabledOr(featureflags.LoginLockout, true) {
		log.Info("login lockout disabled")
		return lockout.Disabled{}
	}
	if redisClient == nil {
		return lockout.NewMemoryGuard(cfg.LoginMaxFailures, cfg.LoginLockoutWindow)
	}

	breaker := circuitbreaker.NewCircuitBreaker(5, 1, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		log.Warn("lockout store breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return lockout.NewRedisGuard(redisClient, breaker, cfg.LoginMaxFailures, cfg.LoginLockoutWindow, log)
}
