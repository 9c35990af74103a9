package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/checkout-reconciler/internal/adapters/redis"
	"github.com/kevin07696/checkout-reconciler/internal/app"
	"github.com/kevin07696/checkout-reconciler/internal/config"
	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	cronHandler "github.com/kevin07696/checkout-reconciler/internal/handlers/cron"
	paymentHandler "github.com/kevin07696/checkout-reconciler/internal/handlers/payment"
	authMiddleware "github.com/kevin07696/checkout-reconciler/internal/middleware"
	"github.com/kevin07696/checkout-reconciler/internal/scheduler"
	"github.com/kevin07696/checkout-reconciler/pkg/middleware"
	"github.com/kevin07696/checkout-reconciler/pkg/observability"
	"github.com/kevin07696/checkout-reconciler/pkg/shutdown"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting checkout reconciler",
		zap.String("version", "0.1.0"),
	)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Components shut down in reverse registration order
	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)

	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	sm.RegisterNoErr("postgres", dbPool.Close)

	redisClient, err := initRedis(ctx, cfg, logger)
	if err != nil {
		sm.Shutdown()
		return fmt.Errorf("initialize redis: %w", err)
	}
	if redisClient != nil {
		sm.RegisterCloser("redis", redisClient)
	}

	provider, err := app.NewSecretProvider(ctx, cfg.Secrets, logger)
	if err != nil {
		sm.Shutdown()
		return fmt.Errorf("initialize secret provider: %w", err)
	}
	if closer, ok := provider.(io.Closer); ok {
		sm.RegisterCloser("secret_provider", closer)
	}
	keys, err := app.ResolveGatewayKeys(ctx, cfg.Gateway, provider, logger)
	if err != nil {
		sm.Shutdown()
		return err
	}

	deps, err := app.Build(ctx, cfg, dbPool, keys, logger)
	if err != nil {
		sm.Shutdown()
		return fmt.Errorf("initialize services: %w", err)
	}
	sm.RegisterFunc("notification_publishers", deps.Close)
	sm.Register("notifications", deps.Tracker.Shutdown)

	// HTTP surface
	var counter middleware.Counter
	if redisClient != nil {
		counter = redis.NewRateCounter(redisClient, "ratelimit")
	}
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Limit:      cfg.RateLimit.Limit,
		Window:     cfg.RateLimit.Window,
		TrustProxy: cfg.RateLimit.TrustProxy,
	}, counter, logger)
	sm.RegisterNoErr("rate_limiter", rateLimiter.Shutdown)

	cronAuth := authMiddleware.NewSecretAuth("cron", cfg.Server.CronSecret, "X-Cron-Secret", logger)
	adminAuth := authMiddleware.NewSecretAuth("admin", cfg.Server.AdminAPIKey, "X-Admin-Key", logger)
	if cfg.Server.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY not set, admin refunds are disabled")
	}

	requestTracker := shutdown.NewInFlightTracker("cron_requests", logger)

	mux := http.NewServeMux()
	paymentHandler.NewHandler(deps.PaymentCallbacks, deps.RefundCallbacks, deps.Refunds, deps.Timeouts, logger.Named("payment_handler")).
		RegisterRoutes(mux,
			func(route string, next http.Handler) http.Handler {
				return observability.InstrumentHandler(route, rateLimiter.Middleware(route, next))
			},
			func(next http.Handler) http.Handler {
				return observability.InstrumentHandler("admin_refund", adminAuth.Middleware(next))
			},
		)
	cronHandler.NewHandler(deps.Sweeper, deps.Settlements, deps.SettlementRuns, deps.CustomOrders, requestTracker, deps.Timeouts, logger.Named("cron_handler")).
		RegisterRoutes(mux, observability.InstrumentHandler, cronAuth.Middleware)

	securityHeaders := authMiddleware.NewSecurityHeaders(!cfg.IsProduction())
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           securityHeaders.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      deps.Timeouts.CronJob + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	checks := map[string]observability.Pinger{"postgres": dbPool}
	if redisClient != nil {
		checks["redis"] = observability.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	metricsServer := observability.NewMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), observability.NewHealthChecker(checks))

	sm.Register("cron_requests", requestTracker.Shutdown)
	sm.RegisterHTTPServer("metrics_server", metricsServer)
	sm.RegisterHTTPServer("http_server", httpServer)

	// In-process scheduler, registered last so it stops first
	if cfg.Reconcile.SchedulerEnabled {
		sched, err := newScheduler(cfg, deps, redisClient, logger)
		if err != nil {
			sm.Shutdown()
			return err
		}
		sched.Start()
		sm.Register("scheduler", sched.Shutdown)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return sm.Shutdown()
	})

	return g.Wait()
}

// newScheduler registers the reconciliation jobs on their intervals
func newScheduler(cfg *config.Config, deps *app.App, redisClient *goredis.Client, logger *zap.Logger) (*scheduler.Scheduler, error) {
	var locker ports.Locker
	if redisClient != nil {
		locker = redis.NewLocker(redisClient, "reconciler:lock")
	}
	sched := scheduler.New(locker, deps.Timeouts, logger.Named("scheduler"))

	jobs := []scheduler.Job{
		{
			Name:     domain.JobExpirePendingPayments,
			Interval: cfg.Reconcile.SweepInterval,
			Run: func(ctx context.Context) error {
				_, err := deps.Sweeper.Sweep(ctx, domain.SweepStale{})
				return err
			},
		},
		{
			Name:     domain.JobSettlementOverdue,
			Interval: cfg.Reconcile.SettlementInterval,
			Run: func(ctx context.Context) error {
				_, err := deps.Settlements.Scan(ctx)
				return err
			},
		},
		{
			// Reruns within the day find nothing left to settle
			Name:     domain.JobCreateSettlements,
			Interval: cfg.Reconcile.SettlementCreate,
			Run: func(ctx context.Context) error {
				_, err := deps.SettlementRuns.Generate(ctx)
				return err
			},
		},
		{
			Name:     domain.JobExpireCustomOrders,
			Interval: cfg.Reconcile.CustomOrderEvery,
			Run: func(ctx context.Context) error {
				_, err := deps.CustomOrders.Expire(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}
	return sched, nil
}

// initLogger initializes the logger
func initLogger() *zap.Logger {
	if os.Getenv("ENVIRONMENT") == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}

	logger, _ := zap.NewDevelopment()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)
	return pool, nil
}

// initRedis connects when Redis is configured. nil means the rate limiter
// and scheduler run in single-instance mode.
func initRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*goredis.Client, error) {
	rc := redis.Config{
		URL:          cfg.Redis.URL,
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	if !rc.Enabled() {
		logger.Warn("Redis not configured, using in-process rate limiting and unguarded scheduler")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := redis.NewClient(ctx, rc)
	if err != nil {
		return nil, err
	}
	logger.Info("Redis connection established")
	return client, nil
}
