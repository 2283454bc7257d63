/**
 * @description
 * This is the main entry point for the bank sync engine. It is responsible
 * for initializing all components: configuration, structured logging, the
 * database pool and migrations, the token cipher, the optional RabbitMQ
 * producer and Redis lock, the reconciler, the scheduler, and the operator
 * HTTP server. Run-once mode executes a single tick and exits with a status
 * code; otherwise the scheduler runs until SIGINT/SIGTERM.
 *
 * @dependencies
 * - log/slog, net/http, os/signal: Standard Go libraries.
 * - github.com/jackc/pgx/v5 (+ pgxpool): PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Distributed tenant lock backend.
 * - internal/api, internal/app, internal/config, internal/domain,
 *   internal/store: Internal packages of the engine.
 * - pkg/mercuryclient, pkg/rabbitmq: Bank API adapter and event producer.
 */

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kumpeapps/mercury-bank-download-sub000/internal/api"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/app"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/config"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/domain"
	"github.com/kumpeapps/mercury-bank-download-sub000/internal/store"
	"github.com/kumpeapps/mercury-bank-download-sub000/pkg/mercuryclient"
	"github.com/kumpeapps/mercury-bank-download-sub000/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL must be configured")
		os.Exit(1)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		logger.Error("SECRET_KEY must be configured")
		os.Exit(1)
	}

	logger.Info("starting bank sync engine", "port", cfg.ServerPort, "run_once", cfg.RunOnceEnabled())

	if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database schema up to date")

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connected")

	repo := store.NewPostgresRepository(dbpool)

	cipher, err := domain.NewTokenCipher(cfg.SecretKey)
	if err != nil {
		logger.Error("token cipher init failed", "error", err)
		os.Exit(1)
	}

	factory := func(token string, sandbox bool) app.BankClient {
		baseURL := cfg.MercuryAPIBaseURL
		if sandbox {
			baseURL = cfg.MercurySandboxBaseURL
		}
		return mercuryclient.NewClient(baseURL, token, cfg.HTTPTimeout())
	}

	reconciler := app.NewReconciler(repo, cipher, factory, logger, cfg.SyncDaysBack, cfg.SyncWorkers)

	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		producer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.SyncEventExchange, logger)
		if prodErr != nil {
			logger.Warn("rabbitmq producer unavailable; falling back to no-op publisher", "error", prodErr)
			reconciler.SetEventPublisher(&rabbitmq.EventProducerFallback{Logger: logger})
		} else {
			defer producer.Close()
			reconciler.SetEventPublisher(producer)
			logger.Info("rabbitmq producer connected", "exchange", cfg.SyncEventExchange)
		}
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.Warn("redis url parse failed; tenant locking disabled", "error", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.Warn("redis ping failed; tenant locking disabled", "error", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				reconciler.SetSyncLocker(app.NewRedisSyncLock(redisClient, cfg.RedisLockPrefix), cfg.SyncLockTTL())
				logger.Info("redis connected; tenant locking enabled")
			}
		}
	}

	scheduler := app.NewScheduler(reconciler, logger, cfg.SyncInterval(), cfg.RecoveryInterval())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunOnceEnabled() {
		if err := scheduler.RunOnce(ctx); err != nil {
			logger.Error("sync run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("sync run complete")
		return
	}

	policies := app.NewPolicyEngine(repo, logger)
	handler := api.NewHandler(repo, policies, scheduler, cipher, logger)
	router := api.NewRouter(handler, cfg.InternalAPIKey)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}
	go func() {
		logger.Info("operator api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}
	logger.Info("bank sync engine stopped")
}

// newLogger builds the process-wide JSON logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
