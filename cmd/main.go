/**
 * @description
 * Main entry point for the pledge-service. It loads configuration, connects to
 * PostgreSQL, RabbitMQ and Redis, wires the pledge service, HTTP API and reminder
 * scheduler together, and shuts them down gracefully on SIGINT/SIGTERM.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/joho/godotenv: local .env loading.
 * - github.com/redis/go-redis/v9: shared fix rate limiting.
 * - internal/api, internal/app, internal/config, internal/store, pkg/rabbitmq.
 */
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/d9rick/GeoPledge/internal/api"
	"github.com/d9rick/GeoPledge/internal/app"
	"github.com/d9rick/GeoPledge/internal/config"
	"github.com/d9rick/GeoPledge/internal/schedule"
	"github.com/d9rick/GeoPledge/internal/store"
	"github.com/d9rick/GeoPledge/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting pledge-service", "port", cfg.ServerPort, "schedule_time_zone", cfg.ScheduleTimeZone)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to stay compatible with transaction poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	if err := store.EnsureSchema(ctx, dbpool); err != nil {
		logger.Error("failed to apply database schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set; pledge events will be dropped")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", "error", err)
	} else {
		defer producer.Close()
		publisher = producer
		logger.Info("rabbitmq producer connected", "exchange", cfg.EventsExchange)
	}

	repository := store.NewPostgresRepository(dbpool)
	resolver := schedule.NewResolver(cfg.ScheduleLocation)
	service := app.NewService(repository, repository, resolver, publisher, cfg.EventsExchange, logger)

	if redisClient := connectRedis(ctx, cfg, logger); redisClient != nil {
		defer redisClient.Close()
		service.SetFixRateLimiter(app.NewRedisFixRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.FixRateLimitPerMinute)
	}

	jobs := app.NewJobs(repository, resolver, publisher, cfg.EventsExchange, cfg.ReminderLead(), logger)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler, api.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()
	logger.Info("pledge-service stopped")
}

func connectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) *redis.Client {
	if cfg.FixRateLimitPerMinute <= 0 {
		return nil
	}
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; fix rate limiting disabled")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; fix rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; fix rate limiting disabled", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}
