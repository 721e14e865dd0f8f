package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-orderlines/internal/basket"
	"github.com/noah-isme/toko-orderlines/internal/checkout"
	"github.com/noah-isme/toko-orderlines/internal/config"
	"github.com/noah-isme/toko-orderlines/internal/events"
	"github.com/noah-isme/toko-orderlines/internal/files"
	"github.com/noah-isme/toko-orderlines/internal/health"
	"github.com/noah-isme/toko-orderlines/internal/itemname"
	"github.com/noah-isme/toko-orderlines/internal/lock"
	"github.com/noah-isme/toko-orderlines/internal/obs"
	"github.com/noah-isme/toko-orderlines/internal/orderitem"
	"github.com/noah-isme/toko-orderlines/internal/payment"
	"github.com/noah-isme/toko-orderlines/internal/queue"
	"github.com/noah-isme/toko-orderlines/internal/resilience"
	"github.com/noah-isme/toko-orderlines/internal/stock"
	"github.com/noah-isme/toko-orderlines/internal/vat"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "toko-orderlines-worker",
		Environment:   cfg.AppEnv,
		Endpoint:      cfg.OTLPEndpoint,
		SamplingRatio: cfg.SamplingRatio,
		Attributes:    map[string]string{"queue.kind": checkout.TaskBuildOrderLines, "queue.prefix": cfg.QueuePrefix},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init tracer")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	if cfg.MetricsAddr != "" {
		go serveOps(ctx, cfg.MetricsAddr, health.Deps{DB: pool, Redis: redisClient}, logger)
	}

	taskQueue := queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix, MaxAttempts: cfg.QueueMaxAttempts}

	bus := &events.Bus{Logger: &logger}
	bus.Subscribe("", events.QueueListener{Queue: taskQueue})

	vatStore := vat.PostgresStore{DB: pool}
	basketStore := basket.PostgresStore{DB: pool}

	assembler := &orderitem.Assembler{
		Tax: vatStore,
		Slots: &vat.Classifier{
			Rates: vat.CachedProvider{
				Next:   vatStore,
				Client: redisClient,
				TTL:    cfg.VatCacheTTL,
				Prefix: cfg.QueuePrefix,
				Logger: &logger,
			},
			Channels: vatStore,
			MaxHops:  cfg.VatMaxHops,
			Logger:   &logger,
		},
		Stock: stock.PostgresChecker{DB: pool},
		Fees:  payment.FeeStore{DB: pool},
		Files: files.HTTPCopier{
			BaseURL: cfg.FileServiceURL,
			HTTP: &resilience.HTTPClient{
				Client:      &http.Client{},
				Breaker:     resilience.NewBreaker(resilience.BreakerOptions{Target: "file_service", Logger: &logger}),
				Target:      "file_service",
				MaxAttempts: cfg.FileServiceMaxAttempts,
				Timeout:     cfg.FileServiceTimeout,
				Logger:      &logger,
			},
		},
		Names:      itemname.Filter{Preferred: cfg.ItemNamePreferred, AppendVariationName: cfg.ItemNameAppendVariation},
		Notifier:   bus,
		Reconciler: basket.Reconciler{Store: basketStore, Logger: &logger},
		Logger:     &logger,
	}

	service := &checkout.Service{
		Baskets: basketStore,
		Builder: assembler,
		Locks:   lock.Locker{R: redisClient, Prefix: cfg.QueuePrefix, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockTTL, Logger: &logger},
		LockTTL: cfg.LockTTL,
		Events:  bus,
		Logger:  &logger,
	}
	handler := checkout.TaskHandler{Service: service, Persist: taskQueue, Logger: &logger}

	worker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueuePrefix,
		Kind:              checkout.TaskBuildOrderLines,
		Concurrency:       cfg.QueueConcurrency,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		RetryBase:         cfg.QueueBackoffBase,
		RetryJitter:       0.2,
		Logger:            &logger,
		Handler:           handler.Handle,
	}

	logger.Info().Str("kind", worker.Kind).Int("concurrency", worker.Concurrency).Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

// serveOps exposes /metrics and the health probes until ctx is done.
func serveOps(ctx context.Context, addr string, deps health.Deps, logger zerolog.Logger) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	health.Handler{Checker: deps}.Register(r)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("ops server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("ops server stopped")
	}
}
