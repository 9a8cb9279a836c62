package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pace/ingest-service/internal/config"
	"pace/ingest-service/internal/db"
	"pace/ingest-service/internal/events"
	"pace/ingest-service/internal/ingest"
	"pace/ingest-service/internal/logger"
	"pace/ingest-service/internal/match"
	"pace/ingest-service/internal/metrics"
	"pace/ingest-service/internal/retry"
	"pace/ingest-service/internal/scraper"
	"pace/ingest-service/internal/store"
)

// app holds the connected dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
	store   *store.PostgresStore
	metrics *metrics.Metrics
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return nil, err
	}

	log.Info("connecting to postgres")
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, db.DefaultMaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	if rdb == nil {
		log.Warn("redis not configured; events and shared run lock disabled")
	}

	return &app{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		rdb:     rdb,
		store:   store.NewPostgresStore(pool),
		metrics: metrics.New(),
	}, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
	_ = a.log.Sync()
}

// worker assembles the pipeline over the Postgres store. extra options are
// applied last.
func (a *app) worker(extra []scraper.Option) (*scraper.Worker, error) {
	cats, err := a.cfg.ParsedCategories()
	if err != nil {
		return nil, err
	}

	matcher := match.New(a.store, a.cfg.FuzzyLimit, a.cfg.FuzzyThreshold, a.log)
	gateway := ingest.NewGateway(a.store, matcher, retry.DefaultPolicy(), a.log,
		ingest.WithRetryHook(func(int, error) { a.metrics.StoreRetried() }),
	)
	fetcher := scraper.NewUnstopFetcher(scraper.DefaultAPIURL, a.cfg.PageSize, a.cfg.RequestTimeout)

	opts := []scraper.Option{
		scraper.WithCategories(cats),
		scraper.WithMaxPages(a.cfg.MaxPages),
		scraper.WithParallelCategories(a.cfg.ParallelCategories),
		scraper.WithPacer(scraper.NewPacer(a.cfg.MinDelay, a.cfg.MaxDelay)),
		scraper.WithRedFlags(scraper.NewRedFlags(a.cfg.RedFlags)),
		scraper.WithMetrics(a.metrics),
		scraper.WithLogger(a.log),
	}
	if a.cfg.SourceLogEnabled {
		opts = append(opts, scraper.WithSourceLogger(a.store))
	}
	if a.rdb != nil {
		opts = append(opts, scraper.WithPublisher(events.NewPublisher(a.rdb)))
	}
	opts = append(opts, extra...)

	return scraper.NewWorker(fetcher, gateway, opts...), nil
}
