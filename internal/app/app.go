// Package app wires configuration into a running registry: the Postgres
// pool, optional Redis and Kafka collaborators, blob storage, metrics and
// the core service. Both binaries start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/blob"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/cache"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/events"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/metrics"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/store/postgres"
)

// App holds the long-lived resources behind a core.Service.
type App struct {
	Service  *core.Service
	Pool     *pgxpool.Pool
	Redis    *cache.Client // nil when REDIS_URL is unset
	Registry *prometheus.Registry

	publisher *events.Publisher
}

// Open connects to every configured backend and builds the service.
// Optional backends that are configured but unreachable are fatal.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Pool: pool, Registry: prometheus.NewRegistry()}

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := blob.NewLocalStore(cfg.Blob.Dir, cfg.Blob.BaseURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []core.Option{
		core.WithBlobStore(blobs),
		core.WithBatchLimiter(core.NewBatchLimiter(cfg.Snapshot.MaxConcurrent, cfg.Snapshot.MaxWaitTime)),
		core.WithChunkSize(cfg.Snapshot.ChunkSize),
		core.WithMaxSnapshotBytes(cfg.Snapshot.MaxFileSize),
		core.WithSnapshotTimeout(cfg.Snapshot.Timeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, core.WithMetrics(metrics.New(a.Registry)))
	}

	a.Redis, err = cache.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Redis != nil {
		opts = append(opts, core.WithStatsCache(cache.NewStatsCache(a.Redis.Client, cfg.Redis.StatsTTL)))
		slog.Info("redis connected", "stats_ttl", cfg.Redis.StatsTTL)
	}

	a.publisher, err = events.New(cfg.Kafka)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.publisher != nil {
		opts = append(opts, core.WithPublisher(a.publisher))
		slog.Info("publishing audit events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.AuditTopic)
	}

	a.Service = core.NewService(postgres.New(pool), opts...)
	return a, nil
}

// Close releases every backend. Safe to call on a partially opened App.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
