package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/app"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/cache"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"snapshot_max_concurrent", cfg.Snapshot.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()
	registry, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to start registry", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	opts := web.Options{}
	if registry.Redis != nil {
		opts.Limiter = cache.NewRateLimiter(registry.Redis.Client)
	}
	if cfg.Metrics.Enabled {
		registry.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = promhttp.HandlerFor(registry.Registry, promhttp.HandlerOpts{})
	}

	server := web.NewServer(registry.Service, cfg, opts)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight snapshot batches commit before closing the pool.
		if status := registry.Service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for batches to complete", "active", status.Active)
			if err := registry.Service.WaitForBatches(shutdownCtx); err != nil {
				slog.Warn("batches did not complete in time", "error", err)
			} else {
				slog.Info("all batches completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		registry.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
