// Command registryctl runs registry operations against the configured
// database without going through the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/app"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/config"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

func main() {
	_ = godotenv.Overload()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openService, os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		if msg := core.FormatUserError(err); msg != "" && core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// openService builds a service from the environment. The returned func
// releases its connections.
func openService(ctx context.Context) (*core.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	// stdout carries command output, so logs go to stderr.
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a.Service, func() { a.Close() }, nil
}
