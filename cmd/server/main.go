// Package main implements the entry point for the Lumiere API server, which
// queues image generation jobs, runs them one at a time on the diffusion
// pipeline and streams their status to clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/lumiere-api/internal/config"
	"github.com/phrazzld/lumiere-api/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lumiere-api: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, builds the application and serves until ctx is
// done.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("server configuration loaded",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"pipeline_command", cfg.Pipeline.Command,
		"enhancer_enabled", cfg.Enhancer.Enabled)

	app, err := newApplication(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.serve(ctx); err != nil {
		log.Error("server stopped with error", slog.Any("error", err))
		return err
	}
	return nil
}
