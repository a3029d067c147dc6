package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/lumiere-api/internal/config"
	"github.com/phrazzld/lumiere-api/internal/events"
	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/notify"
	"github.com/phrazzld/lumiere-api/internal/platform/gemini"
	"github.com/phrazzld/lumiere-api/internal/platform/pipeline"
	"github.com/phrazzld/lumiere-api/internal/redact"
	"github.com/phrazzld/lumiere-api/internal/task"
)

// closableGenerator is a generator that owns a resource released at shutdown.
type closableGenerator interface {
	generation.Generator
	Close() error
}

// application holds the shared dependencies and owns their shutdown order.
type application struct {
	config *config.Config
	logger *slog.Logger

	bus       *events.Bus
	options   *generation.Options
	generator closableGenerator
	runner    *task.Runner
	notifier  *notify.Notifier
	bridge    *notify.Bridge
}

type applicationOption func(*application)

// withGenerator replaces the pipeline process, for tests.
func withGenerator(gen closableGenerator) applicationOption {
	return func(app *application) {
		app.generator = gen
	}
}

// newApplication wires every component. Nothing is started here.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	opts ...applicationOption,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(app)
	}

	var err error
	app.options, err = generation.NewOptions(cfg.Generation.QualitySteps, cfg.Generation.AspectRatios)
	if err != nil {
		return nil, fmt.Errorf("failed to build generation options: %w", err)
	}

	if err := os.MkdirAll(cfg.Generation.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %s", redact.Error(err))
	}

	if app.generator == nil {
		app.generator = pipeline.NewGenerator(cfg.Pipeline, cfg.Generation, app.options, logger)
	}

	var workerOpts []task.WorkerOption
	if cfg.Enhancer.Enabled {
		enhancer, err := gemini.NewEnhancer(ctx, cfg.Enhancer, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize prompt enhancer: %w", err)
		}
		workerOpts = append(workerOpts, task.WithPreparer(enhancer))
		logger.Info("prompt enhancer enabled",
			"model", cfg.Enhancer.Model,
			"translator_model", cfg.Enhancer.TranslatorModel)
	}

	app.bus = events.NewBus(logger)
	store := task.NewStore(app.bus, logger)
	queue := task.NewQueue(logger)
	worker := task.NewWorker(store, queue, app.generator, task.WorkerConfig{
		InitRetries:    cfg.Worker.InitRetries,
		InitRetryDelay: cfg.Worker.InitRetryDelay,
		ProgressBuffer: cfg.Worker.ProgressBuffer,
	}, logger, workerOpts...)
	app.runner = task.NewRunner(store, queue, worker, logger)

	app.notifier = notify.NewNotifier(logger)
	app.bridge = notify.NewBridge(app.runner, app.notifier, app.bus, notify.BridgeConfig{
		PollInterval:   cfg.Stream.PollInterval,
		MaxMissedPolls: cfg.Stream.MaxMissedPolls,
		MaxPollErrors:  cfg.Stream.MaxPollErrors,
	}, logger)

	return app, nil
}

// cleanup stops background work in dependency order: subscribers get a last
// snapshot and a going-away close, then the worker stops, then the pipeline
// process and the event bus go down.
func (app *application) cleanup(ctx context.Context) {
	app.notifier.Shutdown(ctx, app.runner.Status)
	app.runner.Stop()

	if err := app.generator.Close(); err != nil {
		app.logger.Error("failed to stop generator", "error", redact.Error(err))
	}
	app.bus.Close()

	app.logger.Info("application cleanup completed")
}
