package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/phrazzld/lumiere-api/internal/config"
	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/redact"
)

const maxLineSize = 1 << 20

// Generator drives the pipeline process. It satisfies generation.Generator.
type Generator struct {
	pipeline   config.PipelineConfig
	generation config.GenerationConfig
	options    *generation.Options
	start      startFunc
	logger     *slog.Logger

	mu         sync.Mutex
	proc       process
	events     chan event
	readerDone chan struct{}
	writeMu    sync.Mutex
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator that runs the configured command.
func NewGenerator(
	pipelineCfg config.PipelineConfig,
	generationCfg config.GenerationConfig,
	options *generation.Options,
	logger *slog.Logger,
) *Generator {
	return newGenerator(pipelineCfg, generationCfg, options, execStarter(pipelineCfg), logger)
}

func newGenerator(
	pipelineCfg config.PipelineConfig,
	generationCfg config.GenerationConfig,
	options *generation.Options,
	start startFunc,
	logger *slog.Logger,
) *Generator {
	return &Generator{
		pipeline:   pipelineCfg,
		generation: generationCfg,
		options:    options,
		start:      start,
		logger:     logger.With("component", "pipeline"),
	}
}

// Initialize starts the process and waits until it reports the model is
// loaded. After a failure the process is torn down and Initialize may be
// called again.
func (g *Generator) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proc != nil {
		return ErrAlreadyStarted
	}

	proc, err := g.start(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", generation.ErrNotInitialized, err)
	}
	g.proc = proc
	g.events = make(chan event, 64)
	g.readerDone = make(chan struct{})

	go g.readEvents(proc.Stdout(), g.events, g.readerDone)
	go g.logStderr(proc.Stderr())

	if err := g.ready(ctx); err != nil {
		g.stopLocked()
		return err
	}

	g.logger.Info("pipeline ready",
		"command", g.pipeline.Command,
		"model_path", g.generation.ModelPath,
		"lora", g.generation.ApplyLoRA,
		"embeddings", g.generation.ApplyEmbeddings)
	return nil
}

// ready is called with g.mu held.
func (g *Generator) ready(ctx context.Context) error {
	err := g.sendTo(g.proc, initCommand{
		Type:            cmdInit,
		ModelPath:       g.generation.ModelPath,
		VAEFile:         g.generation.VAEFile,
		ApplyLoRA:       g.generation.ApplyLoRA,
		ApplyEmbeddings: g.generation.ApplyEmbeddings,
		OutputDir:       g.generation.OutputDir,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", generation.ErrNotInitialized, err)
	}

	waitCtx := ctx
	if g.pipeline.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.pipeline.ReadyTimeout)
		defer cancel()
	}

	for {
		select {
		case ev, ok := <-g.events:
			if !ok {
				return fmt.Errorf("%w: %w", generation.ErrNotInitialized, ErrProcessExited)
			}
			switch ev.Type {
			case eventReady:
				return nil
			case eventError:
				return fmt.Errorf("%w: %s", generation.ErrNotInitialized, ev.Message)
			default:
				g.logger.Debug("ignoring event before ready", "type", ev.Type)
			}
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrReadyTimeout
		}
	}
}

// Generate runs one job and returns the URL under which the image is served.
func (g *Generator) Generate(
	ctx context.Context,
	req generation.Request,
	progress chan<- generation.Progress,
) (string, error) {
	g.mu.Lock()
	events := g.events
	running := g.proc != nil
	g.mu.Unlock()

	if !running {
		return "", generation.ErrNotInitialized
	}

	cmd, err := g.resolve(req)
	if err != nil {
		return "", err
	}

	g.logger.Info("starting generation",
		"job_id", cmd.ID,
		"prompt", cmd.Prompt,
		"negative_prompt", cmd.NegativePrompt,
		"steps", cmd.Steps,
		"width", cmd.Width,
		"height", cmd.Height,
		"embedding_model", cmd.EmbeddingModel)

	if err := g.send(cmd); err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return "", fmt.Errorf("%w: %w", generation.ErrGenerationFailed, ErrProcessExited)
			}
			if ev.ID != cmd.ID {
				// Left over from a job whose caller gave up.
				continue
			}

			switch ev.Type {
			case eventProgress:
				select {
				case progress <- generation.Progress{Step: ev.Step, Total: ev.Total}:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			case eventDone:
				if ev.Filename == "" {
					return "", fmt.Errorf("%w: done event without filename", generation.ErrInvalidResponse)
				}
				return g.locator(ev.Filename), nil
			case eventError:
				msg := ev.Message
				if msg == "" {
					msg = "unknown pipeline error"
				}
				return "", errors.New(msg)
			default:
				g.logger.Debug("ignoring unexpected event", "type", ev.Type)
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// resolve turns a request into a concrete job using the configured options
// and prompt decoration.
func (g *Generator) resolve(req generation.Request) (generateCommand, error) {
	if err := g.options.Validate(req); err != nil {
		return generateCommand{}, err
	}
	steps, _ := g.options.Steps(req.Quality)
	width, height, _ := g.options.Dimensions(req.AspectRatio)

	return generateCommand{
		Type:           cmdGenerate,
		ID:             uuid.New().String(),
		Prompt:         req.Prompt + g.generation.PositivePrompt,
		NegativePrompt: g.generation.NegativePrompt,
		Steps:          steps,
		Width:          width,
		Height:         height,
		GuidanceScale:  g.generation.GuidanceScale,
		EmbeddingModel: req.EmbeddingModel,
	}, nil
}

func (g *Generator) locator(filename string) string {
	return g.generation.ResultURLPrefix + url.PathEscape(filepath.Base(filename))
}

func (g *Generator) send(msg interface{}) error {
	g.mu.Lock()
	proc := g.proc
	g.mu.Unlock()
	return g.sendTo(proc, msg)
}

func (g *Generator) sendTo(proc process, msg interface{}) error {
	if proc == nil {
		return generation.ErrNotInitialized
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	line = append(line, '\n')

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if _, err := proc.Stdin().Write(line); err != nil {
		return fmt.Errorf("failed to write to pipeline: %w", err)
	}
	return nil
}

// readEvents decodes stdout until it closes. Lines that are not JSON events
// are treated as plain log output.
func (g *Generator) readEvents(r io.Reader, out chan<- event, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			g.logger.Info("pipeline output", "line", string(line))
			continue
		}
		out <- ev
	}
	if err := scanner.Err(); err != nil {
		g.logger.Warn("pipeline stdout read failed", "error", err)
	}
}

func (g *Generator) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		g.logger.Info("pipeline stderr", "line", redact.String(scanner.Text()))
	}
}

// Close stops the process. It is safe to call on a generator that never
// started.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.proc == nil {
		return nil
	}
	g.stopLocked()
	g.logger.Info("pipeline stopped")
	return nil
}

func (g *Generator) stopLocked() {
	proc := g.proc
	_ = proc.Stdin().Close()
	if err := proc.Kill(); err != nil {
		g.logger.Debug("failed to kill pipeline", "error", err)
	}
	// Drain stdout before Wait; the process group is gone so this ends.
	for range g.events {
	}
	<-g.readerDone
	if err := proc.Wait(); err != nil {
		g.logger.Debug("pipeline exited", "error", redact.Error(err))
	}
	g.proc = nil
}
