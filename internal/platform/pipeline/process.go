package pipeline

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"github.com/phrazzld/lumiere-api/internal/config"
)

// process is a running pipeline with its standard streams.
type process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
}

// startFunc launches the pipeline process.
type startFunc func(ctx context.Context) (process, error)

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Stderr() io.Reader     { return p.stderr }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }

// Kill terminates the whole process group, so helpers spawned by the
// pipeline go down with it.
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill process group: %w", err)
	}
	return nil
}

// execStarter runs cfg.Command in its own process group. The process is not
// bound to ctx: it lives until Close.
func execStarter(cfg config.PipelineConfig) startFunc {
	return func(ctx context.Context) (process, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Dir = cfg.WorkDir
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setpgid: true,
		}

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
		}

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to start %s: %w", cfg.Command, err)
		}

		return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
	}
}
