// Package cli runs completions by spawning the Claude command-line tool.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/providers"
)

const (
	// DefaultCLIPath is used when neither the provider nor the runner names one
	DefaultCLIPath = "claude"

	maxLineSize  = 16 * 1024 * 1024
	waitDelay    = 2 * time.Second
	maxStderrLen = 2000
)

// Runner spawns one CLI process per attempt
type Runner struct {
	cliPath string
	logger  *zap.Logger
}

// NewRunner creates a CLI runner. cliPath is the fallback binary for models
// whose provider does not set one.
func NewRunner(cliPath string, logger *zap.Logger) *Runner {
	if cliPath == "" {
		cliPath = DefaultCLIPath
	}
	return &Runner{cliPath: cliPath, logger: logger}
}

// Kind returns the backend kind served by this runner
func (r *Runner) Kind() models.BackendKind {
	return models.BackendKindCLI
}

func (r *Runner) binary(inv providers.Invocation) string {
	if inv.Model.Provider.CLIPath != "" {
		return inv.Model.Provider.CLIPath
	}
	return r.cliPath
}

// Args builds the CLI argument list for inv
func Args(inv providers.Invocation, stream bool) []string {
	args := []string{"-p", inv.Prompt, "--model", inv.Model.ModelID, "--dangerously-skip-permissions"}
	if inv.System != "" {
		args = append(args, "--system-prompt", inv.System)
	}
	if stream {
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	return args
}

func (r *Runner) command(ctx context.Context, inv providers.Invocation, stream bool) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.binary(inv), Args(inv, stream)...)
	cmd.WaitDelay = waitDelay
	return cmd
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Execute runs the CLI to completion and returns its trimmed stdout
func (r *Runner) Execute(ctx context.Context, inv providers.Invocation) (string, error) {
	ctx, cancel := withTimeout(ctx, inv.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := r.command(ctx, inv, false)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running cli",
		zap.String("model", inv.Model.Name),
		zap.Int("prompt_len", len(inv.Prompt)),
	)

	runErr := cmd.Run()
	if err := r.classify(ctx, inv, runErr, stderr.String()); err != nil {
		return "", err
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", r.backendError(inv, services.BackendErrorEmpty, "cli returned empty output", stderr.String(), nil)
	}
	return out, nil
}

// Stream starts the CLI in stream-json mode. The process is killed and
// reaped by Close, by context cancellation or when the output ends.
func (r *Runner) Stream(ctx context.Context, inv providers.Invocation) (providers.DeltaStream, error) {
	ctx, cancel := withTimeout(ctx, inv.Timeout)

	cmd := r.command(ctx, inv, true)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, r.backendError(inv, services.BackendErrorExit, "failed to open stdout", "", err)
	}

	r.logger.Debug("streaming cli",
		zap.String("model", inv.Model.Name),
		zap.Int("prompt_len", len(inv.Prompt)),
	)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, r.backendError(inv, services.BackendErrorExit, "failed to start cli", "", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return &stream{
		runner:  r,
		inv:     inv,
		ctx:     ctx,
		cancel:  cancel,
		cmd:     cmd,
		scanner: scanner,
		stderr:  stderr,
	}, nil
}

// classify maps a finished process's error into a backend error
func (r *Runner) classify(ctx context.Context, inv providers.Invocation, runErr error, stderr string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return r.backendError(inv, services.BackendErrorTimeout,
			fmt.Sprintf("cli timed out after %s", inv.Timeout), stderr, ctx.Err())
	case ctx.Err() != nil:
		return ctx.Err()
	case runErr == nil:
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return r.backendError(inv, services.BackendErrorExit,
			fmt.Sprintf("cli exited with code %d", exitErr.ExitCode()), stderr, runErr)
	}
	return r.backendError(inv, services.BackendErrorExit, "cli failed", stderr, runErr)
}

func (r *Runner) backendError(inv providers.Invocation, kind services.BackendErrorKind, msg, stderr string, cause error) *services.BackendError {
	err := services.NewBackendError(inv.Model.Name, kind, msg, cause)
	err.Stderr = truncate(strings.TrimSpace(stderr), maxStderrLen)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type stream struct {
	runner  *Runner
	inv     providers.Invocation
	ctx     context.Context
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  *bytes.Buffer
	decoder eventDecoder

	waitOnce  sync.Once
	waitErr   error
	closeOnce sync.Once
	final     error
}

// Recv returns the next text delta, or io.EOF once the process has exited
// cleanly after producing output.
func (s *stream) Recv() (string, error) {
	if s.final != nil {
		return "", s.final
	}

	for s.scanner.Scan() {
		if text := s.decoder.decode(s.scanner.Text()); text != "" {
			return text, nil
		}
	}

	s.final = s.finish(s.scanner.Err())
	return "", s.final
}

func (s *stream) finish(scanErr error) error {
	waitErr := s.wait()
	defer s.cancel()

	if err := s.runner.classify(s.ctx, s.inv, waitErr, s.stderr.String()); err != nil {
		return err
	}
	if s.decoder.failure != "" {
		return s.runner.backendError(s.inv, services.BackendErrorExit, s.decoder.failure, s.stderr.String(), nil)
	}
	if scanErr != nil {
		return s.runner.backendError(s.inv, services.BackendErrorMalformed, "failed to read cli output", s.stderr.String(), scanErr)
	}
	if !s.decoder.yielded {
		return s.runner.backendError(s.inv, services.BackendErrorEmpty, "cli returned empty output", s.stderr.String(), nil)
	}
	return io.EOF
}

func (s *stream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close kills the process if it is still running and reaps it
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.wait()
	})
	return nil
}
