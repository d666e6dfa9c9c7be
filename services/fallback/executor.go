// Package fallback drives backend attempts across a routing decision's
// candidate chain.
//
// Non-streaming requests advance past any failed attempt. Streaming requests
// advance only while nothing has reached the client; once a backend has
// emitted a delta it owns the response until it finishes or fails visibly.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/upb/llm-bridge/internal/observability"
	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/providers"
)

const (
	// DefaultAttemptTimeout bounds one backend attempt
	DefaultAttemptTimeout = 300 * time.Second

	// DefaultMaxConcurrent is the global number of in-flight backend invocations
	DefaultMaxConcurrent = 5
)

// Config holds executor settings
type Config struct {
	AttemptTimeout time.Duration
	MaxConcurrent  int64
}

// DefaultConfig returns the default executor settings
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: DefaultAttemptTimeout,
		MaxConcurrent:  DefaultMaxConcurrent,
	}
}

// Request is one routed completion
type Request struct {
	Decision models.RoutingDecision
	System   string
	Prompt   string
	Messages []models.ChatMessage
}

// Result describes how a request was served
type Result struct {
	// Model is the model that produced the output
	Model    models.ModelSpec
	Content  string
	Attempts []models.ExecutionAttempt

	// Interrupted holds the failure of a stream that had already emitted
	// output. The notice has been emitted by then.
	Interrupted error
}

// EmitFunc delivers one delta to the client. An error stops the stream as a
// client failure; no other backend is tried.
type EmitFunc func(model models.ModelSpec, delta string) error

// Executor runs candidates in order against the runner registry
type Executor struct {
	registry *providers.Registry
	sem      *semaphore.Weighted
	config   Config
	logger   *zap.Logger
	metrics  observability.Metrics
}

// NewExecutor creates a new fallback executor
func NewExecutor(registry *providers.Registry, config Config, logger *zap.Logger, metrics observability.Metrics) *Executor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Executor{
		registry: registry,
		sem:      semaphore.NewWeighted(config.MaxConcurrent),
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs a non-streaming completion, falling back on every backend
// failure until a candidate succeeds or the chain is exhausted.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	candidates := req.Decision.Candidates()
	result := &Result{}

	for i, model := range candidates {
		if i > 0 {
			e.recordFallback(candidates[i-1], model, i, len(candidates))
		}

		started := time.Now()
		text, err := e.executeOne(ctx, req, model)
		attempt := models.ExecutionAttempt{
			Index:    i,
			Model:    model.Name,
			Duration: time.Since(started),
		}

		if err == nil {
			attempt.Outcome = models.AttemptSucceeded
			result.Attempts = append(result.Attempts, attempt)
			e.recordAttempt(model, attempt)
			result.Model = model
			result.Content = text
			return result, nil
		}

		attempt.Err = err
		if stop := e.onFailure(ctx, model, &attempt); stop != nil {
			result.Attempts = append(result.Attempts, attempt)
			return result, stop
		}
		result.Attempts = append(result.Attempts, attempt)
	}

	return result, &services.AllBackendsFailedError{Attempts: result.Attempts}
}

func (e *Executor) executeOne(ctx context.Context, req Request, model models.ModelSpec) (string, error) {
	runner, err := e.registry.ForModel(model)
	if err != nil {
		return "", err
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	return runner.Execute(ctx, e.invocation(req, model))
}

// Stream runs a streaming completion. Deltas are handed to emit in
// production order. A failure before the first delta of an attempt moves on
// to the next candidate; a failure after it emits a terminal notice from the
// same model and ends the request.
func (e *Executor) Stream(ctx context.Context, req Request, emit EmitFunc) (*Result, error) {
	candidates := req.Decision.Candidates()
	result := &Result{}

	for i, model := range candidates {
		if i > 0 {
			e.recordFallback(candidates[i-1], model, i, len(candidates))
		}

		started := time.Now()
		content, emitted, err := e.streamOne(ctx, req, model, emit)
		attempt := models.ExecutionAttempt{
			Index:         i,
			Model:         model.Name,
			PartialOutput: emitted,
			Duration:      time.Since(started),
		}

		if err == nil {
			attempt.Outcome = models.AttemptSucceeded
			result.Attempts = append(result.Attempts, attempt)
			e.recordAttempt(model, attempt)
			result.Model = model
			result.Content = content
			return result, nil
		}

		attempt.Err = err
		var clientErr *emitError
		if errors.As(err, &clientErr) {
			attempt.Outcome = models.AttemptAborted
			result.Attempts = append(result.Attempts, attempt)
			e.recordAttempt(model, attempt)
			result.Model = model
			result.Content = content
			return result, clientErr.err
		}

		if stop := e.onFailure(ctx, model, &attempt); stop != nil {
			result.Attempts = append(result.Attempts, attempt)
			if emitted {
				result.Model = model
				result.Content = content
			}
			return result, stop
		}
		result.Attempts = append(result.Attempts, attempt)

		if emitted {
			notice := Notice(err)
			result.Model = model
			result.Content = content + notice
			result.Interrupted = err
			if emitErr := emit(model, notice); emitErr != nil {
				return result, emitErr
			}
			return result, nil
		}
	}

	return result, &services.AllBackendsFailedError{Attempts: result.Attempts}
}

// emitError marks a failure to deliver a delta to the client
type emitError struct {
	err error
}

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

func (e *Executor) streamOne(ctx context.Context, req Request, model models.ModelSpec, emit EmitFunc) (string, bool, error) {
	runner, err := e.registry.ForModel(model)
	if err != nil {
		return "", false, err
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer release()

	stream, err := runner.Stream(ctx, e.invocation(req, model))
	if err != nil {
		return "", false, err
	}
	defer stream.Close()

	var content []byte
	emitted := false
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			if !emitted {
				return "", false, services.NewBackendError(model.Name, services.BackendErrorEmpty, "stream produced no content", nil)
			}
			return string(content), true, nil
		}
		if err != nil {
			return string(content), emitted, err
		}
		if delta == "" {
			continue
		}

		if err := emit(model, delta); err != nil {
			return string(content), emitted, &emitError{err: err}
		}
		emitted = true
		content = append(content, delta...)
	}
}

// onFailure logs and records a failed attempt. It returns a non-nil error
// when the sequence must stop: the client went away, or the failure is not a
// backend failure the chain can absorb.
func (e *Executor) onFailure(ctx context.Context, model models.ModelSpec, attempt *models.ExecutionAttempt) error {
	if ctx.Err() != nil {
		attempt.Outcome = models.AttemptAborted
		e.recordAttempt(model, *attempt)
		e.logger.Info("request cancelled during backend attempt",
			zap.String("model", model.Name),
			zap.Int("attempt", attempt.Index),
		)
		return ctx.Err()
	}

	attempt.Outcome = models.AttemptFailed
	e.recordAttempt(model, *attempt)
	e.logger.Warn("backend attempt failed",
		zap.String("model", model.Name),
		zap.Int("attempt", attempt.Index),
		zap.Bool("retryable", services.IsRetryable(attempt.Err)),
		zap.Bool("partial_output", attempt.PartialOutput),
		zap.Duration("duration", attempt.Duration),
		zap.Error(attempt.Err),
	)

	if services.IsConfigurationError(attempt.Err) {
		return attempt.Err
	}
	return nil
}

func (e *Executor) acquire(ctx context.Context) (func(), error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	e.metrics.BackendStarted()
	return func() {
		e.metrics.BackendFinished()
		e.sem.Release(1)
	}, nil
}

func (e *Executor) invocation(req Request, model models.ModelSpec) providers.Invocation {
	return providers.Invocation{
		Model:    model,
		System:   req.System,
		Prompt:   req.Prompt,
		Messages: req.Messages,
		Timeout:  e.config.AttemptTimeout,
	}
}

func (e *Executor) recordFallback(from, to models.ModelSpec, index, total int) {
	e.metrics.RecordFallback(from.Name, to.Name)
	e.logger.Warn("falling back to next model",
		zap.String("from", from.Name),
		zap.String("model", to.Name),
		zap.Int("attempt", index),
		zap.Int("candidates", total),
	)
}

func (e *Executor) recordAttempt(model models.ModelSpec, attempt models.ExecutionAttempt) {
	labels := observability.AttemptLabels{
		Model:   model.Name,
		Backend: string(model.Kind()),
		Outcome: string(attempt.Outcome),
	}
	var backendErr *services.BackendError
	if errors.As(attempt.Err, &backendErr) {
		labels.ErrorKind = string(backendErr.Kind)
	}
	e.metrics.RecordAttempt(labels, attempt.Duration)
}

// Notice is the terminal text appended to a stream whose backend failed
// after emitting output.
func Notice(err error) string {
	return fmt.Sprintf("\n\n[Error: %s]", err)
}
