// Package providers defines the uniform runner contract over backend kinds
// and a registry that dispatches on the model's backend kind.
package providers

import (
	"context"
	"time"

	"github.com/upb/llm-bridge/models"
)

// Runner executes completions against one kind of backend
type Runner interface {
	// Kind returns the backend kind this runner serves
	Kind() models.BackendKind

	// Execute runs a completion and returns the full text
	Execute(ctx context.Context, inv Invocation) (string, error)

	// Stream starts a completion and returns its deltas. The stream is
	// single-pass; a retry must call Stream again.
	Stream(ctx context.Context, inv Invocation) (DeltaStream, error)
}

// DeltaStream is a lazy, finite sequence of text deltas. Recv returns io.EOF
// after the last delta. Close releases the underlying process or connection
// and is safe to call more than once.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// Invocation is everything a runner needs for one attempt
type Invocation struct {
	Model models.ModelSpec

	// System and Prompt are the flattened form used by subprocess backends
	System string
	Prompt string

	// Messages is the structured form used by HTTP backends
	Messages []models.ChatMessage

	// Timeout bounds the attempt; zero means no runner-level limit
	Timeout time.Duration
}
