package inference

import (
	"time"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services/fallback"
)

// CompletionRequest represents an inference request from the client
type CompletionRequest struct {
	RequestID string
	Model     string
	Messages  []models.ChatMessage
	Stream    bool
}

// Plan is a validated and routed request, ready to run. Transports use it to
// announce the decision before any backend is invoked.
type Plan struct {
	RequestID    string
	CompletionID string
	Decision     models.RoutingDecision
	PromptTokens int
	CreatedAt    time.Time

	request fallback.Request
}

// CompletionResponse is the outcome of a served request
type CompletionResponse struct {
	Plan     *Plan
	Model    models.ModelSpec
	Content  string
	Attempts []models.ExecutionAttempt

	// Interrupted is set when a stream failed after emitting output
	Interrupted error
	LatencyMs   int64
}
