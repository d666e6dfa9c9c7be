// Package framer shapes execution results into client-facing wire formats:
// OpenAI chat completions, SSE chunk streams and WebSocket frames. It holds
// no routing logic.
package framer

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/upb/llm-bridge/models"
)

const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	FinishReasonStop          = "stop"
)

// ChatCompletion is an OpenAI-compatible non-streaming response
type ChatCompletion struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []Choice      `json:"choices"`
	Usage   Usage         `json:"usage"`
	Routing *RoutingTrace `json:"x_routing,omitempty"`
}

// Choice is a single completion choice
type Choice struct {
	Index        int                `json:"index"`
	Message      models.ChatMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

// Usage is an estimate; backends are not asked for real token counts
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RoutingTrace explains how a response was produced
type RoutingTrace struct {
	Scenario  models.Scenario `json:"scenario"`
	Reason    string          `json:"reason"`
	Fallbacks []string        `json:"fallbacks"`
	Attempts  []AttemptTrace  `json:"attempts"`
}

// AttemptTrace is the client view of one backend attempt
type AttemptTrace struct {
	Model      string                `json:"model"`
	Outcome    models.AttemptOutcome `json:"outcome"`
	Error      string                `json:"error,omitempty"`
	DurationMs int64                 `json:"duration_ms"`
}

// NewCompletionID returns an id in the chatcmpl-xxxxxxxxxxxx form
func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// CompletionTokens estimates output tokens at four characters per token
func CompletionTokens(text string) int {
	return max(1, utf8.RuneCountInString(text)/4)
}

// NewChatCompletion builds the response for text served by modelID
func NewChatCompletion(id, modelID, text string, promptTokens int, now time.Time) ChatCompletion {
	completion := CompletionTokens(text)
	return ChatCompletion{
		ID:      id,
		Object:  ObjectChatCompletion,
		Created: now.Unix(),
		Model:   modelID,
		Choices: []Choice{{
			Index:        0,
			Message:      models.ChatMessage{Role: models.RoleAssistant, Content: text},
			FinishReason: FinishReasonStop,
		}},
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completion,
			TotalTokens:      promptTokens + completion,
		},
	}
}

// NewRoutingTrace summarises a decision and its attempts
func NewRoutingTrace(decision models.RoutingDecision, attempts []models.ExecutionAttempt) *RoutingTrace {
	trace := &RoutingTrace{
		Scenario:  decision.Scenario,
		Reason:    decision.Reason,
		Fallbacks: decision.FallbackNames(),
		Attempts:  make([]AttemptTrace, 0, len(attempts)),
	}
	for _, a := range attempts {
		trace.Attempts = append(trace.Attempts, AttemptTrace{
			Model:      a.Model,
			Outcome:    a.Outcome,
			Error:      a.ErrorMessage(),
			DurationMs: a.Duration.Milliseconds(),
		})
	}
	return trace
}

// ModelInfo is one entry of the model listing
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the OpenAI model listing
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

const (
	OwnerBridge = "claude-proxy-bridge"
	OwnerRouter = "claude-proxy-bridge-router"

	// RouterModelID is the advertised id for smart routing
	RouterModelID = "auto"
)

// NewModelList lists the configured models followed by the router alias
func NewModelList(specs []models.ModelSpec, now time.Time) ModelList {
	list := ModelList{Object: "list", Data: make([]ModelInfo, 0, len(specs)+1)}
	for _, spec := range specs {
		list.Data = append(list.Data, ModelInfo{
			ID:      spec.ModelID,
			Object:  "model",
			Created: now.Unix(),
			OwnedBy: OwnerBridge,
		})
	}
	list.Data = append(list.Data, ModelInfo{
		ID:      RouterModelID,
		Object:  "model",
		Created: now.Unix(),
		OwnedBy: OwnerRouter,
	})
	return list
}
