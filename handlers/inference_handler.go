package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/middleware"
	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services/fallback"
	"github.com/upb/llm-bridge/services/framer"
	"github.com/upb/llm-bridge/services/inference"
	"github.com/upb/llm-bridge/utils"
)

// ChatCompletionRequest represents an OpenAI-compatible chat completion request.
// Sampling parameters are accepted for compatibility and not forwarded.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature *float64      `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int          `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	TopP        *float64      `json:"top_p,omitempty" validate:"omitempty,gte=0,lte=1"`
	Stream      bool          `json:"stream,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	User        string        `json:"user,omitempty"`
}

// ChatMessage represents a single chat message
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// toCompletionRequest converts the wire request into the service request
func (r ChatCompletionRequest) toCompletionRequest(requestID string) *inference.CompletionRequest {
	msgs := make([]models.ChatMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, models.ChatMessage{Role: models.Role(m.Role), Content: m.Content})
	}
	return &inference.CompletionRequest{
		RequestID: requestID,
		Model:     r.Model,
		Messages:  msgs,
		Stream:    r.Stream,
	}
}

// InferenceService defines the inference operations the transports need
type InferenceService interface {
	// Prepare validates and routes a request without invoking a backend
	Prepare(req *inference.CompletionRequest) (*inference.Plan, error)
	// Complete runs a prepared request to completion
	Complete(ctx context.Context, plan *inference.Plan) (*inference.CompletionResponse, error)
	// Stream runs a prepared request, emitting deltas as they arrive
	Stream(ctx context.Context, plan *inference.Plan, emit fallback.EmitFunc) (*inference.CompletionResponse, error)
}

var _ InferenceService = (*inference.InferenceService)(nil)

// InferenceHandler handles inference-related HTTP requests
type InferenceHandler struct {
	service InferenceService
	logger  *zap.Logger
}

// NewInferenceHandler creates a new InferenceHandler
func NewInferenceHandler(service InferenceService, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChatCompletion handles POST /v1/chat/completions
func (h *InferenceHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	var chatReq ChatCompletionRequest
	if err := utils.DecodeJSON(r, &chatReq); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	plan, err := h.service.Prepare(chatReq.toCompletionRequest(requestID))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if chatReq.Stream {
		h.stream(ctx, w, plan)
		return
	}

	resp, err := h.service.Complete(ctx, plan)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	completion := framer.NewChatCompletion(plan.CompletionID, resp.Model.ModelID, resp.Content, plan.PromptTokens, plan.CreatedAt)
	completion.Routing = framer.NewRoutingTrace(plan.Decision, resp.Attempts)

	h.logger.Info("chat completion successful",
		zap.String("request_id", plan.RequestID),
		zap.String("model", resp.Model.Name),
		zap.Int("attempts", len(resp.Attempts)),
		zap.Int("prompt_tokens", completion.Usage.PromptTokens),
		zap.Int("completion_tokens", completion.Usage.CompletionTokens),
		zap.Int64("latency_ms", resp.LatencyMs))

	if err := utils.WriteOK(w, completion); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", plan.RequestID),
			zap.Error(err))
	}
}

// stream serves a prepared request as server-sent events. Until the first
// delta is written the request can still fail with a JSON error.
func (h *InferenceHandler) stream(ctx context.Context, w http.ResponseWriter, plan *inference.Plan) {
	sse, err := framer.NewSSEWriter(w, plan.CompletionID, plan.CreatedAt)
	if err != nil {
		h.logger.Error("streaming unsupported", zap.String("request_id", plan.RequestID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "streaming is not supported")
		return
	}

	emit := func(model models.ModelSpec, delta string) error {
		return sse.Delta(model.ModelID, delta)
	}

	resp, err := h.service.Stream(ctx, plan, emit)
	if err != nil {
		if !sse.Started() {
			HandleServiceError(w, err, h.logger)
			return
		}
		if errors.Is(err, context.Canceled) {
			h.logger.Debug("stream closed by client", zap.String("request_id", plan.RequestID))
			return
		}
		h.logger.Warn("stream aborted",
			zap.String("request_id", plan.RequestID),
			zap.Error(err))
		return
	}

	if err := sse.Finish(resp.Model.ModelID); err != nil {
		h.logger.Warn("failed to finish stream",
			zap.String("request_id", plan.RequestID),
			zap.Error(err))
		return
	}

	h.logger.Info("chat completion streamed",
		zap.String("request_id", plan.RequestID),
		zap.String("model", resp.Model.Name),
		zap.Int("attempts", len(resp.Attempts)),
		zap.Bool("interrupted", resp.Interrupted != nil),
		zap.Int64("latency_ms", resp.LatencyMs))
}
