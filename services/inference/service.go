// Package inference orchestrates a chat completion: validation, routing,
// prompt normalization and execution across the fallback chain.
package inference

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/classifier"
	"github.com/upb/llm-bridge/services/fallback"
	"github.com/upb/llm-bridge/services/framer"
	"github.com/upb/llm-bridge/services/prompt"
	"github.com/upb/llm-bridge/services/routing"
)

// Router picks the models for a request
type Router interface {
	Route(requested string, msgs []models.ChatMessage) (models.RoutingDecision, error)
}

// Executor runs a routed request across its candidates
type Executor interface {
	Execute(ctx context.Context, req fallback.Request) (*fallback.Result, error)
	Stream(ctx context.Context, req fallback.Request, emit fallback.EmitFunc) (*fallback.Result, error)
}

var (
	_ Router   = (*routing.RoutingService)(nil)
	_ Executor = (*fallback.Executor)(nil)
)

// InferenceService orchestrates the inference pipeline
type InferenceService struct {
	router   Router
	executor Executor
	logger   *zap.Logger
	now      func() time.Time
}

// NewInferenceService creates a new inference service
func NewInferenceService(router Router, executor Executor, logger *zap.Logger) *InferenceService {
	return &InferenceService{
		router:   router,
		executor: executor,
		logger:   logger,
		now:      time.Now,
	}
}

// Prepare validates and routes a request. No backend is invoked.
func (s *InferenceService) Prepare(req *CompletionRequest) (*Plan, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	// Step 1: validate the conversation
	if err := prompt.Validate(req.Messages); err != nil {
		s.logger.Warn("request rejected",
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		return nil, err
	}

	// Step 2: classify and route
	decision, err := s.router.Route(req.Model, req.Messages)
	if err != nil {
		s.logger.Error("routing failed",
			zap.String("request_id", req.RequestID),
			zap.String("model", req.Model),
			zap.Error(err))
		return nil, err
	}

	// Step 3: normalize for both backend kinds
	system, flat, err := prompt.ToCLIPrompt(req.Messages)
	if err != nil {
		return nil, err
	}
	messages, err := prompt.ToHTTPMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	return &Plan{
		RequestID:    req.RequestID,
		CompletionID: framer.NewCompletionID(),
		Decision:     decision,
		PromptTokens: classifier.EstimateMessagesTokens(req.Messages),
		CreatedAt:    s.now(),
		request: fallback.Request{
			Decision: decision,
			System:   system,
			Prompt:   flat,
			Messages: messages,
		},
	}, nil
}

// Complete runs a prepared request to completion
func (s *InferenceService) Complete(ctx context.Context, plan *Plan) (*CompletionResponse, error) {
	s.logger.Info("starting inference",
		zap.String("request_id", plan.RequestID),
		zap.String("scenario", string(plan.Decision.Scenario)),
		zap.String("model", plan.Decision.Primary.Name),
		zap.Bool("stream", false))

	result, err := s.executor.Execute(ctx, plan.request)
	return s.finish(plan, result, err)
}

// Stream runs a prepared request, handing each delta to emit as it arrives
func (s *InferenceService) Stream(ctx context.Context, plan *Plan, emit fallback.EmitFunc) (*CompletionResponse, error) {
	s.logger.Info("starting inference",
		zap.String("request_id", plan.RequestID),
		zap.String("scenario", string(plan.Decision.Scenario)),
		zap.String("model", plan.Decision.Primary.Name),
		zap.Bool("stream", true))

	result, err := s.executor.Stream(ctx, plan.request, emit)
	return s.finish(plan, result, err)
}

// ProcessChatCompletion prepares and completes a non-streaming request
func (s *InferenceService) ProcessChatCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	plan, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	return s.Complete(ctx, plan)
}

func (s *InferenceService) finish(plan *Plan, result *fallback.Result, err error) (*CompletionResponse, error) {
	resp := &CompletionResponse{
		Plan:      plan,
		LatencyMs: s.now().Sub(plan.CreatedAt).Milliseconds(),
	}
	if result != nil {
		resp.Model = result.Model
		resp.Content = result.Content
		resp.Attempts = result.Attempts
		resp.Interrupted = result.Interrupted
	}

	if err != nil {
		fields := []zap.Field{
			zap.String("request_id", plan.RequestID),
			zap.Int("attempts", len(resp.Attempts)),
			zap.Error(err),
		}
		if services.IsAllBackendsFailedError(err) {
			s.logger.Error("inference failed", fields...)
		} else {
			s.logger.Warn("inference stopped", fields...)
		}
		return resp, err
	}

	s.logger.Info("inference completed",
		zap.String("request_id", plan.RequestID),
		zap.String("model", resp.Model.Name),
		zap.Int("attempts", len(resp.Attempts)),
		zap.Bool("interrupted", resp.Interrupted != nil),
		zap.Int64("latency_ms", resp.LatencyMs))
	return resp, nil
}
