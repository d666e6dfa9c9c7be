// Package openai runs completions against OpenAI-compatible HTTP APIs.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/providers"
)

const (
	maxErrorBody = 500
	sseDone      = "[DONE]"
)

// OpenAIAdapter implements providers.Runner for any OpenAI-compatible
// chat completions endpoint.
type OpenAIAdapter struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOpenAIAdapter creates a new adapter. The client carries no timeout of
// its own; every attempt is bounded by its context.
func NewOpenAIAdapter(httpClient *http.Client, logger *zap.Logger) *OpenAIAdapter {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAIAdapter{
		httpClient: httpClient,
		logger:     logger,
	}
}

// Kind returns the backend kind served by this adapter
func (a *OpenAIAdapter) Kind() models.BackendKind {
	return models.BackendKindHTTP
}

// Execute performs a non-streaming chat completion
func (a *OpenAIAdapter) Execute(ctx context.Context, inv providers.Invocation) (string, error) {
	ctx, cancel := withTimeout(ctx, inv.Timeout)
	defer cancel()

	httpResp, err := a.do(ctx, inv, false)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", a.transportError(ctx, inv, err)
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return "", services.NewBackendError(inv.Model.Name, services.BackendErrorMalformed, "failed to unmarshal response", err)
	}
	if len(openaiResp.Choices) == 0 || openaiResp.Choices[0].Message.Content == "" {
		return "", services.NewBackendError(inv.Model.Name, services.BackendErrorEmpty, "response has no content", nil)
	}

	a.logger.Debug("http completion finished",
		zap.String("model", inv.Model.Name),
		zap.Int("chars", len(openaiResp.Choices[0].Message.Content)),
	)
	return openaiResp.Choices[0].Message.Content, nil
}

// Stream performs a streaming chat completion over SSE
func (a *OpenAIAdapter) Stream(ctx context.Context, inv providers.Invocation) (providers.DeltaStream, error) {
	ctx, cancel := withTimeout(ctx, inv.Timeout)

	httpResp, err := a.do(ctx, inv, true)
	if err != nil {
		cancel()
		return nil, err
	}

	return &sseStream{
		adapter: a,
		inv:     inv,
		ctx:     ctx,
		cancel:  cancel,
		body:    httpResp.Body,
		reader:  bufio.NewReader(httpResp.Body),
	}, nil
}

// do sends the request and returns a 2xx response. Any other outcome is
// turned into a backend error with the body already closed.
func (a *OpenAIAdapter) do(ctx context.Context, inv providers.Invocation, stream bool) (*http.Response, error) {
	reqBody, err := json.Marshal(buildOpenAIRequest(inv, stream))
	if err != nil {
		return nil, services.NewBackendError(inv.Model.Name, services.BackendErrorMalformed, "failed to marshal request", err)
	}

	url := strings.TrimRight(inv.Model.Provider.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, services.NewBackendError(inv.Model.Name, services.BackendErrorConnection, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if inv.Model.Provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+inv.Model.Provider.APIKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range inv.Model.Provider.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	a.logger.Debug("http request",
		zap.String("model", inv.Model.Name),
		zap.String("url", url),
		zap.Int("messages", len(inv.Messages)),
		zap.Bool("stream", stream),
	)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, a.transportError(ctx, inv, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64*1024))
		return nil, a.handleErrorResponse(inv, httpResp.StatusCode, body)
	}
	return httpResp, nil
}

// transportError distinguishes attempt timeouts, refused connections and
// client cancellation.
func (a *OpenAIAdapter) transportError(ctx context.Context, inv providers.Invocation, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.NewBackendError(inv.Model.Name, services.BackendErrorTimeout,
			fmt.Sprintf("request timed out after %s", inv.Timeout), err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.NewBackendError(inv.Model.Name, services.BackendErrorTimeout, "network timeout", err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return services.NewBackendError(inv.Model.Name, services.BackendErrorConnection, "connection refused", err)
	}
	return services.NewBackendError(inv.Model.Name, services.BackendErrorConnection, "HTTP request failed", err)
}

// handleErrorResponse handles non-2xx responses
func (a *OpenAIAdapter) handleErrorResponse(inv providers.Invocation, statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	if len(message) > maxErrorBody {
		message = message[:maxErrorBody]
	}

	backendErr := services.NewBackendError(inv.Model.Name, services.BackendErrorStatus, message, nil)
	backendErr.StatusCode = statusCode
	backendErr.Retryable = statusCode >= 500 || statusCode == http.StatusTooManyRequests
	return backendErr
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// buildOpenAIRequest converts an invocation to OpenAI format
func buildOpenAIRequest(inv providers.Invocation, stream bool) *OpenAIChatRequest {
	req := &OpenAIChatRequest{
		Model:    inv.Model.ModelID,
		Messages: make([]OpenAIMessage, len(inv.Messages)),
		Stream:   stream,
	}
	for i, msg := range inv.Messages {
		req.Messages[i] = OpenAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	if inv.Model.MaxTokens > 0 {
		maxTokens := inv.Model.MaxTokens
		req.MaxTokens = &maxTokens
	}
	return req
}

type sseStream struct {
	adapter *OpenAIAdapter
	inv     providers.Invocation
	ctx     context.Context
	cancel  context.CancelFunc
	body    io.ReadCloser
	reader  *bufio.Reader

	yielded   bool
	final     error
	closeOnce sync.Once
}

// Recv returns the next content delta. io.EOF follows the [DONE] marker.
func (s *sseStream) Recv() (string, error) {
	if s.final != nil {
		return "", s.final
	}

	for {
		line, readErr := s.reader.ReadString('\n')
		if text, done, err := s.parseLine(line); err != nil {
			return s.fail(err)
		} else if done {
			if !s.yielded {
				return s.fail(services.NewBackendError(s.inv.Model.Name, services.BackendErrorEmpty, "stream produced no content", nil))
			}
			return s.fail(io.EOF)
		} else if text != "" {
			s.yielded = true
			return text, nil
		}

		if readErr == io.EOF {
			return s.fail(services.NewBackendError(s.inv.Model.Name, services.BackendErrorMalformed, "stream ended without [DONE]", nil))
		}
		if readErr != nil {
			return s.fail(s.adapter.transportError(s.ctx, s.inv, readErr))
		}
	}
}

// parseLine handles one SSE line. Only data lines carry payload.
func (s *sseStream) parseLine(line string) (text string, done bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false, nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == sseDone {
		return "", true, nil
	}
	if data == "" {
		return "", false, nil
	}

	var chunk OpenAIStreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, services.NewBackendError(s.inv.Model.Name, services.BackendErrorMalformed, "malformed stream chunk", err)
	}
	if chunk.Error != nil {
		return "", false, services.NewBackendError(s.inv.Model.Name, services.BackendErrorStatus, chunk.Error.Message, nil)
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == nil {
		return "", false, nil
	}
	return *chunk.Choices[0].Delta.Content, false, nil
}

func (s *sseStream) fail(err error) (string, error) {
	s.final = err
	s.Close()
	return "", err
}

// Close releases the connection
func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.body.Close()
		s.cancel()
	})
	return nil
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model     string          `json:"model"`
	Messages  []OpenAIMessage `json:"messages"`
	MaxTokens *int            `json:"max_tokens,omitempty"`
	Stream    bool            `json:"stream"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIStreamChunk struct {
	ID      string               `json:"id"`
	Choices []OpenAIStreamChoice `json:"choices"`
	Error   *OpenAIError         `json:"error,omitempty"`
}

type OpenAIStreamChoice struct {
	Index int `json:"index"`
	Delta struct {
		Role    string  `json:"role,omitempty"`
		Content *string `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code,omitempty"`
}
