package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/providers"
)

func testInvocation(baseURL string, timeout time.Duration) providers.Invocation {
	return providers.Invocation{
		Model: models.ModelSpec{
			Name:    "gpt-4o",
			ModelID: "gpt-4o-2024",
			Provider: models.ProviderSpec{
				Name:         "openai",
				Kind:         models.BackendKindHTTP,
				BaseURL:      baseURL + "/",
				APIKey:       "sk-test",
				ExtraHeaders: map[string]string{"X-Org": "org-1"},
			},
			MaxTokens: 256,
		},
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleUser, Content: "hi"},
		},
		Timeout: timeout,
	}
}

func backendErr(t *testing.T, err error) *services.BackendError {
	t.Helper()
	var be *services.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	return be
}

func TestOpenAIAdapter_Kind(t *testing.T) {
	adapter := NewOpenAIAdapter(nil, zap.NewNop())
	if adapter.Kind() != models.BackendKindHTTP {
		t.Errorf("Kind() = %s, want http", adapter.Kind())
	}
}

func TestOpenAIAdapter_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Org"); got != "org-1" {
			t.Errorf("X-Org = %q", got)
		}

		var req OpenAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-2024" || req.Stream || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.MaxTokens == nil || *req.MaxTokens != 256 {
			t.Errorf("max_tokens not forwarded")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OpenAIChatResponse{
			ID:      "chatcmpl-1",
			Choices: []OpenAIChoice{{Message: OpenAIMessage{Role: "assistant", Content: "Hello!"}, FinishReason: "stop"}},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
	text, err := adapter.Execute(context.Background(), testInvocation(server.URL, 5*time.Second))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if text != "Hello!" {
		t.Errorf("Execute() = %q, want Hello!", text)
	}
}

func TestOpenAIAdapter_Execute_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantKind      services.BackendErrorKind
		wantRetryable bool
		wantMessage   string
	}{
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream down","type":"server_error"}}`, services.BackendErrorStatus, true, "upstream down"},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","code":429}}`, services.BackendErrorStatus, true, "slow down"},
		{"bad request", http.StatusBadRequest, `not json`, services.BackendErrorStatus, false, "not json"},
		{"malformed body", http.StatusOK, `{"choices":`, services.BackendErrorMalformed, false, ""},
		{"no choices", http.StatusOK, `{"choices":[]}`, services.BackendErrorEmpty, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
			_, err := adapter.Execute(context.Background(), testInvocation(server.URL, 5*time.Second))

			be := backendErr(t, err)
			if be.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", be.Kind, tt.wantKind)
			}
			if be.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", be.Retryable, tt.wantRetryable)
			}
			if tt.wantMessage != "" && be.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", be.Message, tt.wantMessage)
			}
			if be.Model != "gpt-4o" {
				t.Errorf("Model = %q, want gpt-4o", be.Model)
			}
		})
	}
}

// stalledServer never answers. Its handlers return when the client goes away
// or when the test ends, so server.Close never waits on a parked handler.
func stalledServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})
	return server
}

func TestOpenAIAdapter_Execute_Timeout(t *testing.T) {
	server := stalledServer(t)

	adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
	_, err := adapter.Execute(context.Background(), testInvocation(server.URL, 100*time.Millisecond))

	be := backendErr(t, err)
	if be.Kind != services.BackendErrorTimeout || !be.Retryable {
		t.Errorf("got kind=%s retryable=%v, want retryable timeout", be.Kind, be.Retryable)
	}
}

func TestOpenAIAdapter_Execute_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	adapter := NewOpenAIAdapter(nil, zap.NewNop())
	_, err = adapter.Execute(context.Background(), testInvocation("http://"+addr, 5*time.Second))

	be := backendErr(t, err)
	if be.Kind != services.BackendErrorConnection || !be.Retryable {
		t.Errorf("got kind=%s retryable=%v, want retryable connection", be.Kind, be.Retryable)
	}
}

func TestOpenAIAdapter_Execute_Cancelled(t *testing.T) {
	server := stalledServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
	_, err := adapter.Execute(ctx, testInvocation(server.URL, 0))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func sseServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprint(w, line)
			flusher.Flush()
		}
	}))
}

func drain(s providers.DeltaStream) ([]string, error) {
	var out []string
	for {
		d, err := s.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, d)
	}
}

func TestOpenAIAdapter_Stream(t *testing.T) {
	server := sseServer(t,
		": keep-alive\n\n",
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n",
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n",
		`data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n\n",
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`+"\n\n",
		"data: [DONE]\n\n",
	)
	defer server.Close()

	adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
	s, err := adapter.Stream(context.Background(), testInvocation(server.URL, 5*time.Second))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer s.Close()

	deltas, err := drain(s)
	if err != io.EOF {
		t.Errorf("terminal error = %v, want io.EOF", err)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas = %v", deltas)
	}
	if _, err := s.Recv(); err != io.EOF {
		t.Errorf("Recv after end = %v, want io.EOF", err)
	}
}

func TestOpenAIAdapter_Stream_Failures(t *testing.T) {
	tests := []struct {
		name       string
		lines      []string
		wantDeltas int
		wantKind   services.BackendErrorKind
	}{
		{"missing done marker", []string{`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n\n"}, 1, services.BackendErrorMalformed},
		{"malformed chunk", []string{`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n\n", "data: {oops\n\n"}, 1, services.BackendErrorMalformed},
		{"error chunk", []string{`data: {"error":{"message":"overloaded"}}` + "\n\n"}, 0, services.BackendErrorStatus},
		{"no content before done", []string{"data: [DONE]\n\n"}, 0, services.BackendErrorEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := sseServer(t, tt.lines...)
			defer server.Close()

			adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
			s, err := adapter.Stream(context.Background(), testInvocation(server.URL, 5*time.Second))
			if err != nil {
				t.Fatalf("Stream() error = %v", err)
			}
			defer s.Close()

			deltas, err := drain(s)
			if len(deltas) != tt.wantDeltas {
				t.Errorf("got %d deltas, want %d", len(deltas), tt.wantDeltas)
			}
			if be := backendErr(t, err); be.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", be.Kind, tt.wantKind)
			}
		})
	}
}

func TestOpenAIAdapter_Stream_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
	_, err := adapter.Stream(context.Background(), testInvocation(server.URL, 5*time.Second))

	be := backendErr(t, err)
	if be.StatusCode != http.StatusUnauthorized || be.Retryable {
		t.Errorf("got status=%d retryable=%v", be.StatusCode, be.Retryable)
	}
}

func TestOpenAIAdapter_Stream_CloseReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices a client disconnect once the body is consumed
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"a"}}]}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(server.Client(), zap.NewNop())
	s, err := adapter.Stream(context.Background(), testInvocation(server.URL, 0))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if d, err := s.Recv(); err != nil || d != "a" {
		t.Fatalf("Recv() = %q, %v", d, err)
	}
	s.Close()

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the client going away")
	}
}
