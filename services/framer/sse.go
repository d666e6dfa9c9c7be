package framer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DoneMarker terminates an SSE completion stream
const DoneMarker = "[DONE]"

// ChatCompletionChunk is one streamed event
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice carries a delta and, on the last chunk, a finish reason
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental message content
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// ErrStreamNotFlushable is returned when the response writer cannot flush
var ErrStreamNotFlushable = errors.New("response writer does not support flushing")

// SSEWriter writes a chat.completion.chunk stream. Nothing is written until
// the first delta, so a request that fails before any output can still be
// answered with a plain error response.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      string
	created int64
	started bool
}

// NewSSEWriter wraps w for streaming the completion with the given id
func NewSSEWriter(w http.ResponseWriter, id string, now time.Time) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamNotFlushable
	}
	return &SSEWriter{w: w, flusher: flusher, id: id, created: now.Unix()}, nil
}

// Started reports whether any byte of the stream has been written
func (s *SSEWriter) Started() bool {
	return s.started
}

// Delta writes one content chunk, preceded by the headers and the role chunk
// on first use.
func (s *SSEWriter) Delta(modelID, content string) error {
	if err := s.start(modelID); err != nil {
		return err
	}
	return s.writeChunk(modelID, Delta{Content: &content}, nil)
}

// Finish writes the stop chunk and the end marker
func (s *SSEWriter) Finish(modelID string) error {
	if err := s.start(modelID); err != nil {
		return err
	}
	stop := FinishReasonStop
	if err := s.writeChunk(modelID, Delta{}, &stop); err != nil {
		return err
	}
	return s.writeData(DoneMarker)
}

func (s *SSEWriter) start(modelID string) error {
	if s.started {
		return nil
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	empty := ""
	return s.writeChunk(modelID, Delta{Role: "assistant", Content: &empty}, nil)
}

func (s *SSEWriter) writeChunk(modelID string, delta Delta, finish *string) error {
	data, err := json.Marshal(ChatCompletionChunk{
		ID:      s.id,
		Object:  ObjectChatCompletionChunk,
		Created: s.created,
		Model:   modelID,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}
	return s.writeData(string(data))
}

func (s *SSEWriter) writeData(data string) error {
	if _, err := io.WriteString(s.w, "data: "+data+"\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
