package framer

import "github.com/upb/llm-bridge/models"

// FrameType tags a WebSocket frame
type FrameType string

const (
	FrameRouting FrameType = "routing"
	FrameDelta   FrameType = "delta"
	FrameDone    FrameType = "done"
	FrameError   FrameType = "error"
)

// RoutingFrame announces the decision before any output
type RoutingFrame struct {
	Type     FrameType       `json:"type"`
	Scenario models.Scenario `json:"scenario"`
	Model    string          `json:"model"`
	Reason   string          `json:"reason"`
	Fallback []string        `json:"fallback"`
}

// ContentFrame carries a delta or an error message
type ContentFrame struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content"`
}

// DoneFrame ends a request with the full text and the serving model
type DoneFrame struct {
	Type     FrameType       `json:"type"`
	Content  string          `json:"content"`
	Model    string          `json:"model"`
	Scenario models.Scenario `json:"scenario"`
}

// NewRoutingFrame describes the primary and fallback model ids
func NewRoutingFrame(decision models.RoutingDecision) RoutingFrame {
	fallback := make([]string, 0, len(decision.Fallbacks))
	for _, m := range decision.Fallbacks {
		fallback = append(fallback, m.ModelID)
	}
	return RoutingFrame{
		Type:     FrameRouting,
		Scenario: decision.Scenario,
		Model:    decision.Primary.ModelID,
		Reason:   decision.Reason,
		Fallback: fallback,
	}
}

func NewDeltaFrame(content string) ContentFrame {
	return ContentFrame{Type: FrameDelta, Content: content}
}

func NewErrorFrame(message string) ContentFrame {
	return ContentFrame{Type: FrameError, Content: message}
}

func NewDoneFrame(content, modelID string, scenario models.Scenario) DoneFrame {
	return DoneFrame{Type: FrameDone, Content: content, Model: modelID, Scenario: scenario}
}
