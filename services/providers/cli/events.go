package cli

import (
	"encoding/json"
	"strings"
)

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Result  interface{}    `json:"result"`
	IsError bool           `json:"is_error"`
	Content []contentBlock `json:"content"`
	Message *struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
	Event *streamEvent `json:"event"`
}

// eventDecoder extracts text from the CLI's stream-json output. It remembers
// what was already produced so that summary events do not repeat text that
// arrived as deltas.
type eventDecoder struct {
	sawDelta bool
	yielded  bool
	// failure is the message of a result event flagged is_error
	failure string
}

// decode returns the text carried by one NDJSON line, or "" when the line
// carries none. Lines that are not JSON are passed through verbatim.
func (d *eventDecoder) decode(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return d.emit(line)
	}
	return d.emit(d.text(&ev))
}

func (d *eventDecoder) text(ev *streamEvent) string {
	switch ev.Type {
	case "stream_event":
		if ev.Event != nil {
			return d.text(ev.Event)
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" {
			d.sawDelta = true
			return ev.Delta.Text
		}
	case "message":
		if !d.sawDelta {
			return joinText(ev.Content)
		}
	case "assistant":
		if !d.sawDelta && ev.Message != nil {
			return joinText(ev.Message.Content)
		}
	case "result":
		s, _ := ev.Result.(string)
		if ev.IsError {
			d.failure = s
			if d.failure == "" {
				d.failure = "cli reported an error"
			}
			return ""
		}
		if !d.yielded {
			return s
		}
	}
	return ""
}

func (d *eventDecoder) emit(text string) string {
	if text != "" {
		d.yielded = true
	}
	return text
}

func joinText(blocks []contentBlock) string {
	var b strings.Builder
	for _, c := range blocks {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
