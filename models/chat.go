package models

import "strings"

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ChatMessage is a single turn of a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RoutingRequest is the inbound unit of work: a conversation plus the model
// the client asked for.
type RoutingRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Router aliases that ask the bridge to pick a model by itself.
var routerAliases = map[string]struct{}{
	"":       {},
	"auto":   {},
	"smart":  {},
	"router": {},
}

// IsRouterAlias reports whether model is one of the smart-routing aliases.
// Matching is case-insensitive.
func IsRouterAlias(model string) bool {
	_, ok := routerAliases[strings.ToLower(strings.TrimSpace(model))]
	return ok
}

// CombinedContent joins every non-empty message body with a single space
func CombinedContent(msgs []ChatMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}

// LastUserContent returns the content of the last non-empty user turn, or ""
// when there is none.
func LastUserContent(msgs []ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

// HasRole reports whether any message was authored by role
func HasRole(msgs []ChatMessage, role Role) bool {
	for _, m := range msgs {
		if m.Role == role {
			return true
		}
	}
	return false
}
