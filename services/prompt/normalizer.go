// Package prompt reshapes a conversation into the form each backend kind
// expects.
package prompt

import (
	"strings"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
)

const turnSeparator = "\n\n"

// Validate checks the invariants shared by every backend kind: at least one
// message with content, known roles and at least one user turn.
func Validate(msgs []models.ChatMessage) error {
	if len(msgs) == 0 {
		return services.ErrEmptyMessages
	}
	if strings.TrimSpace(models.CombinedContent(msgs)) == "" {
		return services.ErrEmptyPrompt
	}
	hasUser := false
	for i, m := range msgs {
		if !m.Role.Valid() {
			return services.NewInvalidRoleError(i, m.Role)
		}
		if m.Role == models.RoleUser {
			hasUser = true
		}
	}
	if !hasUser {
		return services.ErrNoUserTurn
	}
	return nil
}

// ToCLIPrompt flattens msgs for a subprocess backend. Leading system messages
// become the system string; the remaining turns are rendered with role labels
// in their original order.
func ToCLIPrompt(msgs []models.ChatMessage) (system, prompt string, err error) {
	if err := Validate(msgs); err != nil {
		return "", "", err
	}

	i := 0
	var systemParts []string
	for ; i < len(msgs) && msgs[i].Role == models.RoleSystem; i++ {
		systemParts = append(systemParts, msgs[i].Content)
	}

	turns := make([]string, 0, len(msgs)-i)
	for _, m := range msgs[i:] {
		turns = append(turns, label(m.Role)+": "+m.Content)
	}

	return strings.Join(systemParts, turnSeparator), strings.Join(turns, turnSeparator), nil
}

// ToHTTPMessages returns the structured message list for an HTTP backend.
// The result is a copy; callers may not alias the input.
func ToHTTPMessages(msgs []models.ChatMessage) ([]models.ChatMessage, error) {
	if err := Validate(msgs); err != nil {
		return nil, err
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func label(role models.Role) string {
	switch role {
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	default:
		return "Human"
	}
}
