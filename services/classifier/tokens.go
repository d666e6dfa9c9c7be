package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/upb/llm-bridge/models"
)

// EstimateTokens approximates the token count of text: about four characters
// per token for prose and two and a half for code-heavy content.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text)
	indicators := strings.Count(text, "```") + strings.Count(text, "def ") + strings.Count(text, "function ")
	if indicators >= 2 {
		return max(1, int(float64(n)/2.5))
	}
	return max(1, n/4)
}

// EstimateMessagesTokens sums EstimateTokens over every message
func EstimateMessagesTokens(msgs []models.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
