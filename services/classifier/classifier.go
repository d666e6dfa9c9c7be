// Package classifier buckets a conversation into a routing scenario using
// trigger-phrase scores and a token estimate.
package classifier

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/upb/llm-bridge/models"
)

// DefaultLongContextThreshold is the token estimate above which a request is
// always classified as long.
const DefaultLongContextThreshold = 50000

// Options tune classification
type Options struct {
	LongContextThreshold int
}

// Scores holds the per-category scores after structural bonuses
type Scores struct {
	Complex  int `json:"complex"`
	Code     int `json:"code"`
	Simple   int `json:"simple"`
	Moderate int `json:"moderate"`
}

// Result is the output of Classify
type Result struct {
	Scenario models.Scenario `json:"scenario"`
	Reason   string          `json:"reason"`
	Scores   Scores          `json:"scores"`
	Tokens   int             `json:"tokens"`
}

// Classify picks a scenario for msgs. It is a pure function of the message
// contents and opts; the stream flag of a request never influences it.
func Classify(msgs []models.ChatMessage, opts Options) Result {
	threshold := opts.LongContextThreshold
	if threshold <= 0 {
		threshold = DefaultLongContextThreshold
	}

	tokens := EstimateMessagesTokens(msgs)
	if tokens > threshold {
		return Result{
			Scenario: models.ScenarioLong,
			Reason:   fmt.Sprintf("Token count (%d) exceeds threshold (%d)", tokens, threshold),
			Tokens:   tokens,
		}
	}

	all := models.CombinedContent(msgs)
	lastUser := models.LastUserContent(msgs)
	count := len(msgs)
	hasSystem := models.HasRole(msgs, models.RoleSystem)

	var s Scores

	s.Complex = countMatches(all, complexPatterns) + countMatches(all, reasoningPatterns)
	if count > 10 {
		s.Complex += 2
	}
	if hasSystem && utf8.RuneCountInString(all) > 2000 {
		s.Complex++
	}

	s.Code = countMatches(all, codePatterns)
	if strings.Count(all, "```") >= 2 {
		s.Code += 2
	}

	s.Simple = countMatches(lastUser, simplePatterns)
	if tokens < 50 && count <= 2 {
		s.Simple += 2
	}
	if !hasSystem && tokens < 100 {
		s.Simple++
	}

	s.Moderate = countMatches(all, moderatePatterns)
	if tokens >= 100 && tokens <= 2000 && count <= 5 {
		s.Moderate++
	}

	scenario, reason := decide(s, tokens, count)
	return Result{Scenario: scenario, Reason: reason, Scores: s, Tokens: tokens}
}

// decide applies the fixed priority order. Complex dominates code when both
// score high; the order must not change.
func decide(s Scores, tokens, count int) (models.Scenario, string) {
	switch {
	case s.Complex >= 3:
		return models.ScenarioComplex, fmt.Sprintf("High complexity score (%d): reasoning/analysis detected", s.Complex)
	case s.Code >= 3:
		return models.ScenarioCode, fmt.Sprintf("Code generation detected (score=%d)", s.Code)
	case s.Simple >= 3 && s.Complex < 2 && s.Code < 2 && s.Moderate < 2:
		return models.ScenarioSimple, fmt.Sprintf("Simple query detected (score=%d, tokens=%d)", s.Simple, tokens)
	case s.Code >= 2:
		return models.ScenarioCode, fmt.Sprintf("Code-related content detected (score=%d)", s.Code)
	case s.Complex >= 2:
		return models.ScenarioComplex, fmt.Sprintf("Moderate complexity detected (score=%d)", s.Complex)
	case s.Moderate >= 2:
		return models.ScenarioModerate, fmt.Sprintf("Moderate task detected (score=%d, tokens=%d)", s.Moderate, tokens)
	default:
		return models.ScenarioModerate, fmt.Sprintf("General request (tokens=%d, msgs=%d)", tokens, count)
	}
}
