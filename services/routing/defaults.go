package routing

import (
	"github.com/upb/llm-bridge/models"
)

const (
	DefaultMaxFallbackAttempts = 2
	defaultContextWindow       = 200000
	defaultMaxTokens           = 16384
	defaultCLIProvider         = "claude-cli"
)

// DefaultTable returns the built-in three-model CLI routing table used when
// no routing file is present.
func DefaultTable(cliPath string) *Table {
	provider := models.ProviderSpec{
		Name:    defaultCLIProvider,
		Kind:    models.BackendKindCLI,
		CLIPath: cliPath,
	}
	model := func(name, id string) models.ModelSpec {
		return models.ModelSpec{
			Name:          name,
			ModelID:       id,
			Provider:      provider,
			ContextWindow: defaultContextWindow,
			MaxTokens:     defaultMaxTokens,
		}
	}

	return &Table{
		Models: map[string]models.ModelSpec{
			"opus":   model("opus", "claude-opus-4-6"),
			"sonnet": model("sonnet", "claude-sonnet-4-6"),
			"haiku":  model("haiku", "claude-haiku-4-5-20251001"),
		},
		Aliases: map[string]string{
			"claude-haiku-4-5": "haiku",
		},
		Entries:              DefaultEntries(),
		LongContextThreshold: 50000,
		MaxFallbackAttempts:  DefaultMaxFallbackAttempts,
	}
}

// DefaultEntries returns the built-in scenario entries
func DefaultEntries() map[models.Scenario]Entry {
	return map[models.Scenario]Entry{
		models.ScenarioComplex:  {Primary: "opus", Fallbacks: []string{"sonnet", "haiku"}},
		models.ScenarioCode:     {Primary: "sonnet", Fallbacks: []string{"opus", "haiku"}},
		models.ScenarioLong:     {Primary: "opus", Fallbacks: []string{"sonnet"}},
		models.ScenarioModerate: {Primary: "sonnet", Fallbacks: []string{"haiku", "opus"}},
		models.ScenarioSimple:   {Primary: "haiku", Fallbacks: []string{"sonnet"}},
	}
}
