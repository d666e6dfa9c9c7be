package routing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
)

func newTestService(table *Table) *RoutingService {
	return NewRoutingService(NewStore(table, zap.NewNop()), zap.NewNop(), nil)
}

func userMsgs(content string) []models.ChatMessage {
	return []models.ChatMessage{{Role: models.RoleUser, Content: content}}
}

func TestRoutingService_Route_Alias(t *testing.T) {
	svc := newTestService(DefaultTable("claude"))

	tests := []struct {
		name          string
		model         string
		content       string
		wantScenario  models.Scenario
		wantPrimary   string
		wantFallbacks []string
	}{
		{"auto simple", "auto", "Hi!", models.ScenarioSimple, "haiku", []string{"sonnet"}},
		{"smart uppercase", "SMART", "Explain the trade-offs of microservices vs monolith, step by step", models.ScenarioComplex, "opus", []string{"sonnet", "haiku"}},
		{"router code", "Router", "Please fix this function:\n```go\nfunc f() {}\n```", models.ScenarioCode, "sonnet", []string{"opus", "haiku"}},
		{"empty model", "", "Hi!", models.ScenarioSimple, "haiku", []string{"sonnet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := svc.Route(tt.model, userMsgs(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.wantScenario, d.Scenario)
			assert.Equal(t, tt.wantPrimary, d.Primary.Name)
			assert.Equal(t, tt.wantFallbacks, d.FallbackNames())
			assert.Equal(t, DefaultMaxFallbackAttempts, d.MaxFallbackAttempts)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestRoutingService_Route_Explicit(t *testing.T) {
	svc := newTestService(DefaultTable("claude"))

	t.Run("model is primary of the classified scenario", func(t *testing.T) {
		d, err := svc.Route("haiku", userMsgs("Hi!"))
		require.NoError(t, err)
		assert.Equal(t, "haiku", d.Primary.Name)
		assert.Equal(t, []string{"sonnet"}, d.FallbackNames())
		assert.True(t, strings.HasPrefix(d.Reason, "Explicit model request."))
	})

	t.Run("model owns another scenario", func(t *testing.T) {
		d, err := svc.Route("claude-opus-4-6", userMsgs("Hi!"))
		require.NoError(t, err)
		assert.Equal(t, models.ScenarioSimple, d.Scenario)
		assert.Equal(t, "opus", d.Primary.Name)
		assert.Equal(t, []string{"sonnet", "haiku"}, d.FallbackNames())
	})

	t.Run("model owns no scenario", func(t *testing.T) {
		table := DefaultTable("claude")
		table.Models["tiny"] = models.ModelSpec{Name: "tiny", ModelID: "tiny-1", Provider: table.Models["haiku"].Provider}
		d, err := newTestService(table).Route("tiny", userMsgs("Hi!"))
		require.NoError(t, err)
		assert.Equal(t, "tiny", d.Primary.Name)
		assert.Empty(t, d.Fallbacks)
	})
}

func TestRoutingService_Route_UnknownModelFallsBackToSmartRouting(t *testing.T) {
	svc := newTestService(DefaultTable("claude"))

	d, err := svc.Route("gpt-9", userMsgs("Hi!"))
	require.NoError(t, err)
	assert.Equal(t, "haiku", d.Primary.Name)
	assert.Contains(t, d.Reason, `Unknown model "gpt-9"`)
}

func TestRoutingService_Route_MissingEntry(t *testing.T) {
	table := DefaultTable("claude")
	delete(table.Entries, models.ScenarioSimple)

	_, err := newTestService(table).Route("auto", userMsgs("Hi!"))
	require.Error(t, err)
	assert.True(t, services.IsConfigurationError(err))
}

func TestRoutingService_Route_Deterministic(t *testing.T) {
	svc := newTestService(DefaultTable("claude"))
	msgs := userMsgs("Show me an example of how to describe the differences between TCP and UDP for a networking overview course.")

	first, err := svc.Route("auto", msgs)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := svc.Route("auto", msgs)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRoutingService_Route_ChainNeverRepeats(t *testing.T) {
	svc := newTestService(DefaultTable("claude"))

	for _, content := range []string{"Hi!", "Explain step by step", "```go\n```", strings.Repeat("word ", 50000)} {
		d, err := svc.Route("auto", userMsgs(content))
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, m := range d.Candidates() {
			assert.False(t, seen[m.Name], "repeated %s", m.Name)
			seen[m.Name] = true
		}
		assert.LessOrEqual(t, len(d.Candidates()), 1+d.MaxFallbackAttempts)
	}
}

func TestRoutingService_Models(t *testing.T) {
	svc := newTestService(DefaultTable("claude"))

	specs := svc.Models()
	require.NotEmpty(t, specs)
	for i := 1; i < len(specs); i++ {
		assert.Less(t, specs[i-1].Name, specs[i].Name)
	}
}
