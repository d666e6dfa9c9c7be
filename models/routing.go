package models

import (
	"fmt"
	"strings"
)

// Scenario is the classifier's output bucket
type Scenario string

const (
	ScenarioComplex  Scenario = "complex"
	ScenarioCode     Scenario = "code"
	ScenarioLong     Scenario = "long"
	ScenarioModerate Scenario = "moderate"
	ScenarioSimple   Scenario = "simple"
)

// Scenarios lists every scenario in canonical order
var Scenarios = []Scenario{
	ScenarioComplex,
	ScenarioCode,
	ScenarioLong,
	ScenarioModerate,
	ScenarioSimple,
}

// ParseScenario converts a case-insensitive name into a Scenario
func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Scenarios {
		if sc == known {
			return sc, nil
		}
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// BackendKind tags how a model is reached
type BackendKind string

const (
	BackendKindCLI  BackendKind = "claude_cli"
	BackendKindHTTP BackendKind = "http"
)

// ProviderSpec describes a backend endpoint shared by one or more models
type ProviderSpec struct {
	Name         string            `json:"name" yaml:"-"`
	Kind         BackendKind       `json:"type" yaml:"type"`
	BaseURL      string            `json:"base_url,omitempty" yaml:"base_url"`
	APIKey       string            `json:"-" yaml:"api_key"`
	CLIPath      string            `json:"cli_path,omitempty" yaml:"cli_path"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty" yaml:"extra_headers"`
}

// ModelSpec is a routable model and the provider that serves it
type ModelSpec struct {
	Name          string       `json:"name"`
	ModelID       string       `json:"model_id"`
	Provider      ProviderSpec `json:"provider"`
	ContextWindow int          `json:"context_window"`
	MaxTokens     int          `json:"max_tokens"`
}

// Kind returns the backend kind of the model's provider
func (m ModelSpec) Kind() BackendKind {
	return m.Provider.Kind
}

// RoutingDecision is the request-scoped output of routing. It is never
// mutated after it is produced.
type RoutingDecision struct {
	Scenario            Scenario    `json:"scenario"`
	Primary             ModelSpec   `json:"primary"`
	Fallbacks           []ModelSpec `json:"fallbacks"`
	MaxFallbackAttempts int         `json:"max_fallback_attempts"`
	Reason              string      `json:"reason"`
}

// Candidates returns primary followed by the fallbacks, capped at
// 1 + MaxFallbackAttempts entries.
func (d RoutingDecision) Candidates() []ModelSpec {
	out := make([]ModelSpec, 0, 1+len(d.Fallbacks))
	out = append(out, d.Primary)
	out = append(out, d.Fallbacks...)
	limit := 1 + d.MaxFallbackAttempts
	if limit < len(out) {
		out = out[:limit]
	}
	return out
}

// FallbackNames returns the fallback model names in order
func (d RoutingDecision) FallbackNames() []string {
	names := make([]string, 0, len(d.Fallbacks))
	for _, m := range d.Fallbacks {
		names = append(names, m.Name)
	}
	return names
}
