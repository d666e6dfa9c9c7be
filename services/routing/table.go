package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
)

// Entry is the routing entry of one scenario. Fallbacks never contain the
// primary.
type Entry struct {
	Primary   string   `json:"primary" yaml:"primary"`
	Fallbacks []string `json:"fallbacks" yaml:"fallbacks"`
}

// Chain returns primary followed by the fallbacks
func (e Entry) Chain() []string {
	return append([]string{e.Primary}, e.Fallbacks...)
}

// Table maps every scenario to a primary model and a fallback chain. A Table
// is immutable once validated; reloads build a new one.
type Table struct {
	// Models is keyed by lowercased model name
	Models map[string]models.ModelSpec
	// Aliases maps extra lowercased names to a model name
	Aliases map[string]string
	Entries map[models.Scenario]Entry

	LongContextThreshold int
	MaxFallbackAttempts  int
}

// Lookup finds a model by name, model id or alias, case-insensitively
func (t *Table) Lookup(name string) (models.ModelSpec, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if spec, ok := t.Models[key]; ok {
		return spec, true
	}
	if target, ok := t.Aliases[key]; ok {
		spec, ok := t.Models[target]
		return spec, ok
	}
	// Several models may share a model id; the first name in order wins
	for _, n := range t.ModelNames() {
		if spec := t.Models[n]; strings.ToLower(spec.ModelID) == key {
			return spec, true
		}
	}
	return models.ModelSpec{}, false
}

// Resolve turns an entry's model names into specs
func (t *Table) Resolve(e Entry) (models.ModelSpec, []models.ModelSpec, error) {
	primary, ok := t.Lookup(e.Primary)
	if !ok {
		return models.ModelSpec{}, nil, services.NewConfigurationError(
			fmt.Sprintf("primary model %q is not defined", e.Primary), services.ErrUnknownModel)
	}
	fallbacks := make([]models.ModelSpec, 0, len(e.Fallbacks))
	for _, name := range e.Fallbacks {
		spec, ok := t.Lookup(name)
		if !ok {
			return models.ModelSpec{}, nil, services.NewConfigurationError(
				fmt.Sprintf("fallback model %q is not defined", name), services.ErrUnknownModel)
		}
		fallbacks = append(fallbacks, spec)
	}
	return primary, fallbacks, nil
}

// ModelNames returns every model name in sorted order
func (t *Table) ModelNames() []string {
	names := make([]string, 0, len(t.Models))
	for name := range t.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelSpecs returns every model in name order
func (t *Table) ModelSpecs() []models.ModelSpec {
	names := t.ModelNames()
	specs := make([]models.ModelSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, t.Models[name])
	}
	return specs
}

// Validate checks the table invariants: every scenario has an entry, every
// referenced model is defined, no chain repeats a model, thresholds are
// positive and 1 <= max fallback attempts <= chain length.
func (t *Table) Validate() error {
	if len(t.Models) == 0 {
		return services.NewConfigurationError("no models defined", nil)
	}
	if t.LongContextThreshold <= 0 {
		return services.NewConfigurationError(
			fmt.Sprintf("long context threshold must be positive, got %d", t.LongContextThreshold), nil)
	}
	if t.MaxFallbackAttempts < 1 {
		return services.NewConfigurationError(
			fmt.Sprintf("max fallback attempts must be at least 1, got %d", t.MaxFallbackAttempts), nil)
	}

	for key, spec := range t.Models {
		if spec.ModelID == "" {
			return services.NewConfigurationError(fmt.Sprintf("model %q has no model_id", key), nil)
		}
		switch spec.Provider.Kind {
		case models.BackendKindCLI:
		case models.BackendKindHTTP:
			if spec.Provider.BaseURL == "" {
				return services.NewConfigurationError(
					fmt.Sprintf("model %q uses http provider %q without base_url", key, spec.Provider.Name), nil)
			}
		default:
			return services.NewConfigurationError(
				fmt.Sprintf("model %q has unknown backend kind %q", key, spec.Provider.Kind), nil)
		}
	}

	for _, sc := range models.Scenarios {
		entry, ok := t.Entries[sc]
		if !ok || entry.Primary == "" {
			return services.NewConfigurationError(
				fmt.Sprintf("no routing entry for scenario %q", sc), services.ErrMissingScenario)
		}

		chain := entry.Chain()
		seen := make(map[string]struct{}, len(chain))
		for _, name := range chain {
			spec, ok := t.Lookup(name)
			if !ok {
				return services.NewConfigurationError(
					fmt.Sprintf("scenario %q references undefined model %q", sc, name), services.ErrUnknownModel)
			}
			if _, dup := seen[spec.Name]; dup {
				return services.NewConfigurationError(
					fmt.Sprintf("scenario %q chain repeats model %q", sc, spec.Name), nil)
			}
			seen[spec.Name] = struct{}{}
		}

		if t.MaxFallbackAttempts > len(chain) {
			return services.NewConfigurationError(
				fmt.Sprintf("max fallback attempts %d exceeds chain length %d of scenario %q",
					t.MaxFallbackAttempts, len(chain), sc), nil)
		}
	}
	return nil
}
