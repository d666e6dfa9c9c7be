package routing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
)

// FileConfig is the on-disk shape of the routing file
type FileConfig struct {
	Providers map[string]models.ProviderSpec `yaml:"providers"`
	Models    map[string]FileModel           `yaml:"models"`
	Routing   FileRouting                    `yaml:"routing"`
}

// FileModel is one entry of the models section
type FileModel struct {
	Provider      string   `yaml:"provider"`
	ModelID       string   `yaml:"model_id"`
	ContextWindow int      `yaml:"context_window"`
	MaxTokens     int      `yaml:"max_tokens"`
	Aliases       []string `yaml:"aliases"`
}

// FileRouting is the routing section. A fallback chain may list the
// scenario's primary; it is dropped when the entry is built.
type FileRouting struct {
	ScenarioModels map[string]string   `yaml:"scenario_models"`
	FallbackChains map[string][]string `yaml:"fallback_chains"`
}

// LoadOptions carries the settings that come from the process environment
type LoadOptions struct {
	// Path of the routing file. A missing file selects the built-in table.
	Path                 string
	CLIPath              string
	LongContextThreshold int
	MaxFallbackAttempts  int
}

var envRefPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// expandEnv replaces ${NAME} references with the environment value, or ""
func expandEnv(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRefPattern.FindStringSubmatch(ref)[1])
	})
}

// Load builds and validates a routing table. Precedence is
// ROUTING_MODEL_*/ROUTING_FALLBACK_* environment variables, then the routing
// file, then the built-in defaults.
func Load(opts LoadOptions, logger *zap.Logger) (*Table, error) {
	var fc *FileConfig
	if opts.Path != "" {
		var err error
		fc, err = readFile(opts.Path)
		if err != nil {
			return nil, err
		}
		if fc == nil {
			logger.Info("routing file not found, using built-in models", zap.String("path", opts.Path))
		}
	}

	table := DefaultTable(opts.CLIPath)
	if fc != nil && len(fc.Models) > 0 {
		modelMap, aliases, err := buildModels(fc, opts.CLIPath)
		if err != nil {
			return nil, err
		}
		table.Models = modelMap
		table.Aliases = aliases
	} else if fc != nil {
		logger.Warn("routing file defines no models, using built-in models", zap.String("path", opts.Path))
	}

	if opts.LongContextThreshold != 0 {
		table.LongContextThreshold = opts.LongContextThreshold
	}
	if opts.MaxFallbackAttempts != 0 {
		table.MaxFallbackAttempts = opts.MaxFallbackAttempts
	}

	var fileRouting FileRouting
	if fc != nil {
		fileRouting = fc.Routing
	}
	table.Entries = buildEntries(table, fileRouting)

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func readFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, services.NewConfigurationError("failed to read routing file", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, services.NewConfigurationError("failed to parse routing file", err)
	}
	return &fc, nil
}

func buildModels(fc *FileConfig, cliPath string) (map[string]models.ModelSpec, map[string]string, error) {
	providers := make(map[string]models.ProviderSpec, len(fc.Providers))
	for key, p := range fc.Providers {
		p.Name = key
		if p.Kind == "" {
			p.Kind = models.BackendKindHTTP
		}
		p.BaseURL = strings.TrimRight(expandEnv(p.BaseURL), "/")
		p.APIKey = expandEnv(p.APIKey)
		p.CLIPath = expandEnv(p.CLIPath)
		if p.Kind == models.BackendKindCLI && p.CLIPath == "" {
			p.CLIPath = cliPath
		}
		headers := make(map[string]string, len(p.ExtraHeaders))
		for k, v := range p.ExtraHeaders {
			headers[k] = expandEnv(v)
		}
		p.ExtraHeaders = headers
		providers[key] = p
	}

	modelMap := make(map[string]models.ModelSpec, len(fc.Models))
	aliases := make(map[string]string)
	for name, m := range fc.Models {
		provider, ok := providers[m.Provider]
		if !ok {
			return nil, nil, services.NewConfigurationError(
				fmt.Sprintf("model %q references unknown provider %q", name, m.Provider), nil)
		}
		key := strings.ToLower(name)
		spec := models.ModelSpec{
			Name:          key,
			ModelID:       m.ModelID,
			Provider:      provider,
			ContextWindow: m.ContextWindow,
			MaxTokens:     m.MaxTokens,
		}
		if spec.ModelID == "" {
			spec.ModelID = name
		}
		if spec.ContextWindow == 0 {
			spec.ContextWindow = defaultContextWindow
		}
		if spec.MaxTokens == 0 {
			spec.MaxTokens = defaultMaxTokens
		}
		modelMap[key] = spec
		for _, alias := range m.Aliases {
			aliases[strings.ToLower(alias)] = key
		}
	}
	return modelMap, aliases, nil
}

func buildEntries(table *Table, fr FileRouting) map[models.Scenario]Entry {
	defaults := DefaultEntries()
	entries := make(map[models.Scenario]Entry, len(models.Scenarios))

	for _, sc := range models.Scenarios {
		def := defaults[sc]
		suffix := strings.ToUpper(string(sc))

		primary := def.Primary
		if v, ok := fr.ScenarioModels[string(sc)]; ok && strings.TrimSpace(v) != "" {
			primary = v
		}
		if v := strings.TrimSpace(os.Getenv("ROUTING_MODEL_" + suffix)); v != "" {
			primary = v
		}

		chain := def.Chain()
		if v, ok := fr.FallbackChains[string(sc)]; ok && len(v) > 0 {
			chain = v
		}
		if v := splitList(os.Getenv("ROUTING_FALLBACK_" + suffix)); len(v) > 0 {
			chain = v
		}

		entries[sc] = newEntry(table, primary, chain)
	}
	return entries
}

// newEntry canonicalizes names through the table and drops the primary from
// the chain. Unknown names are kept verbatim so Validate can report them.
func newEntry(table *Table, primary string, chain []string) Entry {
	canonical := func(name string) string {
		if spec, ok := table.Lookup(name); ok {
			return spec.Name
		}
		return strings.ToLower(strings.TrimSpace(name))
	}

	e := Entry{Primary: canonical(primary), Fallbacks: []string{}}
	for _, name := range chain {
		if c := canonical(name); c != e.Primary {
			e.Fallbacks = append(e.Fallbacks, c)
		}
	}
	return e
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
