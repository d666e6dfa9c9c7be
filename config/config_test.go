package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 5000, cfg.Server.Port)
				assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
				assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "local-proxy", cfg.Auth.APIKey)
				assert.True(t, cfg.Auth.AuthEnabled())
				assert.Equal(t, "bridge.yaml", cfg.Routing.ConfigFile)
				assert.Equal(t, 50000, cfg.Routing.LongContextThreshold)
				assert.Equal(t, 2, cfg.Routing.MaxFallbackAttempts)
				assert.False(t, cfg.Routing.Watch)
				assert.Equal(t, 300*time.Second, cfg.Runner.RequestTimeout)
				assert.Equal(t, 5, cfg.Runner.MaxConcurrent)
				assert.Equal(t, "claude", cfg.Runner.ClaudeCLIPath)
				assert.Equal(t, "info", cfg.Observability.LogLevel)
				assert.True(t, cfg.Observability.MetricsEnabled)
			},
		},
		{
			name: "custom configuration",
			envVars: map[string]string{
				"BRIDGE_PORT":                    "5050",
				"API_KEY":                        "secret",
				"CORS_ALLOWED_ORIGINS":           "http://a.test, http://b.test",
				"ROUTING_CONFIG_FILE":            "/etc/bridge.yaml",
				"ROUTING_LONG_CONTEXT_THRESHOLD": "1000",
				"ROUTING_MAX_FALLBACK_ATTEMPTS":  "1",
				"ROUTING_WATCH":                  "true",
				"REQUEST_TIMEOUT":                "120",
				"MAX_CONCURRENT":                 "8",
				"CLAUDE_CLI_PATH":                "/usr/local/bin/claude",
				"LOG_LEVEL":                      "DEBUG",
				"LOG_FORMAT":                     "console",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5050, cfg.Server.Port)
				assert.Equal(t, "secret", cfg.Auth.APIKey)
				assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "/etc/bridge.yaml", cfg.Routing.ConfigFile)
				assert.Equal(t, 1000, cfg.Routing.LongContextThreshold)
				assert.Equal(t, 1, cfg.Routing.MaxFallbackAttempts)
				assert.True(t, cfg.Routing.Watch)
				assert.Equal(t, 120*time.Second, cfg.Runner.RequestTimeout)
				assert.Equal(t, 8, cfg.Runner.MaxConcurrent)
				assert.Equal(t, "/usr/local/bin/claude", cfg.Runner.ClaudeCLIPath)
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
			},
		},
		{
			name:    "empty API key disables auth",
			envVars: map[string]string{"API_KEY": ""},
			check: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Auth.APIKey)
				assert.False(t, cfg.Auth.AuthEnabled())
			},
		},
		{
			name:    "duration syntax for timeout",
			envVars: map[string]string{"REQUEST_TIMEOUT": "90s"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 90*time.Second, cfg.Runner.RequestTimeout)
			},
		},
		{
			name:    "invalid fallback attempts",
			envVars: map[string]string{"ROUTING_MAX_FALLBACK_ATTEMPTS": "0"},
			wantErr: true,
		},
		{
			name:    "invalid log format",
			envVars: map[string]string{"LOG_FORMAT": "xml"},
			wantErr: true,
		},
		{
			name:    "production requires auth",
			envVars: map[string]string{"ENVIRONMENT": "production", "API_KEY": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := New(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "localhost", Port: 5000}
	assert.Equal(t, "localhost:5000", cfg.Address())
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,, b ")
	assert.Equal(t, []string{"a", "b"}, getEnvAsList("TEST_LIST", nil))

	t.Setenv("TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, getEnvAsList("TEST_LIST", []string{"x"}))
}
