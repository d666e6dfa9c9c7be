package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	Routing       RoutingConfig
	Runner        RunnerConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string
	Port        int
	ReadTimeout time.Duration
	// WriteTimeout is zero by default; streamed responses can outlive any
	// fixed write deadline.
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// AuthConfig holds inbound authentication settings. An empty APIKey and
// JWTSecret disable authentication.
type AuthConfig struct {
	APIKey    string
	JWTSecret string
	JWTIssuer string
}

// RoutingConfig locates the routing file and holds routing limits
type RoutingConfig struct {
	ConfigFile           string
	LongContextThreshold int
	MaxFallbackAttempts  int
	Watch                bool
}

// RunnerConfig holds backend execution settings
type RunnerConfig struct {
	RequestTimeout time.Duration
	MaxConcurrent  int
	ClaudeCLIPath  string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("HOST", "127.0.0.1"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Auth: AuthConfig{
			APIKey:    lookupEnv("API_KEY", "local-proxy"),
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
		},
		Routing: RoutingConfig{
			ConfigFile:           getEnv("ROUTING_CONFIG_FILE", "bridge.yaml"),
			LongContextThreshold: getEnvAsInt("ROUTING_LONG_CONTEXT_THRESHOLD", 50000),
			MaxFallbackAttempts:  getEnvAsInt("ROUTING_MAX_FALLBACK_ATTEMPTS", 2),
			Watch:                getEnvAsBool("ROUTING_WATCH", false),
		},
		Runner: RunnerConfig{
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 300*time.Second),
			MaxConcurrent:  getEnvAsInt("MAX_CONCURRENT", 5),
			ClaudeCLIPath:  getEnv("CLAUDE_CLI_PATH", "claude"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all configuration values are usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Routing.LongContextThreshold <= 0 {
		return fmt.Errorf("long context threshold must be positive")
	}
	if c.Routing.MaxFallbackAttempts < 1 {
		return fmt.Errorf("max fallback attempts must be at least 1")
	}

	if c.Runner.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Runner.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1")
	}

	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.Observability.LogFormat)
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	if c.IsProduction() && c.Auth.APIKey == "" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("API_KEY or JWT_SECRET is required in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuthEnabled reports whether inbound requests must carry a bearer token
func (c *AuthConfig) AuthEnabled() bool {
	return c.APIKey != "" || c.JWTSecret != ""
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from BRIDGE_PORT or PORT (default: 5000)
func getPort() int {
	for _, key := range []string{"BRIDGE_PORT", "PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 5000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is getEnv for values where an explicit empty string is meaningful
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("90s") and bare seconds ("300")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
