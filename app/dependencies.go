package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/config"
	"github.com/upb/llm-bridge/internal/observability"
	"github.com/upb/llm-bridge/middleware"
	"github.com/upb/llm-bridge/services/fallback"
	"github.com/upb/llm-bridge/services/inference"
	"github.com/upb/llm-bridge/services/providers"
	"github.com/upb/llm-bridge/services/providers/cli"
	"github.com/upb/llm-bridge/services/providers/openai"
	"github.com/upb/llm-bridge/services/routing"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics observability.Metrics
	// Prometheus is nil when metrics are disabled
	Prometheus *observability.PrometheusMetrics

	// Routing
	RoutingStore *routing.Store
	Routing      *routing.RoutingService

	// Execution
	Runners   *providers.Registry
	Executor  *fallback.Executor
	Inference *inference.InferenceService

	// Auth
	AuthMiddleware *middleware.AuthMiddleware

	stopWatch context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
// The routing file watcher, when enabled, runs until Close.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initMetrics(cfg)

	// Initialize routing table
	if err := deps.initRouting(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize routing: %w", err)
	}

	// Initialize backend runners
	if err := deps.initRunners(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize runners: %w", err)
	}

	deps.Executor = fallback.NewExecutor(deps.Runners, fallback.Config{
		AttemptTimeout: cfg.Runner.RequestTimeout,
		MaxConcurrent:  int64(cfg.Runner.MaxConcurrent),
	}, logger, deps.Metrics)
	deps.Inference = inference.NewInferenceService(deps.Routing, deps.Executor, logger)

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}
	d.Prometheus = observability.NewPrometheusMetrics()
	d.Metrics = d.Prometheus
}

// LoadOptions returns the routing load settings taken from the environment
func LoadOptions(cfg *config.Config) routing.LoadOptions {
	return routing.LoadOptions{
		Path:                 cfg.Routing.ConfigFile,
		CLIPath:              cfg.Runner.ClaudeCLIPath,
		LongContextThreshold: cfg.Routing.LongContextThreshold,
		MaxFallbackAttempts:  cfg.Routing.MaxFallbackAttempts,
	}
}

// initRouting loads the routing table and optionally starts the file watcher
func (d *Dependencies) initRouting(ctx context.Context, cfg *config.Config) error {
	opts := LoadOptions(cfg)
	table, err := routing.Load(opts, d.Logger)
	if err != nil {
		return err
	}

	d.RoutingStore = routing.NewStore(table, d.Logger)
	d.Routing = routing.NewRoutingService(d.RoutingStore, d.Logger, d.Metrics)

	d.Logger.Info("routing table loaded",
		zap.String("path", opts.Path),
		zap.Strings("models", table.ModelNames()),
		zap.Int("max_fallback_attempts", table.MaxFallbackAttempts))

	if !cfg.Routing.Watch || opts.Path == "" {
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	err = d.RoutingStore.Watch(watchCtx, opts.Path, func() (*routing.Table, error) {
		return routing.Load(opts, d.Logger)
	})
	if err != nil {
		cancel()
		return err
	}
	d.stopWatch = cancel
	d.Logger.Info("watching routing file", zap.String("path", opts.Path))
	return nil
}

// initRunners registers one runner per backend kind
func (d *Dependencies) initRunners(cfg *config.Config) error {
	registry := providers.NewRegistry()

	if err := registry.Register(cli.NewRunner(cfg.Runner.ClaudeCLIPath, d.Logger)); err != nil {
		return err
	}
	if err := registry.Register(openai.NewOpenAIAdapter(nil, d.Logger)); err != nil {
		return err
	}

	d.Runners = registry
	return nil
}

// initAuth chains the static API key and the JWT validator. With neither
// configured every request is accepted.
func (d *Dependencies) initAuth(cfg *config.Config) {
	var chain middleware.ChainValidator
	if cfg.Auth.APIKey != "" {
		chain = append(chain, middleware.NewStaticKeyValidator(cfg.Auth.APIKey))
	}
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, middleware.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer))
	}

	if len(chain) == 0 {
		d.Logger.Warn("authentication disabled, API_KEY and JWT_SECRET are empty")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(chain, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.stopWatch != nil {
		d.stopWatch()
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
