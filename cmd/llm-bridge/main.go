// Command llm-bridge serves an OpenAI-compatible API that routes each request
// to a Claude CLI or HTTP backend with ordered fallback.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/upb/llm-bridge/app"
	"github.com/upb/llm-bridge/config"
	"github.com/upb/llm-bridge/internal/observability"
	"github.com/upb/llm-bridge/routes"
)

// Version information (set at build time)
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// globalFlags override the environment for every subcommand
type globalFlags struct {
	routingFile string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:          "llm-bridge",
		Short:        "Smart routing bridge for Claude CLI and OpenAI-compatible backends",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.routingFile, "config", "",
		"routing file (overrides ROUTING_CONFIG_FILE)")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newClassifyCmd(flags),
		newRoutesCmd(flags),
	)
	return rootCmd
}

// loadConfig reads the environment and applies command line overrides
func loadConfig(ctx context.Context, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	if flags.routingFile != "" {
		cfg.Routing.ConfigFile = flags.routingFile
	}
	return cfg, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx, flags)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides BRIDGE_PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("llm-bridge listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("auth", cfg.Auth.AuthEnabled()),
			zap.Int("max_concurrent", cfg.Runner.MaxConcurrent))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			_ = deps.Close(context.Background())
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	return deps.Close(shutdownCtx)
}
