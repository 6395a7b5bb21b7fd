package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcphub/internal/app"
	"mcphub/internal/config"
	"mcphub/pkg/logging"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveListen overrides the configured HTTP API listen address.
var serveListen string

// serveCmd starts the hub: all enabled servers are brought up, health
// monitoring begins, and the HTTP API serves until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub and serve the HTTP API",
	Long: `Starts the hub: registers every configured server, starts the enabled
ones, runs periodic health checks, and serves the status and lifecycle
HTTP API until interrupted (Ctrl+C).

Configuration:
  mcphub loads configuration from ~/.config/mcphub/config.yaml and
  .mcphub/config.yaml in the current directory, with the latter taking
  precedence.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	application, err := app.New(cfg, serveListen)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP API listen address (overrides configuration)")
}
