package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/classroom/internal/config"
	"github.com/nfrund/classroom/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "classroom-chat",
	Short: "Terminal client for classroom chat rooms",
	Long: `classroom-chat opens a classroom chat room in the terminal.

Available commands:
  join      Join a room and chat interactively
  history   Print a room's message history grouped by day
  version   Print the version number

Connection settings come from the environment (CHAT_API_URL, CHAT_WS_URL, ...)
or a .env file in the working directory.

Use "classroom-chat [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and builds a logger that writes to stderr so it
// stays out of the rendered room.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	return cfg, logging.NewWithWriter(os.Stderr, cfg.LogFormat, level), nil
}
