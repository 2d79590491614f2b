package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/config"
)

var (
	logLevel   string
	configPath string

	// appConfig is loaded before any subcommand runs
	appConfig = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "minimizeme",
	Short: "Watch gradient-based optimizers minimize functions of two variables",
	Long: `minimizeme runs first-order optimizers (gradient descent, momentum, Adam
and friends) on classic two-variable test functions, and serves an interactive
page that plots their trajectories side by side.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			appConfig = cfg
			// The file's level applies unless the flag was given
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.LogLevel
			}
		}

		// Setup logger
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", logLevel)
		}

		// stdout carries command output, so logs go to stderr
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		slog.SetDefault(slog.New(handler))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
}
