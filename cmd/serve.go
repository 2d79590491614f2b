package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/config"
	"github.com/cwbudde/minimizeme/internal/server"
	"github.com/cwbudde/minimizeme/internal/session"
	"github.com/cwbudde/minimizeme/internal/store"
)

var (
	serveAddr    string
	serveDataDir string
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the interactive web page",
	Long: `Serves the interactive page and the JSON API. Sessions live in memory and
expire after the configured TTL; saved runs go to the data directory.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for saved runs")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Disable saving runs")
	rootCmd.AddCommand(serveCmd)
}

// serveConfig applies explicitly set flags over the loaded configuration.
func serveConfig(cmd *cobra.Command, cfg config.Config) config.Config {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Store.DataDir = serveDataDir
	}
	if serveNoStore {
		cfg.Store.Enabled = false
	}
	return cfg
}

// newSessionManager builds the session manager described by cfg.
func newSessionManager(cfg config.Config) (*session.Manager, time.Duration, error) {
	ttl, err := cfg.Server.GetSessionTTL()
	if err != nil {
		return nil, 0, fmt.Errorf("invalid session ttl: %w", err)
	}
	kinds, err := cfg.Defaults.Kinds()
	if err != nil {
		return nil, 0, fmt.Errorf("invalid default optimizers: %w", err)
	}
	defaults := session.Defaults{
		Function:   cfg.Defaults.Function,
		Iterations: cfg.Defaults.Iterations,
		Optimizers: kinds,
	}
	return session.NewManager(defaults, ttl), ttl, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := serveConfig(cmd, *appConfig)

	manager, ttl, err := newSessionManager(cfg)
	if err != nil {
		return err
	}

	var st store.Store
	if cfg.Store.Enabled {
		fs, err := store.NewFSStore(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		st = fs
		slog.Info("Run archive enabled", "data_dir", cfg.Store.DataDir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go manager.Run(ctx, max(ttl/4, time.Second))

	srv := server.NewServer(cfg.Server.Addr, manager, st)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
