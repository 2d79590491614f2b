// Package config loads the optional YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
)

// Config is the root of the configuration file. Every key is optional.
type Config struct {
	LogLevel string   `yaml:"log_level"`
	Server   Server   `yaml:"server"`
	Store    Store    `yaml:"store"`
	Defaults Defaults `yaml:"defaults"`
}

// Server configures the HTTP server.
type Server struct {
	Addr       string `yaml:"addr"`
	SessionTTL string `yaml:"session_ttl"` // e.g. "30m"
}

// Store configures the run archive.
type Store struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// Defaults are the selections of a fresh session.
type Defaults struct {
	Function   string   `yaml:"function"`
	Iterations int      `yaml:"iterations"`
	Optimizers []string `yaml:"optimizers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: Server{
			Addr:       ":8080",
			SessionTTL: "30m",
		},
		Store: Store{
			Enabled: true,
			DataDir: "./data",
		},
		Defaults: Defaults{
			Function:   catalog.DefaultKey,
			Iterations: opt.DefaultIterations,
			Optimizers: []string{string(opt.GD), string(opt.Momentum), string(opt.Adam)},
		},
	}
}

// LoadConfig loads and parses a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfigYAML parses YAML over the defaults and validates the result.
func ParseConfigYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetSessionTTL parses the session TTL.
func (s Server) GetSessionTTL() (time.Duration, error) {
	return time.ParseDuration(s.SessionTTL)
}

// Kinds resolves the default optimizer names.
func (d Defaults) Kinds() ([]opt.Kind, error) {
	kinds := make([]opt.Kind, 0, len(d.Optimizers))
	seen := make(map[opt.Kind]bool)
	for _, name := range d.Optimizers {
		k, err := opt.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			return nil, fmt.Errorf("duplicate optimizer: %s", k)
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func validateConfig(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	ttl, err := cfg.Server.GetSessionTTL()
	if err != nil {
		return fmt.Errorf("server.session_ttl: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("server.session_ttl must be positive, got %s", ttl)
	}

	if cfg.Store.Enabled && cfg.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir cannot be empty when the store is enabled")
	}

	if _, err := catalog.Get(cfg.Defaults.Function); err != nil {
		return fmt.Errorf("defaults.function: %w", err)
	}
	if cfg.Defaults.Iterations < 1 || cfg.Defaults.Iterations > opt.MaxIterations {
		return fmt.Errorf("defaults.iterations must be between 1 and %d, got %d", opt.MaxIterations, cfg.Defaults.Iterations)
	}
	if _, err := cfg.Defaults.Kinds(); err != nil {
		return fmt.Errorf("defaults.optimizers: %w", err)
	}
	return nil
}
