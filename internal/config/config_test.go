package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/minimizeme/internal/opt"
)

func TestDefaultIsValid(t *testing.T) {
	if err := validateConfig(Default()); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
}

func TestParseConfigYAML(t *testing.T) {
	cfg, err := ParseConfigYAML([]byte(`
log_level: debug
server:
  addr: "127.0.0.1:9000"
  session_ttl: 5m
store:
  enabled: false
defaults:
  function: rosenbrock
  iterations: 200
  optimizers: [sgd, nag, adam]
`))
	if err != nil {
		t.Fatalf("ParseConfigYAML failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log_level 'debug', got '%s'", cfg.LogLevel)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Expected addr override, got '%s'", cfg.Server.Addr)
	}
	ttl, err := cfg.Server.GetSessionTTL()
	if err != nil || ttl != 5*time.Minute {
		t.Errorf("Expected 5m TTL, got %v (%v)", ttl, err)
	}
	if cfg.Store.Enabled {
		t.Error("Expected store disabled")
	}
	// keys absent from the file keep their defaults
	if cfg.Store.DataDir != "./data" {
		t.Errorf("Expected default data_dir, got '%s'", cfg.Store.DataDir)
	}
	if cfg.Defaults.Function != "rosenbrock" || cfg.Defaults.Iterations != 200 {
		t.Errorf("Unexpected defaults %+v", cfg.Defaults)
	}

	kinds, err := cfg.Defaults.Kinds()
	if err != nil {
		t.Fatalf("Kinds failed: %v", err)
	}
	want := []opt.Kind{opt.GD, opt.Nesterov, opt.Adam}
	if len(kinds) != len(want) {
		t.Fatalf("Expected %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Kind %d: expected %s, got %s", i, want[i], kinds[i])
		}
	}
}

func TestParseConfigYAMLEmpty(t *testing.T) {
	cfg, err := ParseConfigYAML(nil)
	if err != nil {
		t.Fatalf("Empty config should parse: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected default addr, got '%s'", cfg.Server.Addr)
	}
}

func TestParseConfigYAMLInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"syntax", "log_level: [", "failed to parse"},
		{"log level", "log_level: verbose", "invalid log_level"},
		{"empty addr", "server: {addr: \"\"}", "server.addr"},
		{"ttl", "server: {session_ttl: soon}", "session_ttl"},
		{"negative ttl", "server: {session_ttl: -1m}", "session_ttl"},
		{"data dir", "store: {enabled: true, data_dir: \"\"}", "data_dir"},
		{"function", "defaults: {function: teapot}", "defaults.function"},
		{"iterations", "defaults: {iterations: 0}", "defaults.iterations"},
		{"optimizer", "defaults: {optimizers: [lbfgs]}", "defaults.optimizers"},
		{"duplicate optimizer", "defaults: {optimizers: [gd, sgd]}", "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfigYAML([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimizeme.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("Expected log_level 'warn', got '%s'", cfg.LogLevel)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
