package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/config"
	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestParseOptimizer(t *testing.T) {
	cfg, err := parseOptimizer("adam", nil, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg != opt.DefaultConfig(opt.Adam) {
		t.Errorf("Expected Adam defaults, got %+v", cfg)
	}

	cfg, err = parseOptimizer("sgd:lr=0.3,iters=7", ptr(0.1), ptr(20))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Kind != opt.GD || cfg.LearningRate != 0.3 || cfg.Iterations != 7 {
		t.Errorf("Overrides should win over the shared flags, got %+v", cfg)
	}

	cfg, err = parseOptimizer("momentum", ptr(0.01), ptr(15))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.LearningRate != 0.01 || cfg.Iterations != 15 || cfg.Momentum != 0.9 {
		t.Errorf("Unexpected config %+v", cfg)
	}

	bad := []string{
		"lbfgs", "adam:lr", "adam:lr=fast", "adam:gamma=1", "adam:beta1=1.5", "gd:iters=0.5",
		"gd:lr=0", "gd:beta1=0.5", "momentum:rho=0.9", "rmsprop:momentum=0.5",
	}
	for _, arg := range bad {
		if _, err := parseOptimizer(arg, nil, nil); err == nil {
			t.Errorf("Expected an error for %q", arg)
		}
	}
}

func TestParseOptimizerKeepsZeros(t *testing.T) {
	cfg, err := parseOptimizer("momentum:momentum=0", nil, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Momentum != 0 {
		t.Errorf("Expected momentum 0 to be kept, got %g", cfg.Momentum)
	}

	cfg, err = parseOptimizer("adam:beta1=0", nil, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Beta1 != 0 || cfg.Beta2 != 0.999 {
		t.Errorf("Expected beta1 0 and default beta2, got %+v", cfg)
	}

	if _, err := parseOptimizer("gd", ptr(0.0), nil); err == nil {
		t.Error("Expected a zero --lr to be rejected")
	}
}

func TestRunCompareTable(t *testing.T) {
	var out bytes.Buffer
	err := runCompare(context.Background(), &out, runOptions{
		function:   "bowl",
		start:      "3,3",
		optimizers: []string{"gd", "adam"},
		lr:         ptr(0.1),
		iters:      ptr(20),
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	text := out.String()
	for _, want := range []string{"Bowl", "OPTIMIZER", "gd", "adam"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestRunCompareJSON(t *testing.T) {
	var out bytes.Buffer
	dataDir := t.TempDir()
	err := runCompare(context.Background(), &out, runOptions{
		function:   "bowl",
		start:      "3,3",
		optimizers: []string{"gd"},
		lr:         ptr(0.1),
		iters:      ptr(20),
		json:       true,
		save:       true,
		dataDir:    dataDir,
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var result runResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode output: %v", err)
	}
	if len(result.Trajectories) != 1 || len(result.Trajectories[0].States) != 21 {
		t.Fatalf("Expected one trajectory of 21 states")
	}
	first := result.Trajectories[0].States[0]
	if first.X != 3 || first.Y != 3 || first.Z != 18 {
		t.Errorf("Expected start state (3, 3, 18), got %+v", first)
	}

	runStore, _ := store.NewFSStore(dataDir)
	if _, err := runStore.LoadRun(result.RunID); err != nil {
		t.Errorf("Expected the run to be saved: %v", err)
	}
}

func TestRunCompareErrors(t *testing.T) {
	tests := []struct {
		name string
		opts runOptions
	}{
		{"unknown function", runOptions{function: "teapot", optimizers: []string{"gd"}}},
		{"bad start", runOptions{function: "bowl", start: "3", optimizers: []string{"gd"}}},
		{"no optimizers", runOptions{function: "bowl"}},
		{"bad optimizer", runOptions{function: "bowl", optimizers: []string{"gd:lr=-1"}}},
		{"too many iterations", runOptions{function: "bowl", optimizers: []string{"gd"}, iters: ptr(opt.MaxIterations + 1)}},
		{"zero learning rate", runOptions{function: "bowl", optimizers: []string{"gd"}, lr: ptr(0.0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := runCompare(context.Background(), &out, tt.opts); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestListFunctions(t *testing.T) {
	var out bytes.Buffer
	listFunctions(&out)
	for _, want := range []string{"KEY", "bowl", "rosenbrock", "saddle", "unbounded"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output", want)
		}
	}
}

// originSearcher always reports the origin.
type originSearcher struct{}

func (originSearcher) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	p := make([]float64, dim)
	return p, eval(p)
}

func TestVerifyFunctionsAcceptsDeclaredMinima(t *testing.T) {
	var out bytes.Buffer
	// The origin is not the minimum of most catalog functions, but no
	// function has a value there below its declared minimum.
	err := verifyFunctions(&out, originSearcher{}, 1e-6)
	if err != nil {
		t.Errorf("Expected every declared minimum to hold, got %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "RESULT") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestRunValidate(t *testing.T) {
	var out bytes.Buffer
	if err := runValidate(&out, "x^2 + y^2", []string{"0,0"}); err != nil {
		t.Errorf("Expected valid expression, got %v", err)
	}
	if strings.TrimSpace(out.String()) != "valid" {
		t.Errorf("Unexpected output %q", out.String())
	}

	out.Reset()
	err := runValidate(&out, "1/x + y^2", nil)
	if !errors.Is(err, errRejected) {
		t.Errorf("Expected errRejected, got %v", err)
	}
	if !strings.Contains(out.String(), "invalid (stability)") {
		t.Errorf("Unexpected output %q", out.String())
	}

	if err := runValidate(&out, "x", []string{"origin"}); err == nil || errors.Is(err, errRejected) {
		t.Errorf("Expected a flag error, got %v", err)
	}
}

func TestServeConfigFlagsOverrideFile(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringVar(&serveAddr, "addr", ":8080", "")
	cmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "")
	if err := cmd.Flags().Parse([]string{"--addr", ":9999"}); err != nil {
		t.Fatal(err)
	}

	cfg := *config.Default()
	cfg.Store.DataDir = "/var/lib/minimizeme"
	got := serveConfig(cmd, cfg)

	if got.Server.Addr != ":9999" {
		t.Errorf("Expected the flag address, got %s", got.Server.Addr)
	}
	if got.Store.DataDir != "/var/lib/minimizeme" {
		t.Errorf("Expected the file's data dir, got %s", got.Store.DataDir)
	}
}

func TestNewSessionManager(t *testing.T) {
	cfg := *config.Default()
	cfg.Defaults.Optimizers = []string{"nag", "adam"}

	m, ttl, err := newSessionManager(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ttl != 30*time.Minute {
		t.Errorf("Expected 30m ttl, got %s", ttl)
	}
	kinds := m.Create().ActiveKinds()
	if len(kinds) != 2 || kinds[0] != opt.Nesterov || kinds[1] != opt.Adam {
		t.Errorf("Unexpected active kinds %v", kinds)
	}

	cfg.Defaults.Optimizers = []string{"gd", "sgd"}
	if _, _, err := newSessionManager(cfg); err == nil {
		t.Error("Expected an error for duplicate optimizers")
	}
}
