package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/store"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// runOptions are the flags of the run command.
type runOptions struct {
	function   string
	start      string // "x,y", empty for the function's default
	optimizers []string
	lr         *float64 // nil keeps each kind's default
	iters      *int
	json       bool
	save       bool
	dataDir    string
}

var (
	runOpts  runOptions
	runLR    float64
	runIters int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run optimizers on a catalog function",
	Long: `Runs one or more optimizers from the same start point and prints a summary
of each trajectory, or the full trajectories with --json.

Hyperparameters can be set per optimizer:

  minimizeme run --function rosenbrock --optimizer gd:lr=0.001 --optimizer adam:lr=0.05,beta1=0.8 --iters 200`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o := runOpts
		if !cmd.Flags().Changed("function") {
			o.function = appConfig.Defaults.Function
		}
		if !cmd.Flags().Changed("optimizer") {
			o.optimizers = appConfig.Defaults.Optimizers
		}
		if !cmd.Flags().Changed("data-dir") {
			o.dataDir = appConfig.Store.DataDir
		}
		if cmd.Flags().Changed("lr") {
			o.lr = &runLR
		}
		iters := appConfig.Defaults.Iterations
		if cmd.Flags().Changed("iters") {
			iters = runIters
		}
		o.iters = &iters
		return runCompare(cmd.Context(), cmd.OutOrStdout(), o)
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.function, "function", catalog.DefaultKey, "Catalog function key (see 'functions')")
	runCmd.Flags().StringVar(&runOpts.start, "start", "", "Start point as x,y (default: the function's start)")
	runCmd.Flags().StringArrayVar(&runOpts.optimizers, "optimizer", nil, "Optimizer kind, optionally with kind:key=value,... overrides (repeatable)")
	runCmd.Flags().Float64Var(&runLR, "lr", 0, "Learning rate for every optimizer (default: per kind)")
	runCmd.Flags().IntVar(&runIters, "iters", opt.DefaultIterations, "Iterations for every optimizer")
	runCmd.Flags().BoolVar(&runOpts.json, "json", false, "Print the trajectories as JSON")
	runCmd.Flags().BoolVar(&runOpts.save, "save", false, "Save the run to the archive")
	runCmd.Flags().StringVar(&runOpts.dataDir, "data-dir", "./data", "Base directory for saved runs")
	rootCmd.AddCommand(runCmd)
}

// parseOptimizer reads "kind" or "kind:key=value,key=value" on top of the
// kind's defaults. lr and iters, when non-nil, are applied before the
// per-optimizer overrides. Overrides must name hyperparameters of the kind.
func parseOptimizer(arg string, lr *float64, iters *int) (opt.Config, error) {
	name, overrides, _ := strings.Cut(arg, ":")
	kind, err := opt.ParseKind(name)
	if err != nil {
		return opt.Config{}, err
	}
	cfg := opt.DefaultConfig(kind)
	if lr != nil {
		cfg.LearningRate = *lr
	}
	if iters != nil {
		cfg.Iterations = *iters
	}

	if overrides != "" {
		for _, kv := range strings.Split(overrides, ",") {
			key, raw, ok := strings.Cut(kv, "=")
			if !ok {
				return opt.Config{}, fmt.Errorf("%s: expected key=value, got %q", kind, kv)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return opt.Config{}, fmt.Errorf("%s: invalid value for %s: %w", kind, key, err)
			}
			if err := cfg.Set(strings.TrimSpace(key), v); err != nil {
				return opt.Config{}, fmt.Errorf("%s: %w", kind, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return opt.Config{}, err
	}
	return cfg, nil
}

// runResult is the JSON output of the run command.
type runResult struct {
	Function     string                   `json:"function"`
	Expression   string                   `json:"expression"`
	Start        catalog.Point            `json:"start"`
	Trajectories []*trajectory.Trajectory `json:"trajectories"`
	Summaries    []trajectory.Summary     `json:"summaries"`
	RunID        string                   `json:"runId,omitempty"`
}

func runCompare(ctx context.Context, w io.Writer, o runOptions) error {
	f, err := catalog.Get(o.function)
	if err != nil {
		return err
	}

	start := f.Start
	if o.start != "" {
		if start, err = catalog.ParsePoint(o.start); err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
	}

	if len(o.optimizers) == 0 {
		return fmt.Errorf("at least one --optimizer is required")
	}
	cfgs := make([]opt.Config, len(o.optimizers))
	for i, arg := range o.optimizers {
		if cfgs[i], err = parseOptimizer(arg, o.lr, o.iters); err != nil {
			return fmt.Errorf("invalid --optimizer %q: %w", arg, err)
		}
	}

	slog.Info("Starting optimizers", "function", f.Key, "start_x", start.X, "start_y", start.Y, "optimizers", len(cfgs))
	began := time.Now()
	trajectories, err := trajectory.RunAll(ctx, f, start.X, start.Y, cfgs)
	if err != nil {
		return err
	}
	summaries := make([]trajectory.Summary, len(trajectories))
	for i, t := range trajectories {
		summaries[i] = trajectory.Summarize(t, f.Minima, trajectory.DefaultConvergenceConfig())
	}
	slog.Info("Optimizers complete", "function", f.Key, "elapsed", time.Since(began))

	result := runResult{
		Function:     f.Key,
		Expression:   f.Expression,
		Start:        start,
		Trajectories: trajectories,
		Summaries:    summaries,
	}

	if o.save {
		st, err := store.NewFSStore(o.dataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
		record := store.NewRunRecord(f.Key, f.Expression, start.X, start.Y, trajectories, summaries)
		if err := st.SaveRun(record, trajectories); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		result.RunID = record.ID
		slog.Info("Run saved", "run_id", record.ID, "data_dir", o.dataDir)
	}

	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(w, "%s: f(x, y) = %s, start (%g, %g)\n\n", f.Name, f.Expression, start.X, start.Y)
	printSummaries(w, summaries)
	if result.RunID != "" {
		fmt.Fprintf(w, "\nSaved as run %s\n", result.RunID)
	}
	return nil
}

// printSummaries writes one table row per optimizer.
func printSummaries(w io.Writer, summaries []trajectory.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPTIMIZER\tSTEPS\tFINAL X\tFINAL Y\tF(FINAL)\tBEST F\tDIST TO MIN\tCONVERGED\tERROR")
	for _, s := range summaries {
		dist := "n/a"
		if s.DistanceToMin != nil {
			dist = fmt.Sprintf("%.4g", *s.DistanceToMin)
		}
		converged := "no"
		if s.ConvergedAt >= 0 {
			converged = strconv.Itoa(s.ConvergedAt)
		}
		fmt.Fprintf(tw, "%s\t%d\t%.6g\t%.6g\t%.6g\t%.6g\t%s\t%s\t%s\n",
			s.Kind, s.Steps, s.Final.X, s.Final.Y, s.Final.Z, s.Best.Z, dist, converged, s.Error)
	}
	tw.Flush()
}
