package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/store"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

var (
	runsDataDir   string
	keepLast      int
	olderThanDays int
	forceClean    bool
	showJSON      bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage saved runs",
	Long: `Manage the archive of saved runs: list them, show one in detail, or clean
old ones. Runs are saved with 'run --save' or from the page.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// PersistentPreRunE of the root is not inherited once a child sets its own
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if !cmd.Flags().Changed("data-dir") {
			runsDataDir = appConfig.Store.DataDir
		}
		return nil
	},
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved runs",
	Long:  `Display all runs with ID, timestamp, function, optimizers, best value and size on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListRuns(cmd.OutOrStdout(), runsDataDir)
	},
}

var showRunCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one saved run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowRun(cmd.OutOrStdout(), runsDataDir, args[0], showJSON)
	},
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Delete old runs based on a retention policy.
You can keep only the newest N runs or delete runs older than N days.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanRuns(cmd.InOrStdin(), cmd.OutOrStdout(), runsDataDir, keepLast, olderThanDays, forceClean)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for saved runs")

	showRunCmd.Flags().BoolVar(&showJSON, "json", false, "Print the record and trajectories as JSON")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListRuns(w io.Writer, dataDir string) error {
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tTIMESTAMP\tFUNCTION\tOPTIMIZERS\tBEST F\tSIZE")
	fmt.Fprintln(tw, "------\t---------\t--------\t----------\t------\t----")

	for _, info := range infos {
		size, err := getDirSize(filepath.Join(dataDir, "runs", info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		best := "n/a"
		if info.BestValue != nil {
			best = fmt.Sprintf("%.6g", *info.BestValue)
		}

		kinds := make([]string, len(info.Optimizers))
		for i, k := range info.Optimizers {
			kinds[i] = string(k)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Function,
			strings.Join(kinds, ","),
			best,
			sizeStr,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(w io.Writer, dataDir, id string, asJSON bool) error {
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runStore.LoadRun(id)
	if err != nil {
		return err
	}

	if asJSON {
		entries, err := runStore.LoadTrace(id)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*store.RunRecord
			States [][]trajectory.State `json:"states"`
		}{record, store.Group(entries)})
	}

	fmt.Fprintf(w, "Run:       %s\n", record.ID)
	fmt.Fprintf(w, "Saved:     %s\n", record.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Function:  %s (%s)\n", record.Function, record.Expression)
	fmt.Fprintf(w, "Start:     (%g, %g)\n\n", record.StartX, record.StartY)

	summaries := make([]trajectory.Summary, len(record.Optimizers))
	for i, o := range record.Optimizers {
		summaries[i] = o.Summary
	}
	printSummaries(w, summaries)
	return nil
}

func runCleanRuns(in io.Reader, w io.Writer, dataDir string, keepLast, olderThanDays int, force bool) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) == 0 {
		fmt.Fprintln(w, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(w, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(w, "  - %s (%s, %s)\n",
			shortID(info.ID),
			info.Function,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !force {
		fmt.Fprint(w, "\nProceed with deletion? [y/N]: ")
		response, _ := bufio.NewReader(in).ReadString('\n')
		response = strings.TrimSpace(response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(w, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion applies the retention policy: runs older than
// olderThanDays, plus every run beyond the newest keepLast. Zero disables
// either rule. The result is ordered oldest first.
func selectRunsForDeletion(infos []store.RunInfo, keepLast int, olderThanDays int, now time.Time) []store.RunInfo {
	sorted := make([]store.RunInfo, len(infos))
	copy(sorted, infos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	cutoff := now.AddDate(0, 0, -olderThanDays)
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RunInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		if tooOld || i < excess {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
