package main

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
)

var (
	verifyMinima bool
	verifyIters  int
	verifyPop    int
	verifySeed   int64
	verifyTol    float64
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List the catalog functions",
	Long: `Lists every catalog function with its expression and known minimum.
With --verify, a mayfly global search checks that nothing in the domain lies
below the declared minimum value.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verifyMinima {
			listFunctions(cmd.OutOrStdout())
			return nil
		}
		searcher := opt.NewMayfly(verifyIters, verifyPop, verifySeed)
		return verifyFunctions(cmd.OutOrStdout(), searcher, verifyTol)
	},
}

func init() {
	functionsCmd.Flags().BoolVar(&verifyMinima, "verify", false, "Check the declared minima with a global search")
	functionsCmd.Flags().IntVar(&verifyIters, "iters", 300, "Mayfly iterations per function")
	functionsCmd.Flags().IntVar(&verifyPop, "pop", 30, "Mayfly population size")
	functionsCmd.Flags().Int64Var(&verifySeed, "seed", 42, "Random seed")
	functionsCmd.Flags().Float64Var(&verifyTol, "tol", 1e-6, "Allowed shortfall below the declared minimum value")
	rootCmd.AddCommand(functionsCmd)
}

func formatMinValue(v float64) string {
	if math.IsNaN(v) {
		return "unbounded"
	}
	return fmt.Sprintf("%g", v)
}

func listFunctions(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tEXPRESSION\tMIN VALUE\tMINIMA")
	for _, f := range catalog.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", f.Key, f.Name, f.Expression, formatMinValue(f.MinValue), len(f.Minima))
	}
	tw.Flush()
}

func verifyFunctions(w io.Writer, searcher opt.Searcher, tol float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tDECLARED\tFOUND\tAT\tDIST\tRESULT")

	failed := 0
	for _, f := range catalog.List() {
		res := catalog.Verify(f, searcher, tol)
		dist := "n/a"
		if res.Distance != nil {
			dist = fmt.Sprintf("%.3g", *res.Distance)
		}
		status := "ok"
		if !res.OK {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%.6g\t(%.4g, %.4g)\t%s\t%s\n",
			f.Key, formatMinValue(f.MinValue), res.Value, res.Found.X, res.Found.Y, dist, status)
	}
	tw.Flush()

	if failed > 0 {
		return fmt.Errorf("%d function(s) failed verification", failed)
	}
	return nil
}
