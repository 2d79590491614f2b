package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/validate"
)

// errRejected makes the command exit non-zero for an invalid expression.
var errRejected = errors.New("expression rejected")

var (
	validateExpr   string
	validateMinima []string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check whether an expression is a well-behaved objective",
	Long: `Runs the objective checks on an expression: it must parse, be
differentiable, stay finite on the sample grid, stay bounded for large inputs
and have neither exploding nor vanishing gradients away from its minima.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), validateExpr, validateMinima)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateExpr, "expr", "", "Expression in x and y (required)")
	validateCmd.Flags().StringArrayVar(&validateMinima, "min", nil, "Known minimum as x,y (repeatable)")
	validateCmd.MarkFlagRequired("expr")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(w io.Writer, src string, minima []string) error {
	points := make([]catalog.Point, len(minima))
	for i, m := range minima {
		p, err := catalog.ParsePoint(m)
		if err != nil {
			return fmt.Errorf("invalid --min: %w", err)
		}
		points[i] = p
	}

	v := validate.Expression(src, points)
	if v.Valid {
		fmt.Fprintln(w, "valid")
		return nil
	}
	fmt.Fprintf(w, "invalid (%s): %s\n", v.Check, v.Message)
	return errRejected
}
