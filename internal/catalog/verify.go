package catalog

import (
	"log/slog"
	"math"

	"github.com/cwbudde/minimizeme/internal/opt"
)

// VerifyResult compares a numerically located minimum with the declared one.
type VerifyResult struct {
	Key   string  `json:"key"`
	Found Point   `json:"found"`
	Value float64 `json:"value"`
	// Declared is nil for functions that are unbounded below.
	Declared *float64 `json:"declared,omitempty"`
	// Distance to the nearest declared minimum, nil when none is declared.
	Distance *float64 `json:"distance,omitempty"`
	OK       bool     `json:"ok"`
}

// Verify runs a global search over the function's domain and checks that no
// point better than the declared minimum value exists (within tol). Functions
// without a finite minimum pass when the search finds a value below every
// sampled start, which is all that can be said about them.
func Verify(f *Function, searcher opt.Searcher, tol float64) VerifyResult {
	eval := func(p []float64) float64 {
		v := f.Eval(p[0], p[1])
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	lower := []float64{f.Domain.XMin, f.Domain.YMin}
	upper := []float64{f.Domain.XMax, f.Domain.YMax}
	best, value := searcher.Run(eval, lower, upper, 2)

	found := Point{X: best[0], Y: best[1]}
	res := VerifyResult{
		Key:   f.Key,
		Found: found,
		Value: value,
	}
	if _, d, ok := f.NearestMinimum(found); ok {
		res.Distance = &d
	}
	if math.IsNaN(f.MinValue) {
		res.OK = value <= f.Eval(f.Start.X, f.Start.Y)
	} else {
		declared := f.MinValue
		res.Declared = &declared
		res.OK = value >= f.MinValue-tol
	}

	slog.Debug("Verified catalog minimum",
		"function", f.Key,
		"found_x", found.X,
		"found_y", found.Y,
		"value", value,
		"declared", f.MinValue,
		"ok", res.OK,
	)
	return res
}
