// Package validate screens a candidate objective before it is optimized.
//
// The checks are heuristics. A passing verdict means nothing pathological
// was seen on the sampled grid, not that every optimizer will behave.
package validate

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/expr"
)

// Check identifies one validation stage.
type Check string

const (
	InvalidSettings   Check = "settings"
	Parse             Check = "parse"
	Differentiability Check = "differentiability"
	Stability         Check = "stability"
	LargeInputs       Check = "large-inputs"
	Gradients         Check = "gradients"
)

// Verdict is the outcome of Validate. Check names the failing stage and is
// empty for a valid function.
type Verdict struct {
	Valid   bool   `json:"valid"`
	Check   Check  `json:"check,omitempty"`
	Message string `json:"message,omitempty"`
}

func pass() Verdict { return Verdict{Valid: true} }

func fail(check Check, format string, args ...any) Verdict {
	return Verdict{Check: check, Message: fmt.Sprintf(format, args...)}
}

// Settings controls the sampled grid and the gradient thresholds.
type Settings struct {
	// Lo and Hi bound the square grid on both axes.
	Lo, Hi float64
	// Points is the number of samples per axis.
	Points int
	// Step is the finite-difference step.
	Step float64
	// Exploding is the largest acceptable partial derivative magnitude.
	Exploding float64
	// Vanishing is the gradient norm below which a point counts as flat.
	Vanishing float64
	// MinRadius, as a fraction of the grid diagonal, is how close a flat
	// point must be to a known minimum to be accepted.
	MinRadius float64
}

// DefaultSettings samples [-5, 5]² on 51 points per axis, so the origin is
// part of the grid.
func DefaultSettings() Settings {
	return Settings{
		Lo:        -5,
		Hi:        5,
		Points:    51,
		Step:      1e-5,
		Exploding: 1e10,
		Vanishing: 1e-5,
		MinRadius: 1e-3,
	}
}

func (s Settings) validate() error {
	if !(s.Lo < s.Hi) {
		return fmt.Errorf("grid range is empty: [%g, %g]", s.Lo, s.Hi)
	}
	if s.Points < 2 {
		return fmt.Errorf("grid needs at least 2 points per axis, got %d", s.Points)
	}
	if !(s.Step > 0) {
		return fmt.Errorf("finite-difference step must be positive, got %g", s.Step)
	}
	return nil
}

// Expression parses src and validates it with the default settings.
func Expression(src string, minima []catalog.Point) Verdict {
	n, err := expr.Parse(src)
	if err != nil {
		slog.Debug("Validation failed", "check", Parse, "error", err)
		return fail(Parse, "%v", err)
	}
	return Validate(n, minima, DefaultSettings())
}

// Validate runs the checks in order and stops at the first failure:
// symbolic differentiability, numerical stability of values and gradients on
// the grid, a second pass over the grid values for overflow, and exploding or
// vanishing gradients.
// A vanishing gradient is accepted close to one of minima; when minima is
// empty the vanishing test is skipped.
func Validate(n expr.Node, minima []catalog.Point, s Settings) Verdict {
	if err := s.validate(); err != nil {
		return fail(InvalidSettings, "invalid settings: %v", err)
	}

	v := newValidator(n, minima, s)
	for _, check := range []func() Verdict{
		v.differentiability,
		v.stability,
		v.largeInputs,
		v.gradients,
	} {
		if verdict := check(); !verdict.Valid {
			slog.Debug("Validation failed", "expression", n.String(), "check", verdict.Check, "message", verdict.Message)
			return verdict
		}
	}
	slog.Debug("Validation passed", "expression", n.String())
	return pass()
}

type validator struct {
	node   expr.Node
	minima []catalog.Point
	s      Settings
	grid   []float64
	radius float64
	fd     *fd.Settings
}

func newValidator(n expr.Node, minima []catalog.Point, s Settings) *validator {
	grid := floats.Span(make([]float64, s.Points), s.Lo, s.Hi)
	bounds := catalog.Bounds{XMin: s.Lo, XMax: s.Hi, YMin: s.Lo, YMax: s.Hi}
	return &validator{
		node:   n,
		minima: minima,
		s:      s,
		grid:   grid,
		radius: s.MinRadius * bounds.Diagonal(),
		fd:     &fd.Settings{Formula: fd.Central, Step: s.Step},
	}
}

func bad(v float64) bool { return math.IsNaN(v) || math.IsInf(v, 0) }

// eval guards against panics so that a broken expression yields a verdict.
func (v *validator) eval(x, y float64) (z float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return v.node.Eval(x, y), nil
}

func (v *validator) gradient(x, y float64) (g []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fd.Gradient(nil, func(p []float64) float64 {
		return v.node.Eval(p[0], p[1])
	}, []float64{x, y}, v.fd), nil
}

func (v *validator) each(visit func(x, y float64) Verdict) Verdict {
	for _, x := range v.grid {
		for _, y := range v.grid {
			if verdict := visit(x, y); !verdict.Valid {
				return verdict
			}
		}
	}
	return pass()
}

func (v *validator) differentiability() Verdict {
	for _, name := range []string{"x", "y"} {
		if _, err := v.node.Diff(name); err != nil {
			return fail(Differentiability, "cannot differentiate with respect to %s: %v", name, err)
		}
	}
	return pass()
}

func (v *validator) stability() Verdict {
	return v.each(func(x, y float64) Verdict {
		z, err := v.eval(x, y)
		if err != nil {
			return fail(Stability, "error at point (%g, %g): %v", x, y, err)
		}
		if bad(z) {
			return fail(Stability, "function evaluation resulted in %g at point (%g, %g)", z, x, y)
		}
		g, err := v.gradient(x, y)
		if err != nil {
			return fail(Stability, "error at point (%g, %g): %v", x, y, err)
		}
		if bad(g[0]) || bad(g[1]) {
			return fail(Stability, "gradient resulted in (%g, %g) at point (%g, %g)", g[0], g[1], x, y)
		}
		return pass()
	})
}

func (v *validator) largeInputs() Verdict {
	return v.each(func(x, y float64) Verdict {
		z, err := v.eval(x, y)
		if err != nil {
			return fail(LargeInputs, "error at point (%g, %g): %v", x, y, err)
		}
		if bad(z) {
			return fail(LargeInputs, "overflow or underflow at point (%g, %g)", x, y)
		}
		return pass()
	})
}

func (v *validator) gradients() Verdict {
	return v.each(func(x, y float64) Verdict {
		g, err := v.gradient(x, y)
		if err != nil {
			return fail(Gradients, "error at point (%g, %g): %v", x, y, err)
		}
		if math.Abs(g[0]) > v.s.Exploding || math.Abs(g[1]) > v.s.Exploding {
			return fail(Gradients, "exploding gradients at point (%g, %g) with gradients (%g, %g)", x, y, g[0], g[1])
		}
		if len(v.minima) == 0 || floats.Norm(g, 2) >= v.s.Vanishing {
			return pass()
		}
		if _, d, _ := catalog.Nearest(v.minima, catalog.Point{X: x, Y: y}); d > v.radius {
			return fail(Gradients, "vanishing gradients at point (%g, %g) with gradients (%g, %g), %g away from the nearest minimum", x, y, g[0], g[1], d)
		}
		return pass()
	})
}
