// Package catalog is the fixed registry of two-variable test functions.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/minimizeme/internal/expr"
)

// ErrUnknownFunction is returned by Get for keys that are not registered.
var ErrUnknownFunction = errors.New("unknown function")

// Point is a location in the plane.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// ParsePoint reads a point written as "x,y".
func ParsePoint(s string) (Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("expected x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid x in %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid y in %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	XMin float64 `json:"xMin" yaml:"x_min"`
	XMax float64 `json:"xMax" yaml:"x_max"`
	YMin float64 `json:"yMin" yaml:"y_min"`
	YMax float64 `json:"yMax" yaml:"y_max"`
}

// Validate checks that the bounds are finite and non-empty.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.XMin, b.XMax, b.YMin, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounds must be finite: %+v", b)
		}
	}
	if b.XMin >= b.XMax {
		return fmt.Errorf("x bounds are empty: [%g, %g]", b.XMin, b.XMax)
	}
	if b.YMin >= b.YMax {
		return fmt.Errorf("y bounds are empty: [%g, %g]", b.YMin, b.YMax)
	}
	return nil
}

// Contains reports whether p lies inside b (edges included).
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

// Clamp moves p to the nearest point inside b.
func (b Bounds) Clamp(p Point) Point {
	return Point{
		X: math.Max(b.XMin, math.Min(b.XMax, p.X)),
		Y: math.Max(b.YMin, math.Min(b.YMax, p.Y)),
	}
}

// Diagonal returns the length of the diagonal of b.
func (b Bounds) Diagonal() float64 {
	return floats.Distance([]float64{b.XMin, b.YMin}, []float64{b.XMax, b.YMax}, 2)
}

// Analytic is a closed-form objective with an exact gradient. The test
// functions in gonum.org/v1/gonum/optimize/functions satisfy it.
type Analytic interface {
	Func(x []float64) float64
	Grad(grad, x []float64)
}

// Function is an immutable objective f(x, y).
type Function struct {
	Key        string
	Name       string
	Expression string
	Domain     Bounds
	Start      Point
	Minima     []Point
	MinValue   float64 // NaN when the function is unbounded below
	Azimuth    float64 // default viewing angle in degrees
	Note       string

	node     expr.Node
	grad     expr.Gradient
	symbolic bool
	analytic Analytic
}

// NewFunction parses expression and prepares its gradient. When the
// expression has no symbolic derivative the gradient falls back to central
// finite differences.
func NewFunction(key, name, expression string, domain Bounds, minima []Point, minValue float64) (*Function, error) {
	if err := domain.Validate(); err != nil {
		return nil, fmt.Errorf("function %s: %w", key, err)
	}

	node, err := expr.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", key, err)
	}

	f := &Function{
		Key:        key,
		Name:       name,
		Expression: expression,
		Domain:     domain,
		Start:      Point{X: domain.XMin + 0.8*(domain.XMax-domain.XMin), Y: domain.YMin + 0.8*(domain.YMax-domain.YMin)},
		Minima:     minima,
		MinValue:   minValue,
		Azimuth:    -60,
		node:       node,
	}

	if g, err := expr.Grad(node); err == nil {
		f.grad = g
		f.symbolic = true
	}
	return f, nil
}

// Node returns the parsed expression.
func (f *Function) Node() expr.Node { return f.node }

// LaTeX renders the expression.
func (f *Function) LaTeX() string { return f.node.LaTeX() }

// Symbolic reports whether Grad uses a symbolic or analytic derivative
// rather than finite differences.
func (f *Function) Symbolic() bool { return f.symbolic || f.analytic != nil }

// Eval returns f(x, y).
func (f *Function) Eval(x, y float64) float64 {
	if f.analytic != nil {
		return f.analytic.Func([]float64{x, y})
	}
	return f.node.Eval(x, y)
}

// Grad returns the gradient of f at (x, y).
func (f *Function) Grad(x, y float64) (float64, float64) {
	switch {
	case f.analytic != nil:
		g := make([]float64, 2)
		f.analytic.Grad(g, []float64{x, y})
		return g[0], g[1]
	case f.symbolic:
		return f.grad.Eval(x, y)
	}

	g := fd.Gradient(nil, func(p []float64) float64 {
		return f.node.Eval(p[0], p[1])
	}, []float64{x, y}, &fd.Settings{Formula: fd.Central, Step: 1e-6})
	return g[0], g[1]
}

// NearestMinimum returns the known minimum closest to p and its distance.
// ok is false when the function has no known minimum.
func (f *Function) NearestMinimum(p Point) (min Point, dist float64, ok bool) {
	return Nearest(f.Minima, p)
}

// Nearest returns the point of pts closest to p.
func Nearest(pts []Point, p Point) (Point, float64, bool) {
	if len(pts) == 0 {
		return Point{}, math.NaN(), false
	}
	best, bestDist := pts[0], math.Inf(1)
	for _, m := range pts {
		d := floats.Distance([]float64{m.X, m.Y}, []float64{p.X, p.Y}, 2)
		if d < bestDist {
			best, bestDist = m, d
		}
	}
	return best, bestDist, true
}
