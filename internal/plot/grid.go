// Package plot draws an objective surface with optimizer trajectories on top.
package plot

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/minimizeme/internal/catalog"
)

// Grid is a regular sample of f over a rectangle. It implements
// plotter.GridXYZ.
type Grid struct {
	xs, ys []float64
	// z is row major: z[r*len(xs)+c] is f(xs[c], ys[r])
	z []float64
}

// SampleGrid evaluates f on an n by n grid spanning b. Non-finite samples
// are replaced by the largest finite one so that contouring and projection
// stay well defined.
func SampleGrid(f func(x, y float64) float64, b catalog.Bounds, n int) *Grid {
	if n < 2 {
		n = 2
	}
	g := &Grid{
		xs: floats.Span(make([]float64, n), b.XMin, b.XMax),
		ys: floats.Span(make([]float64, n), b.YMin, b.YMax),
		z:  make([]float64, n*n),
	}

	hi := math.Inf(-1)
	var bad []int
	for r, y := range g.ys {
		for c, x := range g.xs {
			i := r*n + c
			v := f(x, y)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, i)
				continue
			}
			g.z[i] = v
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(hi, -1) {
		hi = 0
	}
	for _, i := range bad {
		g.z[i] = hi
	}
	return g
}

// Dims returns the number of columns and rows.
func (g *Grid) Dims() (c, r int) { return len(g.xs), len(g.ys) }

// Z returns the sample at column c, row r.
func (g *Grid) Z(c, r int) float64 { return g.z[r*len(g.xs)+c] }

// X returns the x coordinate of column c.
func (g *Grid) X(c int) float64 { return g.xs[c] }

// Y returns the y coordinate of row r.
func (g *Grid) Y(r int) float64 { return g.ys[r] }

// Min returns the smallest sample.
func (g *Grid) Min() float64 { return floats.Min(g.z) }

// Max returns the largest sample.
func (g *Grid) Max() float64 { return floats.Max(g.z) }

func (g *Grid) sorted() []float64 {
	s := append([]float64(nil), g.z...)
	sort.Float64s(s)
	return s
}

// Quantile returns the p-quantile of the samples.
func (g *Grid) Quantile(p float64) float64 {
	return stat.Quantile(p, stat.Empirical, g.sorted(), nil)
}

// Levels returns up to n distinct contour levels placed at evenly spaced
// quantiles of the samples, so that steep functions still get contours in
// their flat regions.
func (g *Grid) Levels(n int) []float64 {
	s := g.sorted()
	var levels []float64
	for i := 1; i <= n; i++ {
		p := float64(i) / float64(n+1)
		v := stat.Quantile(p, stat.Empirical, s, nil)
		if len(levels) == 0 || v > levels[len(levels)-1] {
			levels = append(levels, v)
		}
	}
	return levels
}
