package catalog

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize/functions"
)

// DefaultKey is the function selected when nothing else is chosen.
const DefaultKey = "bowl"

var registry []*Function

func init() {
	square := func(r float64) Bounds { return Bounds{-r, r, -r, r} }

	define(Function{
		Key: "bowl", Name: "Bowl",
		Expression: "x^2 + y^2",
		Domain:     square(5),
		Start:      Point{3, 3},
		Minima:     []Point{{0, 0}},
		MinValue:   0,
		Note:       "Convex and isotropic. Every reasonable optimizer heads straight for the origin.",
	}, nil)

	define(Function{
		Key: "ellipse", Name: "Elongated bowl",
		Expression: "x^2 + 10*y^2",
		Domain:     square(5),
		Start:      Point{-4, 2},
		Minima:     []Point{{0, 0}},
		MinValue:   0,
		Note:       "Convex but badly conditioned: plain descent zig-zags across the narrow axis.",
	}, nil)

	define(Function{
		Key: "saddle", Name: "Saddle",
		Expression: "x^2 - y^2",
		Domain:     square(3),
		Start:      Point{2.5, 0.01},
		MinValue:   math.NaN(),
		Azimuth:    -30,
		Note:       "Unbounded below. Starting close to the ridge shows how long each optimizer lingers at the saddle point.",
	}, nil)

	define(Function{
		Key: "rosenbrock", Name: "Rosenbrock",
		Expression: "(1 - x)^2 + 100*(y - x^2)^2",
		Domain:     Bounds{-2, 2, -1, 3},
		Start:      Point{-1.5, 2.5},
		Minima:     []Point{{1, 1}},
		MinValue:   0,
		Note:       "A curved, flat-bottomed valley. Finding the valley is easy, following it is hard.",
	}, functions.ExtendedRosenbrock{})

	define(Function{
		Key: "beale", Name: "Beale",
		Expression: "(1.5 - x + x*y)^2 + (2.25 - x + x*y^2)^2 + (2.625 - x + x*y^3)^2",
		Domain:     square(4.5),
		Start:      Point{1, 1.5},
		Minima:     []Point{{3, 0.5}},
		MinValue:   0,
		Note:       "Sharp ridges near the corners with a flat basin around the minimum.",
	}, functions.Beale{})

	define(Function{
		Key: "himmelblau", Name: "Himmelblau",
		Expression: "(x^2 + y - 11)^2 + (x + y^2 - 7)^2",
		Domain:     square(5),
		Start:      Point{0, 0},
		Minima: []Point{
			{3, 2},
			{-2.805118, 3.131312},
			{-3.779310, -3.283186},
			{3.584428, -1.848126},
		},
		MinValue: 0,
		Azimuth:  -45,
		Note:     "Four equal minima. Which one an optimizer reaches depends on the start point and its momentum.",
	}, nil)

	define(Function{
		Key: "booth", Name: "Booth",
		Expression: "(x + 2*y - 7)^2 + (2*x + y - 5)^2",
		Domain:     square(10),
		Start:      Point{-8, -8},
		Minima:     []Point{{1, 3}},
		MinValue:   0,
		Note:       "A tilted quadratic with a single minimum.",
	}, nil)

	define(Function{
		Key: "matyas", Name: "Matyas",
		Expression: "0.26*(x^2 + y^2) - 0.48*x*y",
		Domain:     square(10),
		Start:      Point{8, -6},
		Minima:     []Point{{0, 0}},
		MinValue:   0,
		Note:       "Very flat along the diagonal; gradients become tiny long before the minimum.",
	}, nil)

	define(Function{
		Key: "rastrigin", Name: "Rastrigin",
		Expression: "20 + x^2 - 10*cos(2*pi*x) + y^2 - 10*cos(2*pi*y)",
		Domain:     square(5.12),
		Start:      Point{3.2, 2.3},
		Minima:     []Point{{0, 0}},
		MinValue:   0,
		Note:       "Many regularly spaced local minima. Gradient methods usually get stuck in the nearest one.",
	}, nil)

	define(Function{
		Key: "ackley", Name: "Ackley",
		Expression: "-20*exp(-0.2*sqrt(0.5*(x^2 + y^2))) - exp(0.5*(cos(2*pi*x) + cos(2*pi*y))) + e + 20",
		Domain:     square(5),
		Start:      Point{2.7, -3.1},
		Minima:     []Point{{0, 0}},
		MinValue:   0,
		Note:       "A nearly flat outer region with a deep funnel. The gradient is undefined exactly at the origin.",
	}, nil)
}

// define parses the expression of tmpl and registers the result. It panics
// on malformed entries since the registry is fixed at compile time.
func define(tmpl Function, analytic Analytic) {
	f, err := NewFunction(tmpl.Key, tmpl.Name, tmpl.Expression, tmpl.Domain, tmpl.Minima, tmpl.MinValue)
	if err != nil {
		panic(err)
	}
	f.Start = tmpl.Start
	f.Note = tmpl.Note
	if tmpl.Azimuth != 0 {
		f.Azimuth = tmpl.Azimuth
	}
	f.analytic = analytic

	for _, existing := range registry {
		if existing.Key == f.Key {
			panic(fmt.Sprintf("catalog: duplicate function key %q", f.Key))
		}
	}
	registry = append(registry, f)
}

// List returns every registered function in display order.
func List() []*Function {
	return append([]*Function(nil), registry...)
}

// Keys returns the registered keys in display order.
func Keys() []string {
	keys := make([]string, len(registry))
	for i, f := range registry {
		keys[i] = f.Key
	}
	return keys
}

// Get looks a function up by key.
func Get(key string) (*Function, error) {
	for _, f := range registry {
		if f.Key == key {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, key)
}

// Default returns the default function.
func Default() *Function {
	f, err := Get(DefaultKey)
	if err != nil {
		panic(err)
	}
	return f
}
