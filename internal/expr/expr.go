// Package expr holds symbolic expressions over the variables x and y.
//
// Expressions are small immutable trees. They can be evaluated with IEEE
// semantics, differentiated symbolically and rendered as plain text or LaTeX.
package expr

import (
	"errors"
	"math"
	"sort"
	"strconv"
)

// ErrNotDifferentiable is returned by Diff when a node has no symbolic derivative
// with respect to the requested variable.
var ErrNotDifferentiable = errors.New("expression is not differentiable")

// Node is a symbolic expression.
type Node interface {
	// Eval evaluates the expression at (x, y). Division by zero and domain
	// errors produce ±Inf or NaN instead of panicking.
	Eval(x, y float64) float64

	// Diff returns the partial derivative with respect to v.
	Diff(v string) (Node, error)

	// String renders the expression in the infix syntax accepted by Parse.
	String() string

	// LaTeX renders the expression as LaTeX math.
	LaTeX() string
}

// Num is a numeric constant.
type Num struct {
	V float64
}

// Var is a reference to x or y.
type Var struct {
	Name string
}

// Neg is unary negation.
type Neg struct {
	X Node
}

// Binary is an infix operation. Op is one of + - * / ^.
type Binary struct {
	Op   byte
	L, R Node
}

// Call applies a named single-argument function.
type Call struct {
	Fn  string
	Arg Node
}

// Gradient holds both partial derivatives of an expression.
type Gradient struct {
	DX, DY Node
}

// Eval evaluates both partials at (x, y).
func (g Gradient) Eval(x, y float64) (float64, float64) {
	return g.DX.Eval(x, y), g.DY.Eval(x, y)
}

// Grad differentiates n with respect to x and y.
func Grad(n Node) (Gradient, error) {
	dx, err := n.Diff("x")
	if err != nil {
		return Gradient{}, err
	}
	dy, err := n.Diff("y")
	if err != nil {
		return Gradient{}, err
	}
	return Gradient{DX: dx, DY: dy}, nil
}

// Vars returns the sorted set of variables referenced by n.
func Vars(n Node) []string {
	seen := make(map[string]bool)
	walk(n, func(v string) { seen[v] = true })
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars
}

func walk(n Node, visit func(string)) {
	switch t := n.(type) {
	case Var:
		visit(t.Name)
	case Neg:
		walk(t.X, visit)
	case Binary:
		walk(t.L, visit)
		walk(t.R, visit)
	case Call:
		walk(t.Arg, visit)
	}
}

// dependsOn reports whether n references variable v.
func dependsOn(n Node, v string) bool {
	found := false
	walk(n, func(name string) {
		if name == v {
			found = true
		}
	})
	return found
}

func (n Num) Eval(x, y float64) float64 { return n.V }

func (n Var) Eval(x, y float64) float64 {
	switch n.Name {
	case "x":
		return x
	case "y":
		return y
	}
	return math.NaN()
}

func (n Neg) Eval(x, y float64) float64 { return -n.X.Eval(x, y) }

func (n Binary) Eval(x, y float64) float64 {
	l, r := n.L.Eval(x, y), n.R.Eval(x, y)
	switch n.Op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case '/':
		return l / r
	case '^':
		return math.Pow(l, r)
	}
	return math.NaN()
}

func (n Call) Eval(x, y float64) float64 {
	a := n.Arg.Eval(x, y)
	switch n.Fn {
	case "sin":
		return math.Sin(a)
	case "cos":
		return math.Cos(a)
	case "tan":
		return math.Tan(a)
	case "exp":
		return math.Exp(a)
	case "log":
		return math.Log(a)
	case "sqrt":
		return math.Sqrt(a)
	case "abs":
		return math.Abs(a)
	case "tanh":
		return math.Tanh(a)
	case "floor":
		return math.Floor(a)
	case "ceil":
		return math.Ceil(a)
	case "sign":
		switch {
		case a > 0:
			return 1
		case a < 0:
			return -1
		}
		return a
	}
	return math.NaN()
}

// functions lists the names accepted in a Call.
var functions = map[string]bool{
	"sin": true, "cos": true, "tan": true, "exp": true, "log": true,
	"sqrt": true, "abs": true, "tanh": true, "floor": true, "ceil": true, "sign": true,
}

func formatNum(v float64) string {
	switch {
	case v == math.Pi:
		return "pi"
	case v == math.E:
		return "e"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
