package expr

import (
	"fmt"
	"math"
)

func (n Num) Diff(v string) (Node, error) { return Num{0}, nil }

func (n Var) Diff(v string) (Node, error) {
	if n.Name == v {
		return Num{1}, nil
	}
	return Num{0}, nil
}

func (n Neg) Diff(v string) (Node, error) {
	d, err := n.X.Diff(v)
	if err != nil {
		return nil, err
	}
	return neg(d), nil
}

func (n Binary) Diff(v string) (Node, error) {
	dl, err := n.L.Diff(v)
	if err != nil {
		return nil, err
	}
	dr, err := n.R.Diff(v)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case '+':
		return add(dl, dr), nil
	case '-':
		return sub(dl, dr), nil
	case '*':
		return add(mul(dl, n.R), mul(n.L, dr)), nil
	case '/':
		return div(sub(mul(dl, n.R), mul(n.L, dr)), pow(n.R, Num{2})), nil
	case '^':
		if !dependsOn(n.R, v) {
			// d(u^c) = c * u^(c-1) * du
			return mul(mul(n.R, pow(n.L, sub(n.R, Num{1}))), dl), nil
		}
		// d(u^w) = u^w * (dw*ln(u) + w*du/u)
		return mul(n, add(mul(dr, Call{"log", n.L}), div(mul(n.R, dl), n.L))), nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.Op)
}

func (n Call) Diff(v string) (Node, error) {
	if !dependsOn(n.Arg, v) {
		return Num{0}, nil
	}
	da, err := n.Arg.Diff(v)
	if err != nil {
		return nil, err
	}

	a := n.Arg
	var outer Node
	switch n.Fn {
	case "sin":
		outer = Call{"cos", a}
	case "cos":
		outer = neg(Call{"sin", a})
	case "tan":
		outer = div(Num{1}, pow(Call{"cos", a}, Num{2}))
	case "exp":
		outer = n
	case "log":
		outer = div(Num{1}, a)
	case "sqrt":
		outer = div(Num{1}, mul(Num{2}, n))
	case "abs":
		outer = Call{"sign", a}
	case "tanh":
		outer = sub(Num{1}, pow(n, Num{2}))
	case "floor", "ceil", "sign":
		return nil, fmt.Errorf("%s(%s) with respect to %s: %w", n.Fn, a, v, ErrNotDifferentiable)
	default:
		return nil, fmt.Errorf("unknown function %q: %w", n.Fn, ErrNotDifferentiable)
	}
	return mul(outer, da), nil
}

// The constructors below fold constants and drop identity terms so that
// derivatives stay readable.

func isNum(n Node, v float64) bool {
	c, ok := n.(Num)
	return ok && c.V == v
}

func add(a, b Node) Node {
	ca, aok := a.(Num)
	cb, bok := b.(Num)
	switch {
	case aok && bok:
		return Num{ca.V + cb.V}
	case isNum(a, 0):
		return b
	case isNum(b, 0):
		return a
	}
	if nb, ok := b.(Neg); ok {
		return Binary{'-', a, nb.X}
	}
	return Binary{'+', a, b}
}

func sub(a, b Node) Node {
	ca, aok := a.(Num)
	cb, bok := b.(Num)
	switch {
	case aok && bok:
		return Num{ca.V - cb.V}
	case isNum(b, 0):
		return a
	case isNum(a, 0):
		return neg(b)
	}
	if nb, ok := b.(Neg); ok {
		return Binary{'+', a, nb.X}
	}
	return Binary{'-', a, b}
}

func mul(a, b Node) Node {
	ca, aok := a.(Num)
	cb, bok := b.(Num)
	switch {
	case aok && bok:
		return Num{ca.V * cb.V}
	case isNum(a, 0) || isNum(b, 0):
		return Num{0}
	case isNum(a, 1):
		return b
	case isNum(b, 1):
		return a
	case isNum(a, -1):
		return neg(b)
	case isNum(b, -1):
		return neg(a)
	case bok:
		// keep constants on the left
		return Binary{'*', b, a}
	}
	return Binary{'*', a, b}
}

func div(a, b Node) Node {
	ca, aok := a.(Num)
	cb, bok := b.(Num)
	switch {
	case aok && bok && cb.V != 0:
		return Num{ca.V / cb.V}
	case isNum(a, 0) && !isNum(b, 0):
		return Num{0}
	case isNum(b, 1):
		return a
	}
	return Binary{'/', a, b}
}

func pow(a, b Node) Node {
	ca, aok := a.(Num)
	cb, bok := b.(Num)
	switch {
	case aok && bok:
		return Num{math.Pow(ca.V, cb.V)}
	case isNum(b, 0):
		return Num{1}
	case isNum(b, 1):
		return a
	}
	return Binary{'^', a, b}
}

func neg(a Node) Node {
	switch t := a.(type) {
	case Num:
		return Num{-t.V}
	case Neg:
		return t.X
	}
	return Neg{a}
}

// Simplify folds constants and removes identity operations.
func Simplify(n Node) Node {
	switch t := n.(type) {
	case Neg:
		return neg(Simplify(t.X))
	case Binary:
		l, r := Simplify(t.L), Simplify(t.R)
		switch t.Op {
		case '+':
			return add(l, r)
		case '-':
			return sub(l, r)
		case '*':
			return mul(l, r)
		case '/':
			return div(l, r)
		case '^':
			return pow(l, r)
		}
	case Call:
		arg := Simplify(t.Arg)
		if c, ok := arg.(Num); ok {
			return Num{Call{t.Fn, c}.Eval(0, 0)}
		}
		return Call{t.Fn, arg}
	}
	return n
}
