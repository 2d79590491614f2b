package expr

import (
	"fmt"
	"math"
	"strings"
)

const (
	precAdd = iota + 1
	precMul
	precNeg
	precPow
	precAtom
)

func precedence(n Node) int {
	switch t := n.(type) {
	case Num:
		if t.V < 0 {
			return precNeg
		}
	case Neg:
		return precNeg
	case Binary:
		switch t.Op {
		case '+', '-':
			return precAdd
		case '*', '/':
			return precMul
		case '^':
			return precPow
		}
	}
	return precAtom
}

// operands returns the left and right operand strings with parentheses added
// where precedence or associativity requires them.
func operands(b Binary, render func(Node) string, open, close string) (string, string) {
	p := precedence(b)
	l, r := render(b.L), render(b.R)

	lp, rp := precedence(b.L), precedence(b.R)
	switch b.Op {
	case '^':
		// right associative
		if lp <= p {
			l = open + l + close
		}
		if rp < p {
			r = open + r + close
		}
	default:
		if lp < p {
			l = open + l + close
		}
		if rp < p || (rp == p && (b.Op == '-' || b.Op == '/')) {
			r = open + r + close
		}
	}
	return l, r
}

func (n Num) String() string { return formatNum(n.V) }

func (n Var) String() string { return n.Name }

func (n Neg) String() string {
	s := n.X.String()
	if precedence(n.X) < precNeg {
		s = "(" + s + ")"
	}
	return "-" + s
}

func (n Binary) String() string {
	l, r := operands(n, Node.String, "(", ")")
	if n.Op == '^' {
		return l + "^" + r
	}
	return fmt.Sprintf("%s %c %s", l, n.Op, r)
}

func (n Call) String() string { return n.Fn + "(" + n.Arg.String() + ")" }

func (n Num) LaTeX() string {
	switch s := formatNum(n.V); s {
	case "pi":
		return `\pi`
	case "e":
		return "e"
	case "+Inf":
		return `\infty`
	case "-Inf":
		return `-\infty`
	default:
		if mant, exp, ok := strings.Cut(s, "e"); ok {
			return mant + `\times 10^{` + strings.TrimPrefix(exp, "+") + `}`
		}
		return s
	}
}

func (n Var) LaTeX() string { return n.Name }

func (n Neg) LaTeX() string {
	s := n.X.LaTeX()
	if precedence(n.X) < precNeg {
		s = `\left(` + s + `\right)`
	}
	return "-" + s
}

func (n Binary) LaTeX() string {
	switch n.Op {
	case '/':
		return `\frac{` + n.L.LaTeX() + `}{` + n.R.LaTeX() + `}`
	case '^':
		base := n.L.LaTeX()
		if precedence(n.L) <= precPow {
			base = `\left(` + base + `\right)`
		}
		return base + "^{" + n.R.LaTeX() + "}"
	}

	l, r := operands(n, Node.LaTeX, `\left(`, `\right)`)
	if n.Op == '*' {
		// 2x reads better than 2 \cdot x
		if _, ok := n.L.(Num); ok && juxtaposable(n.R) {
			return l + " " + r
		}
		return l + ` \cdot ` + r
	}
	return fmt.Sprintf("%s %c %s", l, n.Op, r)
}

func (n Call) LaTeX() string {
	arg := n.Arg.LaTeX()
	switch n.Fn {
	case "sqrt":
		return `\sqrt{` + arg + `}`
	case "abs":
		return `\left|` + arg + `\right|`
	case "exp":
		return `e^{` + arg + `}`
	case "log":
		return `\ln\left(` + arg + `\right)`
	case "floor":
		return `\left\lfloor ` + arg + ` \right\rfloor`
	case "ceil":
		return `\left\lceil ` + arg + ` \right\rceil`
	case "sign":
		return `\operatorname{sign}\left(` + arg + `\right)`
	}
	return `\` + n.Fn + `\left(` + arg + `\right)`
}

func juxtaposable(n Node) bool {
	switch t := n.(type) {
	case Num:
		return t.V == math.Pi || t.V == math.E
	case Var, Call:
		return true
	case Binary:
		return t.Op == '^'
	}
	return false
}
