package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Parse reads an infix expression in x and y.
//
// Supported syntax: numbers, x, y, the constants pi and e, unary minus,
// + - * / and the power operators ^ and **, parentheses, and the functions
// sin cos tan exp log sqrt abs tanh floor ceil sign.
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("empty expression")
	}

	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", src, err)
	}

	n, err := convert(tree.Node)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", src, err)
	}
	return n, nil
}

// MustParse is like Parse but panics on error. It is meant for expressions
// known at compile time.
func MustParse(src string) Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

func convert(node ast.Node) (Node, error) {
	switch n := node.(type) {
	case *ast.IntegerNode:
		return Num{float64(n.Value)}, nil

	case *ast.FloatNode:
		return Num{n.Value}, nil

	case *ast.IdentifierNode:
		switch n.Value {
		case "x", "y":
			return Var{n.Value}, nil
		case "pi":
			return Num{math.Pi}, nil
		case "e":
			return Num{math.E}, nil
		}
		return nil, fmt.Errorf("unknown variable %q (only x and y are allowed)", n.Value)

	case *ast.UnaryNode:
		x, err := convert(n.Node)
		if err != nil {
			return nil, err
		}
		switch n.Operator {
		case "-":
			return Neg{x}, nil
		case "+":
			return x, nil
		}
		return nil, fmt.Errorf("unsupported unary operator %q", n.Operator)

	case *ast.BinaryNode:
		l, err := convert(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := convert(n.Right)
		if err != nil {
			return nil, err
		}
		switch n.Operator {
		case "+", "-", "*", "/", "^":
			return Binary{n.Operator[0], l, r}, nil
		case "**":
			return Binary{'^', l, r}, nil
		}
		return nil, fmt.Errorf("unsupported operator %q", n.Operator)

	case *ast.CallNode:
		ident, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return nil, fmt.Errorf("unsupported call")
		}
		return call(ident.Value, n.Arguments)

	case *ast.BuiltinNode:
		return call(n.Name, n.Arguments)
	}
	return nil, fmt.Errorf("unsupported syntax %T", node)
}

func call(name string, args []ast.Node) (Node, error) {
	if !functions[name] {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes exactly one argument, got %d", name, len(args))
	}
	arg, err := convert(args[0])
	if err != nil {
		return nil, err
	}
	return Call{name, arg}, nil
}
