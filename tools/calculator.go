package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// CalculatorTool evaluates a simple arithmetic expression using Go parser.
type CalculatorTool struct{}

func (c *CalculatorTool) Name() string { return "calculator" }
func (c *CalculatorTool) Description() string {
	return "Evaluate simple arithmetic expressions (e.g., 2+2*3)."
}
func (c *CalculatorTool) Schema() map[string]any {
	return ObjectSchema(map[string]any{
		"expression": map[string]any{"type": "string", "description": "arithmetic expression"},
	}, "expression")
}

type calculatorArgs struct {
	Expression string `json:"expression"`
}

// Execute accepts {"expression": "..."} or a bare expression.
func (c *CalculatorTool) Execute(ctx context.Context, arguments string) (string, error) {
	input := strings.TrimSpace(arguments)
	if strings.HasPrefix(input, "{") {
		var args calculatorArgs
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		input = args.Expression
	}
	// Only + - * / and parentheses are evaluated.
	fs := token.NewFileSet()
	expr, err := parser.ParseExprFrom(fs, "expr", input, 0)
	if err != nil {
		return "", fmt.Errorf("parse error: %w", err)
	}
	val, err := eval(expr)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(val, 'f', -1, 64), nil
}

func eval(e ast.Expr) (float64, error) {
	switch v := e.(type) {
	case *ast.BasicLit:
		if v.Kind != token.INT && v.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal: %s", v.Value)
		}
		return strconv.ParseFloat(v.Value, 64)
	case *ast.UnaryExpr:
		x, err := eval(v.X)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case token.SUB:
			return -x, nil
		case token.ADD:
			return x, nil
		}
		return 0, fmt.Errorf("unsupported operator: %s", v.Op)
	case *ast.ParenExpr:
		return eval(v.X)
	case *ast.BinaryExpr:
		left, err := eval(v.X)
		if err != nil {
			return 0, err
		}
		right, err := eval(v.Y)
		if err != nil {
			return 0, err
		}
		switch v.Op {
		case token.ADD:
			return left + right, nil
		case token.SUB:
			return left - right, nil
		case token.MUL:
			return left * right, nil
		case token.QUO:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		default:
			return 0, fmt.Errorf("unsupported operator: %s", v.Op)
		}
	default:
		return 0, fmt.Errorf("unsupported expression: %T", e)
	}
}
