package daidalos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"daidalos/internal/grammar"
	"daidalos/internal/space"
)

// EvaluateFn scores one sampled configuration. Lower is better.
type EvaluateFn func(ctx context.Context, cfg *space.SearchSpace) (float64, error)

// Built-in objective names accepted by RunRequest.Objective.
const (
	ObjectiveTreeSize = "tree_size"
	ObjectiveArith    = "arith"
)

// DemoGrammar derives small arithmetic expressions. Runs that do not bring
// their own grammar search over it.
const DemoGrammar = `S -> S '+' T | S '-' T | T
T -> T '*' F | F
F -> '1' | '2' | '3' | '5'`

func objectiveFromName(name string, target float64) (EvaluateFn, error) {
	switch name {
	case ObjectiveTreeSize:
		return treeSizeObjective(target), nil
	case ObjectiveArith:
		return arithObjective(target), nil
	default:
		return nil, fmt.Errorf("unsupported objective: %s", name)
	}
}

// treeSizeObjective scores a configuration by how far its derivation tree's
// terminal count lands from target.
func treeSizeObjective(target float64) EvaluateFn {
	return func(_ context.Context, cfg *space.SearchSpace) (float64, error) {
		tree, err := firstTree(cfg)
		if err != nil {
			return 0, err
		}
		return math.Abs(float64(tree.TerminalCount()) - target), nil
	}
}

// arithObjective evaluates the derived arithmetic expression and scores the
// distance of its value from target.
func arithObjective(target float64) EvaluateFn {
	return func(_ context.Context, cfg *space.SearchSpace) (float64, error) {
		tree, err := firstTree(cfg)
		if err != nil {
			return 0, err
		}
		value, err := evalArith(tree)
		if err != nil {
			return 0, err
		}
		return math.Abs(value - target), nil
	}
}

func firstTree(cfg *space.SearchSpace) (*grammar.Tree, error) {
	graphs := cfg.Graphs()
	if len(graphs) == 0 {
		return nil, errors.New("configuration has no grammar parameter")
	}
	return graphs[0].Tree()
}

// evalArith folds a derivation tree into its numeric value. Single-child
// nodes pass through; three-child nodes are left, operator, right.
func evalArith(t *grammar.Tree) (float64, error) {
	if t.Terminal {
		v, err := strconv.ParseFloat(t.Symbol, 64)
		if err != nil {
			return 0, fmt.Errorf("terminal %q is not a number", t.Symbol)
		}
		return v, nil
	}
	switch len(t.Children) {
	case 1:
		return evalArith(t.Children[0])
	case 3:
		left, err := evalArith(t.Children[0])
		if err != nil {
			return 0, err
		}
		op := t.Children[1]
		if !op.Terminal {
			return 0, fmt.Errorf("operator position holds nonterminal %s", op.Symbol)
		}
		right, err := evalArith(t.Children[2])
		if err != nil {
			return 0, err
		}
		switch op.Symbol {
		case "+":
			return left + right, nil
		case "-":
			return left - right, nil
		case "*":
			return left * right, nil
		default:
			return 0, fmt.Errorf("unsupported operator %q", op.Symbol)
		}
	default:
		return 0, fmt.Errorf("node %s has %d children, want 1 or 3", t.Symbol, len(t.Children))
	}
}
