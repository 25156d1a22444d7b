package grammar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrRandRequired        = errors.New("random source is required")
	ErrModeConflict        = errors.New("sampling cannot be both convergent and depth constrained")
	ErrNoDepthConstraints  = errors.New("depth constraints are not set")
	ErrDerivationExhausted = errors.New("no production satisfies the depth constraints")
	ErrNoSwappableSubtree  = errors.New("tree has no swappable subtree")
)

// Symbol is one element of a production right-hand side. Terminals come from
// quoted tokens in the rule text, nonterminals from bare ones.
type Symbol struct {
	Text        string
	Nonterminal bool
}

type Production struct {
	LHS string
	RHS []Symbol
}

// Grammar is a context-free grammar built once from rule text and then reused
// for many sampling calls. The production set is immutable after construction;
// only the sampling mode may change.
type Grammar struct {
	start       string
	productions []Production
	byLHS       map[string][]int

	nonterminals map[string]struct{}
	terminals    map[string]struct{}
	swappable    map[string]struct{}

	convergent       bool
	depthConstrained bool
	depthConstraints map[string]int
}

// NewGrammar parses rule text of the form
//
//	S -> S '+' T | T
//	T -> '1' | '2'
//
// one rule per line, alternatives separated by |, terminals quoted. The start
// symbol is the left-hand side of the first rule.
func NewGrammar(text string) (*Grammar, error) {
	g := &Grammar{
		byLHS:        make(map[string][]int),
		nonterminals: make(map[string]struct{}),
		terminals:    make(map[string]struct{}),
		swappable:    make(map[string]struct{}),
	}

	for lineNo, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lhs, rest, found := strings.Cut(line, "->")
		if !found {
			return nil, fmt.Errorf("rule %d: missing -> in %q", lineNo+1, line)
		}
		lhs = strings.TrimSpace(lhs)
		if lhs == "" || strings.ContainsAny(lhs, "()' \t") {
			return nil, fmt.Errorf("rule %d: invalid left-hand side %q", lineNo+1, lhs)
		}
		if g.start == "" {
			g.start = lhs
		}
		g.nonterminals[lhs] = struct{}{}
		for _, alt := range strings.Split(rest, "|") {
			rhs, err := parseAlternative(alt)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", lineNo+1, err)
			}
			g.byLHS[lhs] = append(g.byLHS[lhs], len(g.productions))
			g.productions = append(g.productions, Production{LHS: lhs, RHS: rhs})
		}
	}
	if len(g.productions) == 0 {
		return nil, errors.New("grammar has no productions")
	}

	for _, prod := range g.productions {
		for _, sym := range prod.RHS {
			if !sym.Nonterminal {
				g.terminals[sym.Text] = struct{}{}
			}
		}
	}
	for lhs, idxs := range g.byLHS {
		if len(idxs) > 1 {
			g.swappable[lhs] = struct{}{}
		}
	}

	if err := g.check(); err != nil {
		return nil, err
	}
	return g, nil
}

func parseAlternative(alt string) ([]Symbol, error) {
	var rhs []Symbol
	for _, tok := range strings.Fields(alt) {
		switch {
		case len(tok) >= 2 && (tok[0] == '\'' || tok[0] == '"'):
			if tok[len(tok)-1] != tok[0] || len(tok) < 3 {
				return nil, fmt.Errorf("unterminated terminal %q", tok)
			}
			rhs = append(rhs, Symbol{Text: tok[1 : len(tok)-1]})
		case strings.ContainsAny(tok, "()'\""):
			return nil, fmt.Errorf("invalid symbol %q", tok)
		default:
			rhs = append(rhs, Symbol{Text: tok, Nonterminal: true})
		}
	}
	return rhs, nil
}

// check enforces the construction invariants: terminal and nonterminal symbol
// sets are disjoint, and every nonterminal referenced anywhere has at least
// one production. Violations surface here, never at sample time.
func (g *Grammar) check() error {
	for t := range g.terminals {
		if _, clash := g.nonterminals[t]; clash {
			return fmt.Errorf("same terminal and nonterminal symbol: %s", t)
		}
	}
	for _, prod := range g.productions {
		for _, sym := range prod.RHS {
			if sym.Nonterminal {
				if len(g.byLHS[sym.Text]) == 0 {
					return fmt.Errorf("there is no production for nonterminal %s", sym.Text)
				}
			}
		}
	}
	return nil
}

func (g *Grammar) Start() string { return g.start }

func (g *Grammar) Nonterminals() []string { return sortedKeys(g.nonterminals) }

func (g *Grammar) Terminals() []string { return sortedKeys(g.terminals) }

// SwappableNonterminals are the nonterminals with more than one production,
// the ones eligible for genetic subtree operations.
func (g *Grammar) SwappableNonterminals() []string { return sortedKeys(g.swappable) }

func (g *Grammar) IsSwappable(symbol string) bool {
	_, ok := g.swappable[symbol]
	return ok
}

func (g *Grammar) IsTerminal(symbol string) bool {
	_, ok := g.terminals[symbol]
	return ok
}

// Productions returns the productions for a left-hand side in declaration
// order. The result is a copy.
func (g *Grammar) Productions(lhs string) []Production {
	idxs := g.byLHS[lhs]
	out := make([]Production, len(idxs))
	for i, pi := range idxs {
		out[i] = g.productions[pi]
	}
	return out
}

// SetDepthConstraints switches the grammar into depth-constrained mode with a
// per-nonterminal maximum open-recursion count. Clears convergent mode.
func (g *Grammar) SetDepthConstraints(constraints map[string]int) {
	g.depthConstraints = make(map[string]int, len(constraints))
	for k, v := range constraints {
		g.depthConstraints[k] = v
	}
	g.depthConstrained = true
	g.convergent = false
}

// SetConvergent switches the grammar into convergent mode, which down-weights
// repeated productions along a branch to keep trees finite. Clears any depth
// constraints.
func (g *Grammar) SetConvergent() {
	g.depthConstraints = nil
	g.depthConstrained = false
	g.convergent = true
}

func (g *Grammar) SetUnconstrained() {
	g.depthConstraints = nil
	g.depthConstrained = false
	g.convergent = false
}

func (g *Grammar) IsDepthConstrained() bool { return g.depthConstrained }

// DepthConstraint reports the configured bound for a nonterminal, if any.
func (g *Grammar) DepthConstraint(symbol string) (int, bool) {
	limit, ok := g.depthConstraints[symbol]
	return limit, ok
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
