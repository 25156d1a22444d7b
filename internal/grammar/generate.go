package grammar

import (
	"strings"

	"golang.org/x/exp/rand"
)

// Generator enumerates up to n sentences derivable within a maximum tree
// depth, depth-first and left-to-right over every production. Each sentence is
// the space-joined terminal sequence. Terminals consume a depth level, so a
// derivation S -> T -> '1' needs depth 3.
func (g *Grammar) Generator(n, depth int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	emit := func(sentence []string) bool {
		out = append(out, strings.Join(sentence, " "))
		return len(out) < n
	}
	g.generateAll([]Symbol{{Text: g.start, Nonterminal: true}}, depth, emit)
	return out
}

// generateAll emits every concatenation of fragments derivable from items.
// Both helpers return false once the emit callback asks to stop.
func (g *Grammar) generateAll(items []Symbol, depth int, emit func([]string) bool) bool {
	if len(items) == 0 {
		return emit(nil)
	}
	return g.generateOne(items[0], depth, func(head []string) bool {
		return g.generateAll(items[1:], depth, func(tail []string) bool {
			sentence := make([]string, 0, len(head)+len(tail))
			sentence = append(sentence, head...)
			sentence = append(sentence, tail...)
			return emit(sentence)
		})
	})
}

func (g *Grammar) generateOne(item Symbol, depth int, emit func([]string) bool) bool {
	if depth <= 0 {
		return true
	}
	if !item.Nonterminal {
		return emit([]string{item.Text})
	}
	for _, pi := range g.byLHS[item.Text] {
		if !g.generateAll(g.productions[pi].RHS, depth-1, emit) {
			return false
		}
	}
	return true
}

// SamplerRestricted draws convergent samples until n unique trees whose
// terminal count lies in [minLength, maxLength] have been collected. There is
// no bound on the number of draws; a grammar/window combination that admits
// fewer than n such trees will loop. This is an offline search-space
// construction utility, so that is accepted.
func (g *Grammar) SamplerRestricted(rng *rand.Rand, n, maxLength int, cfactor float64, minLength int) ([]string, error) {
	if rng == nil {
		return nil, ErrRandRequired
	}
	seen := make(map[string]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		partial, _, _ := g.convergentSample(rng, g.start, cfactor, make(map[int]int))
		tree := partial + ")"
		length := g.countTerminals(tree)
		if length > maxLength || length < minLength {
			continue
		}
		if _, dup := seen[tree]; dup {
			continue
		}
		seen[tree] = struct{}{}
		out = append(out, tree)
	}
	return out, nil
}

// countTerminals counts terminal tokens in a tree string, ignoring the scope
// brackets riding on each token.
func (g *Grammar) countTerminals(tree string) int {
	count := 0
	for _, tok := range strings.Fields(tree) {
		if strings.HasPrefix(tok, "(") {
			continue
		}
		tok = strings.TrimRight(tok, ")")
		if tok == "" {
			continue
		}
		if _, ok := g.terminals[tok]; ok {
			count++
		}
	}
	return count
}
