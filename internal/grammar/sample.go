package grammar

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// Sample draws n derivation-tree strings starting from the grammar's start
// symbol. cfactor only applies in convergent mode; smaller values bias harder
// against repeated productions and yield shorter trees.
func (g *Grammar) Sample(rng *rand.Rand, n int, cfactor float64) ([]string, error) {
	return g.SampleFrom(rng, n, cfactor, g.start, nil)
}

// SampleFrom is Sample with an explicit start symbol and, for depth-constrained
// mode, initial open-recursion counts. The counts let a caller sample a
// replacement subtree that must respect the depth already consumed by the
// surrounding tree.
func (g *Grammar) SampleFrom(rng *rand.Rand, n int, cfactor float64, startSymbol string, depthInfo map[string]int) ([]string, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: grammar sample", ErrRandRequired)
	}
	if g.convergent && g.depthConstrained {
		return nil, ErrModeConflict
	}
	if g.depthConstrained && g.depthConstraints == nil {
		return nil, ErrNoDepthConstraints
	}
	if len(g.byLHS[startSymbol]) == 0 {
		return nil, fmt.Errorf("there is no production for nonterminal %s", startSymbol)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case g.convergent:
			tree, _, _ := g.convergentSample(rng, startSymbol, cfactor, make(map[int]int))
			out = append(out, tree+")")
		case g.depthConstrained:
			open := make(map[string]int, len(depthInfo))
			for k, v := range depthInfo {
				open[k] = v
			}
			tree, err := g.depthConstrainedSample(rng, startSymbol, open)
			if err != nil {
				return nil, err
			}
			out = append(out, tree+")")
		default:
			out = append(out, g.unconstrainedSample(rng, startSymbol)+")")
		}
	}
	return out, nil
}

// unconstrainedSample picks uniformly among productions at every step. It may
// not terminate on recursive grammars; callers wanting bounded trees use
// convergent or depth-constrained mode.
func (g *Grammar) unconstrainedSample(rng *rand.Rand, symbol string) string {
	tree := "(" + symbol
	idxs := g.byLHS[symbol]
	prod := g.productions[idxs[rng.Intn(len(idxs))]]
	for _, sym := range prod.RHS {
		if sym.Nonterminal {
			tree += " " + g.unconstrainedSample(rng, sym.Text) + ")"
		} else {
			tree += " " + sym.Text
		}
	}
	return tree
}

// convergentSample weights each production by cfactor^uses, where uses counts
// how often that production already occurs on the current root-to-node path.
// pcount is the path-local bookkeeping, keyed by production index; it is
// created fresh for every top-level sample and unwinds on return. Returns the
// partial tree along with its depth and production count.
func (g *Grammar) convergentSample(rng *rand.Rand, symbol string, cfactor float64, pcount map[int]int) (string, int, int) {
	tree := "(" + symbol
	depth, numProd := 1, 1

	idxs := g.byLHS[symbol]
	weights := make([]float64, len(idxs))
	for i, pi := range idxs {
		weights[i] = math.Pow(cfactor, float64(pcount[pi]))
	}
	chosen := idxs[weightedChoice(rng, weights)]
	pcount[chosen]++

	maxChild := 0
	for _, sym := range g.productions[chosen].RHS {
		if !sym.Nonterminal {
			tree += " " + sym.Text
			continue
		}
		sub, d, np := g.convergentSample(rng, sym.Text, cfactor, pcount)
		if d > maxChild {
			maxChild = d
		}
		numProd += np
		tree += " " + sub + ")"
	}
	if maxChild > 0 {
		depth = maxChild + 1
	}
	pcount[chosen]--
	return tree, depth, numProd
}

// depthConstrainedSample excludes self-recursive productions once a
// nonterminal's open count exceeds its configured bound. open tracks the
// per-nonterminal open-recursion counts along the current path.
func (g *Grammar) depthConstrainedSample(rng *rand.Rand, symbol string, open map[string]int) (string, error) {
	open[symbol]++

	idxs := g.byLHS[symbol]
	if limit, ok := g.depthConstraints[symbol]; ok && open[symbol] > limit {
		filtered := make([]int, 0, len(idxs))
		for _, pi := range idxs {
			if !recursesInto(g.productions[pi], symbol) {
				filtered = append(filtered, pi)
			}
		}
		idxs = filtered
	}
	if len(idxs) == 0 {
		return "", fmt.Errorf("%w: nonterminal %s at open depth %d", ErrDerivationExhausted, symbol, open[symbol])
	}

	tree := "(" + symbol
	prod := g.productions[idxs[rng.Intn(len(idxs))]]
	for _, sym := range prod.RHS {
		if !sym.Nonterminal {
			tree += " " + sym.Text
			continue
		}
		sub, err := g.depthConstrainedSample(rng, sym.Text, open)
		if err != nil {
			return "", err
		}
		tree += " " + sub + ")"
	}
	open[symbol]--
	return tree, nil
}

func recursesInto(prod Production, symbol string) bool {
	for _, sym := range prod.RHS {
		if sym.Nonterminal && sym.Text == symbol {
			return true
		}
	}
	return false
}

// SampleMaxMin derives a tree by always taking the last declared production
// (largest) or the first (smallest) of every nonterminal. Useful for probing
// the size extremes a grammar admits; assumes the extreme productions
// terminate.
func (g *Grammar) SampleMaxMin(largest bool) string {
	return g.sampleMaxMinFrom(g.start, largest) + ")"
}

func (g *Grammar) sampleMaxMinFrom(symbol string, largest bool) string {
	tree := "(" + symbol
	idxs := g.byLHS[symbol]
	pi := idxs[0]
	if largest {
		pi = idxs[len(idxs)-1]
	}
	for _, sym := range g.productions[pi].RHS {
		if sym.Nonterminal {
			tree += " " + g.sampleMaxMinFrom(sym.Text, largest) + ")"
		} else {
			tree += " " + sym.Text
		}
	}
	return tree
}

// weightedChoice draws one index with probability proportional to its weight,
// falling back to the last index if accumulated rounding leaves the draw
// unmatched.
func weightedChoice(rng *rand.Rand, weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	x := rng.Float64()
	cum := 0.0
	for i, w := range weights {
		cum += w / total
		if x < cum {
			return i
		}
	}
	return len(weights) - 1
}
