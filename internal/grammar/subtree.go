package grammar

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
)

// RandSubtree picks a swappable-nonterminal occurrence uniformly from a tree
// string, returning its symbol and token index. The first occurrence (the
// root, whenever the root is swappable) is skipped unless it is the only
// candidate.
func (g *Grammar) RandSubtree(rng *rand.Rand, tree string) (string, int, error) {
	if rng == nil {
		return "", 0, fmt.Errorf("%w: rand subtree", ErrRandRequired)
	}
	tokens := strings.Split(tree, " ")
	var idxs []int
	for i, tok := range tokens {
		if strings.HasPrefix(tok, "(") && g.IsSwappable(tok[1:]) {
			idxs = append(idxs, i)
		}
	}
	if len(idxs) == 0 {
		return "", 0, ErrNoSwappableSubtree
	}
	r := 0
	if len(idxs) > 1 {
		r = 1 + rng.Intn(len(idxs)-1)
	}
	return tokens[idxs[r]][1:], idxs[r], nil
}

// RandSubtreeFixedHead picks a random occurrence of a specific nonterminal in
// the tree. Under depth-constrained mode only occurrences whose open depth at
// that point is at least minDepth qualify. ok is false when no occurrence
// qualifies.
func (g *Grammar) RandSubtreeFixedHead(rng *rand.Rand, tree, head string, minDepth int) (index int, ok bool) {
	tokens := strings.Split(tree, " ")
	var idxs []int
	if g.depthConstrained {
		depths := g.ComputeDepthInformation(tree)
		for i, tok := range tokens {
			if strings.HasPrefix(tok, "(") && tok[1:] == head && depths[i] >= minDepth {
				idxs = append(idxs, i)
			}
		}
	} else {
		for i, tok := range tokens {
			if strings.HasPrefix(tok, "(") && tok[1:] == head {
				idxs = append(idxs, i)
			}
		}
	}
	if len(idxs) == 0 {
		return 0, false
	}
	r := 0
	if len(idxs) > 1 {
		r = 1 + rng.Intn(len(idxs)-1)
	}
	return idxs[r], true
}

// RemoveSubtree splits a tree string at the subtree opening at the given token
// index, returning the text before it, the subtree itself, and the text after.
// Concatenating the three reproduces the input exactly, so a replacement can
// be spliced between prefix and suffix.
func RemoveSubtree(tree string, index int) (prefix, removed, suffix string, err error) {
	tokens := strings.Split(tree, " ")
	if index <= 0 || index >= len(tokens) {
		return "", "", "", fmt.Errorf("subtree index %d out of range", index)
	}
	if !strings.HasPrefix(tokens[index], "(") {
		return "", "", "", fmt.Errorf("token %q at index %d does not open a subtree", tokens[index], index)
	}

	prefix = strings.Join(tokens[:index], " ") + " "
	right := strings.Join(tokens[index+1:], " ")

	counter, cut := 1, -1
	for i := 0; i < len(right); i++ {
		switch right[i] {
		case '(':
			counter++
		case ')':
			counter--
		}
		if counter == 0 {
			cut = i
			break
		}
	}
	if cut < 0 {
		return "", "", "", fmt.Errorf("unbalanced subtree at index %d", index)
	}
	removed = tokens[index] + " " + right[:cut+1]
	suffix = right[cut+1:]
	return prefix, removed, suffix, nil
}

// ComputeDepthInformation annotates each token of a tree string with the open
// recursion depth of its head nonterminal at that point; tokens that do not
// open a scope are annotated 0.
func (g *Grammar) ComputeDepthInformation(tree string) []int {
	tokens := strings.Split(tree, " ")
	depths := make([]int, len(tokens))
	open := make(map[string]int, len(g.nonterminals))
	var stack []string

	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "(") {
			nt := tok[1:]
			stack = append(stack, nt)
			depths[i] = open[nt] + 1
			open[nt]++
			continue
		}
		for strings.HasSuffix(tok, ")") && len(stack) > 0 {
			nt := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			open[nt]--
			tok = tok[:len(tok)-1]
		}
	}
	return depths
}

// ComputeDepthInformationForPrefix scans a tree prefix (typically the text
// before an excised subtree) and returns how many scopes of each nonterminal
// remain open at its end. The result seeds SampleFrom when deriving a
// replacement that must honor the surrounding depth.
func (g *Grammar) ComputeDepthInformationForPrefix(prefix string) map[string]int {
	open := make(map[string]int, len(g.nonterminals))
	for nt := range g.nonterminals {
		open[nt] = 0
	}
	var stack []string
	for _, tok := range strings.Split(prefix, " ") {
		if tok == "" {
			continue
		}
		if strings.HasPrefix(tok, "(") {
			nt := tok[1:]
			stack = append(stack, nt)
			open[nt]++
			continue
		}
		for strings.HasSuffix(tok, ")") && len(stack) > 0 {
			nt := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			open[nt]--
			tok = tok[:len(tok)-1]
		}
	}
	return open
}

// CheckDepthConstraints reports whether every nonterminal occurrence in the
// tree respects the configured open-recursion bounds. Always true when the
// grammar is not depth constrained.
func (g *Grammar) CheckDepthConstraints(tree string) bool {
	if !g.depthConstrained {
		return true
	}
	tokens := strings.Split(tree, " ")
	depths := g.ComputeDepthInformation(tree)
	for i, tok := range tokens {
		if !strings.HasPrefix(tok, "(") {
			continue
		}
		if limit, ok := g.depthConstraints[tok[1:]]; ok && depths[i] > limit {
			return false
		}
	}
	return true
}
