package param

import (
	"errors"
	"fmt"

	"golang.org/x/exp/rand"

	"daidalos/internal/grammar"
)

// GraphParameter holds a derivation-tree string sampled from a grammar.
// Mutation excises a random swappable subtree and regrows it in place under
// the splice point's open-depth context; crossover exchanges same-head
// subtrees between two parents.
type GraphParameter struct {
	g       *grammar.Grammar
	cfactor float64
	tree    string
}

func NewGraph(g *grammar.Grammar, cfactor float64) (*GraphParameter, error) {
	if g == nil {
		return nil, fmt.Errorf("graph parameter needs a grammar")
	}
	if cfactor <= 0 || cfactor > 1 {
		return nil, fmt.Errorf("convergence factor %v outside (0, 1]", cfactor)
	}
	return &GraphParameter{g: g, cfactor: cfactor}, nil
}

func (p *GraphParameter) Kind() Kind { return KindGraph }

func (p *GraphParameter) Grammar() *grammar.Grammar { return p.g }

func (p *GraphParameter) HasValue() bool { return p.tree != "" }

func (p *GraphParameter) Value() string { return p.tree }

// Tree parses the current value into its node form.
func (p *GraphParameter) Tree() (*grammar.Tree, error) {
	if p.tree == "" {
		return nil, fmt.Errorf("%w: graph", ErrNoValue)
	}
	return grammar.ParseTree(p.tree)
}

// ID is the tree string itself: two graph parameters are the same
// configuration exactly when they derive the same tree.
func (p *GraphParameter) ID() string { return p.tree }

func (p *GraphParameter) Sample(rng *rand.Rand) error {
	trees, err := p.g.Sample(rng, 1, p.cfactor)
	if err != nil {
		return err
	}
	p.tree = trees[0]
	return nil
}

func (p *GraphParameter) Mutate(rng *rand.Rand, strategy string) (Parameter, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: mutate graph", ErrRandRequired)
	}
	if p.tree == "" {
		return nil, fmt.Errorf("%w: graph", ErrNoValue)
	}
	if strategy == "" {
		strategy = StrategyLocalSearch
	}

	child := p.clone()
	switch strategy {
	case StrategySimple:
		if err := child.Sample(rng); err != nil {
			return nil, err
		}
	case StrategyLocalSearch:
		tree, err := p.swapRandomSubtree(rng)
		if err != nil {
			return nil, err
		}
		child.tree = tree
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	if child.tree == p.tree {
		return nil, ErrUnchangedChild
	}
	return child, nil
}

// swapRandomSubtree regrows one swappable subtree. When the root is the only
// swappable occurrence the whole tree is resampled instead, since the root
// cannot be excised.
func (p *GraphParameter) swapRandomSubtree(rng *rand.Rand) (string, error) {
	symbol, index, err := p.g.RandSubtree(rng, p.tree)
	if err != nil {
		return "", err
	}
	if index == 0 {
		trees, err := p.g.Sample(rng, 1, p.cfactor)
		if err != nil {
			return "", err
		}
		return trees[0], nil
	}

	prefix, _, suffix, err := grammar.RemoveSubtree(p.tree, index)
	if err != nil {
		return "", err
	}
	var depthInfo map[string]int
	if p.g.IsDepthConstrained() {
		depthInfo = p.g.ComputeDepthInformationForPrefix(prefix)
	}
	subtrees, err := p.g.SampleFrom(rng, 1, p.cfactor, symbol, depthInfo)
	if err != nil {
		return "", err
	}
	return prefix + subtrees[0] + suffix, nil
}

func (p *GraphParameter) Crossover(rng *rand.Rand, other Parameter) (Parameter, Parameter, error) {
	if rng == nil {
		return nil, nil, fmt.Errorf("%w: crossover graph", ErrRandRequired)
	}
	o, ok := other.(*GraphParameter)
	if !ok {
		return nil, nil, fmt.Errorf("graph crossover needs a graph partner, got %s", other.Kind())
	}
	if p.tree == "" || o.tree == "" {
		return nil, nil, fmt.Errorf("%w: graph", ErrNoValue)
	}

	symbol, idx1, err := p.g.RandSubtree(rng, p.tree)
	if err != nil {
		return nil, nil, err
	}
	if idx1 == 0 {
		return nil, nil, fmt.Errorf("%w: only the root is swappable", ErrNoCrossoverPoint)
	}

	minDepth := 0
	if p.g.IsDepthConstrained() {
		minDepth = p.g.ComputeDepthInformation(p.tree)[idx1]
	}
	idx2, found := p.g.RandSubtreeFixedHead(rng, o.tree, symbol, minDepth)
	if !found {
		return nil, nil, fmt.Errorf("%w: no %s occurrence in partner", ErrNoCrossoverPoint, symbol)
	}

	pre1, sub1, post1, err := grammar.RemoveSubtree(p.tree, idx1)
	if err != nil {
		return nil, nil, err
	}
	pre2, sub2, post2, err := grammar.RemoveSubtree(o.tree, idx2)
	if err != nil {
		return nil, nil, err
	}

	first := p.clone()
	first.tree = pre1 + sub2 + post1
	second := o.clone()
	second.tree = pre2 + sub1 + post2

	if p.g.IsDepthConstrained() {
		if !p.g.CheckDepthConstraints(first.tree) || !p.g.CheckDepthConstraints(second.tree) {
			return nil, nil, fmt.Errorf("%w: exchange violates depth constraints", ErrNoCrossoverPoint)
		}
	}
	return first, second, nil
}

func (p *GraphParameter) clone() *GraphParameter {
	c := *p
	return &c
}

func (p *GraphParameter) Clone() Parameter { return p.clone() }

func (p *GraphParameter) SerializeValue() string { return p.tree }

func (p *GraphParameter) RestoreValue(s string) error {
	if _, err := grammar.ParseTree(s); err != nil {
		return fmt.Errorf("restore graph value: %w", err)
	}
	if !p.g.CheckDepthConstraints(s) {
		return errors.New("restored graph value violates depth constraints")
	}
	p.tree = s
	return nil
}
