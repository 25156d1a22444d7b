package param

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// CategoricalParameter is a value drawn uniformly from a fixed choice set.
type CategoricalParameter struct {
	choices []string
	value   string
	sampled bool
	id      string
}

func NewCategorical(choices []string) (*CategoricalParameter, error) {
	if len(choices) == 0 {
		return nil, fmt.Errorf("categorical parameter needs at least one choice")
	}
	seen := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("duplicate choice %q", c)
		}
		seen[c] = struct{}{}
	}
	return &CategoricalParameter{choices: append([]string(nil), choices...)}, nil
}

func (p *CategoricalParameter) Kind() Kind { return KindCategorical }

func (p *CategoricalParameter) Choices() []string {
	return append([]string(nil), p.choices...)
}

func (p *CategoricalParameter) HasValue() bool { return p.sampled }

func (p *CategoricalParameter) Value() string { return p.value }

func (p *CategoricalParameter) ID() string { return p.id }

func (p *CategoricalParameter) Sample(rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("%w: sample categorical", ErrRandRequired)
	}
	p.value = p.choices[rng.Intn(len(p.choices))]
	p.sampled = true
	p.id = freshID(rng)
	return nil
}

func (p *CategoricalParameter) index() int {
	for i, c := range p.choices {
		if c == p.value {
			return i
		}
	}
	return -1
}

// Normalized maps the current choice index onto [0,1).
func (p *CategoricalParameter) Normalized() (float64, error) {
	if !p.sampled {
		return 0, fmt.Errorf("%w: categorical", ErrNoValue)
	}
	return float64(p.index()) / float64(len(p.choices)), nil
}

func (p *CategoricalParameter) SetNormalized(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("normalized value %v outside [0,1]", v)
	}
	i := clamp(int(v*float64(len(p.choices))), 0, len(p.choices)-1)
	p.value = p.choices[i]
	p.sampled = true
	return nil
}

// Neighbours returns n parameters holding choices other than the current one.
// A single pass over a shuffled copy serves requests up to len(choices)-1
// distinct neighbours; larger requests draw with replacement.
func (p *CategoricalParameter) Neighbours(rng *rand.Rand, n int) ([]*CategoricalParameter, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: categorical neighbours", ErrRandRequired)
	}
	if !p.sampled {
		return nil, fmt.Errorf("%w: categorical", ErrNoValue)
	}
	if len(p.choices) < 2 {
		return nil, fmt.Errorf("%w: single-choice categorical", ErrNoAlternativeChoice)
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]*CategoricalParameter, 0, n)
	if n <= len(p.choices)-1 {
		shuffled := append([]string(nil), p.choices...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		for _, c := range shuffled {
			if c == p.value {
				continue
			}
			nb := p.clone()
			nb.value = c
			nb.id = freshID(rng)
			out = append(out, nb)
			if len(out) == n {
				break
			}
		}
		return out, nil
	}

	for len(out) < n {
		c := p.choices[rng.Intn(len(p.choices))]
		if c == p.value {
			continue
		}
		nb := p.clone()
		nb.value = c
		nb.id = freshID(rng)
		out = append(out, nb)
	}
	return out, nil
}

func (p *CategoricalParameter) Mutate(rng *rand.Rand, strategy string) (Parameter, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: mutate categorical", ErrRandRequired)
	}
	if !p.sampled {
		return nil, fmt.Errorf("%w: categorical", ErrNoValue)
	}
	if strategy == "" {
		strategy = StrategyLocalSearch
	}

	switch strategy {
	case StrategySimple:
		child := p.clone()
		if err := child.Sample(rng); err != nil {
			return nil, err
		}
		if child.value == p.value {
			return nil, ErrUnchangedChild
		}
		return child, nil
	case StrategyLocalSearch:
		nbs, err := p.Neighbours(rng, 1)
		if err != nil {
			return nil, err
		}
		return nbs[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

func (p *CategoricalParameter) Crossover(rng *rand.Rand, other Parameter) (Parameter, Parameter, error) {
	return nil, nil, fmt.Errorf("%w: categorical", ErrCrossoverUnsupported)
}

func (p *CategoricalParameter) clone() *CategoricalParameter {
	c := *p
	c.choices = append([]string(nil), p.choices...)
	return &c
}

func (p *CategoricalParameter) Clone() Parameter { return p.clone() }

func (p *CategoricalParameter) SerializeValue() string { return p.value }

func (p *CategoricalParameter) RestoreValue(s string) error {
	for _, c := range p.choices {
		if c == s {
			p.value = s
			p.sampled = true
			return nil
		}
	}
	return fmt.Errorf("restored categorical value %q is not a declared choice", s)
}
