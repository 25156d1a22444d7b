package param

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/rand"
)

// IntegerParameter is a discrete value in [lower, upper], optionally sampled
// on a log scale.
type IntegerParameter struct {
	lower, upper int
	log          bool
	value        int
	sampled      bool
	id           string
}

func NewInteger(lower, upper int, log bool) (*IntegerParameter, error) {
	if err := checkBounds(lower, upper); err != nil {
		return nil, err
	}
	if log && lower <= 0 {
		return nil, fmt.Errorf("log scale needs a positive lower bound, got %v", lower)
	}
	return &IntegerParameter{lower: lower, upper: upper, log: log}, nil
}

func (p *IntegerParameter) Kind() Kind { return KindInteger }

func (p *IntegerParameter) Lower() int { return p.lower }

func (p *IntegerParameter) Upper() int { return p.upper }

func (p *IntegerParameter) LogScale() bool { return p.log }

func (p *IntegerParameter) HasValue() bool { return p.sampled }

func (p *IntegerParameter) Value() int { return p.value }

func (p *IntegerParameter) ID() string { return p.id }

func (p *IntegerParameter) Sample(rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("%w: sample integer", ErrRandRequired)
	}
	if p.log {
		lo, hi := math.Log(float64(p.lower)), math.Log(float64(p.upper))
		v := int(math.Round(math.Exp(lo + rng.Float64()*(hi-lo))))
		p.value = clamp(v, p.lower, p.upper)
	} else {
		p.value = p.lower + rng.Intn(p.upper-p.lower+1)
	}
	p.sampled = true
	p.id = freshID(rng)
	return nil
}

func (p *IntegerParameter) Normalized() (float64, error) {
	if !p.sampled {
		return 0, fmt.Errorf("%w: integer", ErrNoValue)
	}
	return float64(p.value-p.lower) / float64(p.upper-p.lower), nil
}

func (p *IntegerParameter) SetNormalized(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("normalized value %v outside [0,1]", v)
	}
	p.value = clamp(p.lower+int(math.Round(v*float64(p.upper-p.lower))), p.lower, p.upper)
	p.sampled = true
	return nil
}

func (p *IntegerParameter) Mutate(rng *rand.Rand, strategy string) (Parameter, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: mutate integer", ErrRandRequired)
	}
	if !p.sampled {
		return nil, fmt.Errorf("%w: integer", ErrNoValue)
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
		cur, err := p.Normalized()
		if err != nil {
			return nil, err
		}
		next := cur + rng.NormFloat64()*localSearchStd
		for next < 0 || next > 1 {
			next = cur + rng.NormFloat64()*localSearchStd
		}
		if err := child.SetNormalized(next); err != nil {
			return nil, err
		}
		child.id = freshID(rng)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	if child.value == p.value {
		return nil, ErrUnchangedChild
	}
	return child, nil
}

func (p *IntegerParameter) Crossover(rng *rand.Rand, other Parameter) (Parameter, Parameter, error) {
	return nil, nil, fmt.Errorf("%w: integer", ErrCrossoverUnsupported)
}

func (p *IntegerParameter) clone() *IntegerParameter {
	c := *p
	return &c
}

func (p *IntegerParameter) Clone() Parameter { return p.clone() }

func (p *IntegerParameter) SerializeValue() string {
	if !p.sampled {
		return ""
	}
	return strconv.Itoa(p.value)
}

func (p *IntegerParameter) RestoreValue(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("restore integer value: %w", err)
	}
	if v < p.lower || v > p.upper {
		return fmt.Errorf("restored integer value %d outside [%d, %d]", v, p.lower, p.upper)
	}
	p.value = v
	p.sampled = true
	return nil
}
