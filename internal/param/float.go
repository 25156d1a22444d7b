package param

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/rand"
)

// localSearchStd is the noise width, on the normalized scale, of local-search
// mutation for numeric parameters.
const localSearchStd = 0.2

// FloatParameter is a continuous value in [lower, upper], optionally sampled
// on a log scale.
type FloatParameter struct {
	lower, upper float64
	log          bool
	value        float64
	sampled      bool
	id           string
}

func NewFloat(lower, upper float64, log bool) (*FloatParameter, error) {
	if err := checkBounds(lower, upper); err != nil {
		return nil, err
	}
	if log && lower <= 0 {
		return nil, fmt.Errorf("log scale needs a positive lower bound, got %v", lower)
	}
	return &FloatParameter{lower: lower, upper: upper, log: log}, nil
}

func (p *FloatParameter) Kind() Kind { return KindFloat }

func (p *FloatParameter) Lower() float64 { return p.lower }

func (p *FloatParameter) Upper() float64 { return p.upper }

func (p *FloatParameter) LogScale() bool { return p.log }

func (p *FloatParameter) HasValue() bool { return p.sampled }

func (p *FloatParameter) Value() float64 { return p.value }

func (p *FloatParameter) ID() string { return p.id }

func (p *FloatParameter) Sample(rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("%w: sample float", ErrRandRequired)
	}
	if p.log {
		lo, hi := math.Log(p.lower), math.Log(p.upper)
		p.value = clamp(math.Exp(lo+rng.Float64()*(hi-lo)), p.lower, p.upper)
	} else {
		p.value = p.lower + rng.Float64()*(p.upper-p.lower)
	}
	p.sampled = true
	p.id = freshID(rng)
	return nil
}

// Normalized maps the current value linearly onto [0,1].
func (p *FloatParameter) Normalized() (float64, error) {
	if !p.sampled {
		return 0, fmt.Errorf("%w: float", ErrNoValue)
	}
	if math.IsNaN(p.value) {
		return 0, fmt.Errorf("float value is NaN")
	}
	return (p.value - p.lower) / (p.upper - p.lower), nil
}

func (p *FloatParameter) SetNormalized(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("normalized value %v outside [0,1]", v)
	}
	p.value = p.lower + v*(p.upper-p.lower)
	p.sampled = true
	return nil
}

func (p *FloatParameter) Mutate(rng *rand.Rand, strategy string) (Parameter, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: mutate float", ErrRandRequired)
	}
	if !p.sampled {
		return nil, fmt.Errorf("%w: float", ErrNoValue)
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

func (p *FloatParameter) Crossover(rng *rand.Rand, other Parameter) (Parameter, Parameter, error) {
	return nil, nil, fmt.Errorf("%w: float", ErrCrossoverUnsupported)
}

func (p *FloatParameter) clone() *FloatParameter {
	c := *p
	return &c
}

func (p *FloatParameter) Clone() Parameter { return p.clone() }

func (p *FloatParameter) SerializeValue() string {
	if !p.sampled {
		return ""
	}
	return strconv.FormatFloat(p.value, 'g', -1, 64)
}

func (p *FloatParameter) RestoreValue(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("restore float value: %w", err)
	}
	if math.IsNaN(v) || v < p.lower || v > p.upper {
		return fmt.Errorf("restored float value %v outside [%v, %v]", v, p.lower, p.upper)
	}
	p.value = v
	p.sampled = true
	return nil
}
