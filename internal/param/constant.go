package param

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// ConstantParameter pins a value that takes part in configurations but never
// in search. Sampling is a no-op and mutation always fails, which callers
// treat as one more exhausted retry.
type ConstantParameter struct {
	value string
}

func NewConstant(value string) *ConstantParameter {
	return &ConstantParameter{value: value}
}

func (p *ConstantParameter) Kind() Kind { return KindConstant }

func (p *ConstantParameter) Value() string { return p.value }

func (p *ConstantParameter) ID() string { return p.value }

func (p *ConstantParameter) Sample(rng *rand.Rand) error { return nil }

func (p *ConstantParameter) Mutate(rng *rand.Rand, strategy string) (Parameter, error) {
	return nil, fmt.Errorf("%w: constant", ErrImmutable)
}

func (p *ConstantParameter) Crossover(rng *rand.Rand, other Parameter) (Parameter, Parameter, error) {
	return nil, nil, fmt.Errorf("%w: constant", ErrCrossoverUnsupported)
}

func (p *ConstantParameter) Clone() Parameter {
	c := *p
	return &c
}

func (p *ConstantParameter) SerializeValue() string { return p.value }

func (p *ConstantParameter) RestoreValue(s string) error {
	if s != p.value {
		return fmt.Errorf("restored constant value %q does not match %q", s, p.value)
	}
	return nil
}
