// Package param implements the hyperparameter primitives composed by a search
// space: numeric ranges, categorical choices, constants and grammar-derived
// trees, all behind one capability interface.
package param

import (
	"errors"

	"golang.org/x/exp/rand"
)

// Kind tags the concrete parameter variant.
type Kind string

const (
	KindFloat       Kind = "float"
	KindInteger     Kind = "integer"
	KindCategorical Kind = "categorical"
	KindConstant    Kind = "constant"
	KindGraph       Kind = "graph"
)

// Mutation strategies understood by Mutate. An empty strategy selects
// StrategyLocalSearch.
const (
	StrategySimple      = "simple"
	StrategyLocalSearch = "local_search"
)

var (
	ErrRandRequired         = errors.New("random source is required")
	ErrNoValue              = errors.New("parameter has no value")
	ErrUnchangedChild       = errors.New("mutation produced an unchanged value")
	ErrCrossoverUnsupported = errors.New("crossover is not supported")
	ErrNoAlternativeChoice  = errors.New("no alternative choice available")
	ErrNoCrossoverPoint     = errors.New("no usable crossover point")
	ErrImmutable            = errors.New("parameter is immutable")
	ErrUnknownStrategy      = errors.New("unknown mutation strategy")
)

// Parameter is the capability surface shared by every variant. Sample draws a
// fresh value in place; Mutate and Crossover leave the receiver untouched and
// return derived copies. ID is the identity tag refreshed on every draw, used
// by callers to fingerprint configurations.
type Parameter interface {
	Kind() Kind
	Sample(rng *rand.Rand) error
	Mutate(rng *rand.Rand, strategy string) (Parameter, error)
	Crossover(rng *rand.Rand, other Parameter) (Parameter, Parameter, error)
	ID() string
	Clone() Parameter
	SerializeValue() string
	RestoreValue(s string) error
}

// Numerical is implemented by variants that expose a normalized [0,1] view of
// their value, the scale on which local-search mutation and surrogate feature
// vectors operate.
type Numerical interface {
	Parameter
	Normalized() (float64, error)
	SetNormalized(v float64) error
}

// freshID tags a newly drawn value. The tag distinguishes otherwise-equal
// configurations, so it only has to be unlikely to repeat within a run.
func freshID(rng *rand.Rand) string {
	const digits = "0123456789abcdef"
	var b [16]byte
	for i := range b {
		b[i] = digits[rng.Intn(len(digits))]
	}
	return string(b[:])
}
