// Package space composes named parameters into whole configurations and
// lifts their per-parameter sample/mutate/crossover operations onto the
// configuration level.
package space

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"

	"daidalos/internal/param"
)

const (
	StrategySMBO   = "smbo"
	StrategySimple = "simple"
)

var (
	ErrEmptySpace        = errors.New("search space has no parameters")
	ErrPatienceExhausted = errors.New("patience exhausted")
	ErrShapeMismatch     = errors.New("search spaces do not share a shape")
	ErrUnknownStrategy   = errors.New("unknown strategy")
)

// Named pairs a parameter with its name for SearchSpace construction.
type Named struct {
	Name  string
	Param param.Parameter
}

// SearchSpace is an ordered name-to-parameter mapping. Insertion order is
// stable and defines the canonical vector ordering for mutation, crossover
// and feature extraction.
type SearchSpace struct {
	names  []string
	params map[string]param.Parameter
}

func New(entries ...Named) (*SearchSpace, error) {
	s := &SearchSpace{params: make(map[string]param.Parameter, len(entries))}
	for _, e := range entries {
		if err := s.add(e.Name, e.Param); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SearchSpace) add(name string, p param.Parameter) error {
	if name == "" {
		return errors.New("parameter name must not be empty")
	}
	if p == nil {
		return fmt.Errorf("parameter %s is nil", name)
	}
	if _, dup := s.params[name]; dup {
		return fmt.Errorf("duplicate parameter name %s", name)
	}
	s.names = append(s.names, name)
	s.params[name] = p
	return nil
}

// AddConstant appends a pinned value under a positional name.
func (s *SearchSpace) AddConstant(value string) error {
	return s.add(strconv.Itoa(len(s.names)), param.NewConstant(value))
}

func (s *SearchSpace) Len() int { return len(s.names) }

func (s *SearchSpace) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *SearchSpace) Param(name string) (param.Parameter, bool) {
	p, ok := s.params[name]
	return p, ok
}

// Graphs returns the graph-valued parameters in canonical order.
func (s *SearchSpace) Graphs() []*param.GraphParameter {
	var out []*param.GraphParameter
	for _, name := range s.names {
		if g, ok := s.params[name].(*param.GraphParameter); ok {
			out = append(out, g)
		}
	}
	return out
}

// Numericals returns the parameters exposing a normalized view, in canonical
// order.
func (s *SearchSpace) Numericals() []param.Numerical {
	var out []param.Numerical
	for _, name := range s.names {
		if n, ok := s.params[name].(param.Numerical); ok {
			out = append(out, n)
		}
	}
	return out
}

// Sample draws every parameter independently, in place.
func (s *SearchSpace) Sample(rng *rand.Rand) error {
	if len(s.names) == 0 {
		return ErrEmptySpace
	}
	for _, name := range s.names {
		if err := s.params[name].Sample(rng); err != nil {
			return fmt.Errorf("sample %s: %w", name, err)
		}
	}
	return nil
}

// Mutate picks one parameter index uniformly and retries mutating that same
// parameter until it succeeds or patience runs out. The returned space holds
// deep copies of every parameter, so derived configurations never alias the
// receiver's state.
func (s *SearchSpace) Mutate(rng *rand.Rand, patience int, strategy string) (*SearchSpace, error) {
	if len(s.names) == 0 {
		return nil, ErrEmptySpace
	}
	if strategy == "" {
		strategy = StrategySMBO
	}
	if strategy != StrategySMBO {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: mutate space", param.ErrRandRequired)
	}

	name := s.names[rng.Intn(len(s.names))]
	var lastErr error
	for i := 0; i < patience; i++ {
		child, err := s.params[name].Mutate(rng, "")
		if err != nil {
			lastErr = err
			continue
		}
		out := s.Clone()
		out.params[name] = child
		return out, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("mutate %s: %w after %d attempts: %v", name, ErrPatienceExhausted, patience, lastErr)
	}
	return nil, fmt.Errorf("mutate %s: %w after %d attempts", name, ErrPatienceExhausted, patience)
}

// Crossover walks both spaces in canonical order and, with the given
// probability per parameter, attempts that parameter's own crossover.
// Parameters without a crossover keep both parents' values; other failures
// are retried up to patience times before falling back to the parents.
func (s *SearchSpace) Crossover(rng *rand.Rand, other *SearchSpace, probability float64, patience int, strategy string) (*SearchSpace, *SearchSpace, error) {
	if other == nil || len(s.names) != len(other.names) {
		return nil, nil, ErrShapeMismatch
	}
	for i, name := range s.names {
		if other.names[i] != name {
			return nil, nil, fmt.Errorf("%w: parameter %d is %s vs %s", ErrShapeMismatch, i, name, other.names[i])
		}
	}
	if strategy == "" {
		strategy = StrategySimple
	}
	if strategy != StrategySimple {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if rng == nil {
		return nil, nil, fmt.Errorf("%w: crossover space", param.ErrRandRequired)
	}

	first, second := s.Clone(), other.Clone()
	for _, name := range s.names {
		if rng.Float64() >= probability {
			continue
		}
		for i := 0; i < patience; i++ {
			c1, c2, err := s.params[name].Crossover(rng, other.params[name])
			if errors.Is(err, param.ErrCrossoverUnsupported) {
				break
			}
			if err != nil {
				continue
			}
			first.params[name] = c1
			second.params[name] = c2
			break
		}
	}
	return first, second, nil
}

// Dims counts the parameters contributing to the surrogate feature vector.
type Dims struct {
	Continuous  int
	Categorical int
}

// VectorialDim reports how many continuous and categorical parameters are
// present; ok is false when neither group has members.
func (s *SearchSpace) VectorialDim() (Dims, bool) {
	var d Dims
	for _, name := range s.names {
		switch s.params[name].Kind() {
		case param.KindFloat, param.KindInteger:
			d.Continuous++
		case param.KindCategorical:
			d.Categorical++
		}
	}
	return d, d.Continuous > 0 || d.Categorical > 0
}

// IDs returns every parameter's identity tag in canonical order.
func (s *SearchSpace) IDs() []string {
	out := make([]string, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.params[name].ID())
	}
	return out
}

// Fingerprint joins the identity tags into the dedup key used for pending
// evaluations.
func (s *SearchSpace) Fingerprint() string {
	return strings.Join(s.IDs(), "-")
}

// NormalizedVector collects the numerical parameters' [0,1] values in
// canonical order.
func (s *SearchSpace) NormalizedVector() ([]float64, error) {
	nums := s.Numericals()
	out := make([]float64, 0, len(nums))
	for _, n := range nums {
		v, err := n.Normalized()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Clone deep-copies the space and every parameter in it.
func (s *SearchSpace) Clone() *SearchSpace {
	out := &SearchSpace{
		names:  append([]string(nil), s.names...),
		params: make(map[string]param.Parameter, len(s.params)),
	}
	for name, p := range s.params {
		out.params[name] = p.Clone()
	}
	return out
}

// Serialize captures every parameter's value in string form, keyed by name.
func (s *SearchSpace) Serialize() map[string]string {
	out := make(map[string]string, len(s.names))
	for _, name := range s.names {
		out[name] = s.params[name].SerializeValue()
	}
	return out
}

// LoadSerialized restores every parameter's value from a Serialize snapshot.
func (s *SearchSpace) LoadSerialized(values map[string]string) error {
	for _, name := range s.names {
		v, ok := values[name]
		if !ok {
			return fmt.Errorf("missing value for parameter %s", name)
		}
		if err := s.params[name].RestoreValue(v); err != nil {
			return fmt.Errorf("restore %s: %w", name, err)
		}
	}
	return nil
}
