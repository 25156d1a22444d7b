package acquisition

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/rand"

	"daidalos/internal/space"
)

// defaultMutationPatience bounds the retries of one incumbent mutation before
// the sampler falls back to a fresh random draw.
const defaultMutationPatience = 50

// Names of the built-in candidate samplers.
const (
	SamplerRandom   = "random"
	SamplerMutation = "mutation"
)

// Sampler proposes scored candidate configurations. SetIncumbents hands it
// the evaluated configurations after each surrogate refit; Sample draws
// nCandidates, scores them and returns the best nReturn with their scores.
type Sampler interface {
	SetIncumbents(configs []*space.SearchSpace)
	Sample(nCandidates, nReturn int) ([]*space.SearchSpace, []float64, error)
}

// NewSampler builds the named candidate sampler over the base space.
func NewSampler(name string, rng *rand.Rand, base *space.SearchSpace, acq Acquisition, patience int) (Sampler, error) {
	switch name {
	case SamplerRandom:
		return NewRandomSampler(rng, base, acq)
	case SamplerMutation:
		return NewMutationSampler(rng, base, acq, patience)
	default:
		return nil, fmt.Errorf("unknown candidate sampler %q", name)
	}
}

// RandomSampler proposes fresh draws from the base space.
type RandomSampler struct {
	rng  *rand.Rand
	base *space.SearchSpace
	acq  Acquisition
}

func NewRandomSampler(rng *rand.Rand, base *space.SearchSpace, acq Acquisition) (*RandomSampler, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: random sampler", ErrRandRequired)
	}
	if base == nil {
		return nil, errors.New("random sampler needs a base space")
	}
	if acq == nil {
		return nil, errors.New("random sampler needs an acquisition")
	}
	return &RandomSampler{rng: rng, base: base, acq: acq}, nil
}

func (s *RandomSampler) SetIncumbents(configs []*space.SearchSpace) {}

func (s *RandomSampler) Sample(nCandidates, nReturn int) ([]*space.SearchSpace, []float64, error) {
	if err := checkSampleArgs(nCandidates, nReturn); err != nil {
		return nil, nil, err
	}
	candidates := make([]*space.SearchSpace, 0, nCandidates)
	for i := 0; i < nCandidates; i++ {
		c := s.base.Clone()
		if err := c.Sample(s.rng); err != nil {
			return nil, nil, fmt.Errorf("draw candidate %d: %w", i, err)
		}
		candidates = append(candidates, c)
	}
	return rank(s.acq, candidates, nReturn)
}

// MutationSampler proposes patience-bounded mutations of the evaluated
// incumbents, falling back to fresh draws while no incumbents exist or a
// mutation keeps failing.
type MutationSampler struct {
	rng        *rand.Rand
	base       *space.SearchSpace
	acq        Acquisition
	patience   int
	incumbents []*space.SearchSpace
}

func NewMutationSampler(rng *rand.Rand, base *space.SearchSpace, acq Acquisition, patience int) (*MutationSampler, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: mutation sampler", ErrRandRequired)
	}
	if base == nil {
		return nil, errors.New("mutation sampler needs a base space")
	}
	if acq == nil {
		return nil, errors.New("mutation sampler needs an acquisition")
	}
	if patience <= 0 {
		patience = defaultMutationPatience
	}
	return &MutationSampler{rng: rng, base: base, acq: acq, patience: patience}, nil
}

func (s *MutationSampler) SetIncumbents(configs []*space.SearchSpace) {
	s.incumbents = append(s.incumbents[:0], configs...)
}

func (s *MutationSampler) Sample(nCandidates, nReturn int) ([]*space.SearchSpace, []float64, error) {
	if err := checkSampleArgs(nCandidates, nReturn); err != nil {
		return nil, nil, err
	}
	candidates := make([]*space.SearchSpace, 0, nCandidates)
	for i := 0; i < nCandidates; i++ {
		c, err := s.next()
		if err != nil {
			return nil, nil, fmt.Errorf("draw candidate %d: %w", i, err)
		}
		candidates = append(candidates, c)
	}
	return rank(s.acq, candidates, nReturn)
}

func (s *MutationSampler) next() (*space.SearchSpace, error) {
	if len(s.incumbents) > 0 {
		parent := s.incumbents[s.rng.Intn(len(s.incumbents))]
		child, err := parent.Mutate(s.rng, s.patience, "")
		if err == nil {
			return child, nil
		}
	}
	c := s.base.Clone()
	if err := c.Sample(s.rng); err != nil {
		return nil, err
	}
	return c, nil
}

func checkSampleArgs(nCandidates, nReturn int) error {
	if nCandidates <= 0 {
		return fmt.Errorf("candidate count %d must be positive", nCandidates)
	}
	if nReturn <= 0 || nReturn > nCandidates {
		return fmt.Errorf("cannot return %d of %d candidates", nReturn, nCandidates)
	}
	return nil
}

func rank(acq Acquisition, candidates []*space.SearchSpace, nReturn int) ([]*space.SearchSpace, []float64, error) {
	type scored struct {
		config *space.SearchSpace
		score  float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		v, err := acq.Evaluate(c)
		if err != nil {
			return nil, nil, err
		}
		ranked = append(ranked, scored{config: c, score: v})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	configs := make([]*space.SearchSpace, 0, nReturn)
	scores := make([]float64, 0, nReturn)
	for _, r := range ranked[:nReturn] {
		configs = append(configs, r.config)
		scores = append(scores, r.score)
	}
	return configs, scores, nil
}
