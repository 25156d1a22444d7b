package acquisition

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"daidalos/internal/space"
	"daidalos/internal/surrogate"
)

const (
	defaultBeta  = 2.0
	defaultNoise = 0.01
)

// ExpectedImprovement scores by how much a candidate is expected to undercut
// the incumbent loss, with xi controlling the exploration margin.
type ExpectedImprovement struct {
	xi        float64
	model     surrogate.Surrogate
	incumbent float64
}

func NewExpectedImprovement(xi float64) (*ExpectedImprovement, error) {
	if xi < 0 {
		return nil, fmt.Errorf("exploration margin %v must not be negative", xi)
	}
	return &ExpectedImprovement{xi: xi}, nil
}

func (a *ExpectedImprovement) Update(model surrogate.Surrogate, incumbent float64) {
	a.model = model
	a.incumbent = incumbent
}

func (a *ExpectedImprovement) Evaluate(config *space.SearchSpace) (float64, error) {
	if a.model == nil {
		return 0, ErrNotUpdated
	}
	mean, variance, err := predictOne(a.model, config)
	if err != nil {
		return 0, err
	}
	improvement := a.incumbent - mean - a.xi
	sd := math.Sqrt(variance)
	if sd == 0 {
		return math.Max(improvement, 0), nil
	}
	z := improvement / sd
	return improvement*normalCDF(z) + sd*normalPDF(z), nil
}

// AugmentedExpectedImprovement discounts expected improvement by the share of
// predictive spread attributable to observation noise.
type AugmentedExpectedImprovement struct {
	ei    ExpectedImprovement
	noise float64
}

func NewAugmentedExpectedImprovement(xi, noise float64) (*AugmentedExpectedImprovement, error) {
	ei, err := NewExpectedImprovement(xi)
	if err != nil {
		return nil, err
	}
	if noise <= 0 {
		return nil, fmt.Errorf("noise level %v must be positive", noise)
	}
	return &AugmentedExpectedImprovement{ei: *ei, noise: noise}, nil
}

func (a *AugmentedExpectedImprovement) Update(model surrogate.Surrogate, incumbent float64) {
	a.ei.Update(model, incumbent)
}

func (a *AugmentedExpectedImprovement) Evaluate(config *space.SearchSpace) (float64, error) {
	if a.ei.model == nil {
		return 0, ErrNotUpdated
	}
	base, err := a.ei.Evaluate(config)
	if err != nil {
		return 0, err
	}
	_, variance, err := predictOne(a.ei.model, config)
	if err != nil {
		return 0, err
	}
	return base * (1 - a.noise/math.Sqrt(variance+a.noise*a.noise)), nil
}

// UpperConfidenceBound trades the predicted loss against its uncertainty:
// score = beta*sd - mean.
type UpperConfidenceBound struct {
	beta  float64
	model surrogate.Surrogate
}

func NewUpperConfidenceBound(beta float64) (*UpperConfidenceBound, error) {
	if beta <= 0 {
		return nil, fmt.Errorf("confidence multiplier %v must be positive", beta)
	}
	return &UpperConfidenceBound{beta: beta}, nil
}

func (a *UpperConfidenceBound) Update(model surrogate.Surrogate, incumbent float64) {
	a.model = model
}

func (a *UpperConfidenceBound) Evaluate(config *space.SearchSpace) (float64, error) {
	if a.model == nil {
		return 0, ErrNotUpdated
	}
	mean, variance, err := predictOne(a.model, config)
	if err != nil {
		return 0, err
	}
	return a.beta*math.Sqrt(variance) - mean, nil
}

// ProbabilityOfImprovement scores by the posterior probability of undercutting
// the incumbent.
type ProbabilityOfImprovement struct {
	xi        float64
	model     surrogate.Surrogate
	incumbent float64
}

func NewProbabilityOfImprovement(xi float64) (*ProbabilityOfImprovement, error) {
	if xi < 0 {
		return nil, fmt.Errorf("exploration margin %v must not be negative", xi)
	}
	return &ProbabilityOfImprovement{xi: xi}, nil
}

func (a *ProbabilityOfImprovement) Update(model surrogate.Surrogate, incumbent float64) {
	a.model = model
	a.incumbent = incumbent
}

func (a *ProbabilityOfImprovement) Evaluate(config *space.SearchSpace) (float64, error) {
	if a.model == nil {
		return 0, ErrNotUpdated
	}
	mean, variance, err := predictOne(a.model, config)
	if err != nil {
		return 0, err
	}
	improvement := a.incumbent - mean - a.xi
	sd := math.Sqrt(variance)
	if sd == 0 {
		if improvement > 0 {
			return 1, nil
		}
		return 0, nil
	}
	return normalCDF(improvement / sd), nil
}

// ThompsonSampling scores by the negation of one posterior draw, so lower
// sampled losses rank higher.
type ThompsonSampling struct {
	rng   *rand.Rand
	model surrogate.Surrogate
}

func NewThompsonSampling(rng *rand.Rand) (*ThompsonSampling, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: thompson sampling", ErrRandRequired)
	}
	return &ThompsonSampling{rng: rng}, nil
}

func (a *ThompsonSampling) Update(model surrogate.Surrogate, incumbent float64) {
	a.model = model
}

func (a *ThompsonSampling) Evaluate(config *space.SearchSpace) (float64, error) {
	if a.model == nil {
		return 0, ErrNotUpdated
	}
	mean, variance, err := predictOne(a.model, config)
	if err != nil {
		return 0, err
	}
	return -(mean + math.Sqrt(variance)*a.rng.NormFloat64()), nil
}
