// Package acquisition scores candidate configurations against a surrogate
// model and proposes the next ones to evaluate. Scores are oriented so that
// higher is better while the underlying objective is minimized.
package acquisition

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"

	"daidalos/internal/space"
	"daidalos/internal/surrogate"
)

var (
	ErrNotUpdated   = errors.New("acquisition has no surrogate model yet")
	ErrRandRequired = errors.New("random source is required")
)

// Acquisition ranks configurations. Update hands it the freshly fitted
// surrogate and the incumbent (best observed loss); Evaluate scores one
// candidate.
type Acquisition interface {
	Update(model surrogate.Surrogate, incumbent float64)
	Evaluate(config *space.SearchSpace) (float64, error)
}

// Options parameterizes acquisition construction. Zero values select the
// defaults; Rand is only consulted by strategies that draw during scoring.
type Options struct {
	XI    float64
	Beta  float64
	Noise float64
	Rand  *rand.Rand
}

// Factory builds an acquisition from options.
type Factory func(opts Options) (Acquisition, error)

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func predictOne(model surrogate.Surrogate, config *space.SearchSpace) (mean, variance float64, err error) {
	means, variances, err := model.Predict([]*space.SearchSpace{config})
	if err != nil {
		return 0, 0, err
	}
	return means[0], variances[0], nil
}
