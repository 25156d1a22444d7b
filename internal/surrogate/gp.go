package surrogate

import (
	"fmt"
	"math"

	"daidalos/internal/space"
)

// DefaultSigma suits feature vectors on the normalized [0,1] scale.
const DefaultSigma = 1.0

// GP is a Gaussian-process regressor with an RBF kernel over configuration
// feature vectors. Before any observations it predicts the (0, 1) prior.
// Not safe for concurrent use; the optimization loop drives it sequentially.
type GP struct {
	sigma    float64
	features [][]float64
	labels   []float64
}

var _ Surrogate = (*GP)(nil)

func NewGP(sigma float64) (*GP, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("kernel width %v must be positive", sigma)
	}
	return &GP{sigma: sigma}, nil
}

func (g *GP) Observations() int { return len(g.features) }

func (g *GP) kernel(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Exp(-sum / (2 * g.sigma * g.sigma))
}

// Fit replaces the training set with the given configurations and labels.
func (g *GP) Fit(configs []*space.SearchSpace, labels []float64) error {
	if len(configs) != len(labels) {
		return fmt.Errorf("got %d configurations but %d labels", len(configs), len(labels))
	}
	features := make([][]float64, 0, len(configs))
	for i, c := range configs {
		vec, err := configFeatures(c)
		if err != nil {
			return fmt.Errorf("features of configuration %d: %w", i, err)
		}
		if len(features) > 0 && len(vec) != len(features[0]) {
			return fmt.Errorf("configuration %d has %d features, want %d", i, len(vec), len(features[0]))
		}
		features = append(features, vec)
	}
	g.features = features
	g.labels = append([]float64(nil), labels...)
	return nil
}

// Predict returns the posterior mean and variance for each configuration.
// Variance is truncated at zero, where the kernel-sum estimate can dip below
// it for points surrounded by dense observations.
func (g *GP) Predict(configs []*space.SearchSpace) ([]float64, []float64, error) {
	means := make([]float64, len(configs))
	variances := make([]float64, len(configs))
	for i, c := range configs {
		vec, err := configFeatures(c)
		if err != nil {
			return nil, nil, fmt.Errorf("features of configuration %d: %w", i, err)
		}
		if len(g.features) > 0 && len(vec) != len(g.features[0]) {
			return nil, nil, fmt.Errorf("configuration %d has %d features, want %d", i, len(vec), len(g.features[0]))
		}
		means[i], variances[i] = g.predict(vec)
	}
	return means, variances, nil
}

func (g *GP) predict(x []float64) (mean, variance float64) {
	n := len(g.features)
	if n == 0 {
		return 0, 1
	}

	k := make([]float64, n)
	for i, f := range g.features {
		k[i] = g.kernel(x, f)
	}

	var sum float64
	for i := range k {
		sum += k[i] * g.labels[i]
	}
	mean = sum / float64(n)

	variance = 1.0
	for i := range k {
		for j := range k {
			variance -= k[i] * k[j] / float64(n)
		}
	}
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}
