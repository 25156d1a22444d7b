// Package surrogate models configuration performance from evaluated history.
package surrogate

import (
	"errors"

	"daidalos/internal/space"
)

// Surrogate scores configurations from previously observed labels. Fit
// replaces the training set; Predict returns per-configuration posterior
// means and variances.
type Surrogate interface {
	Fit(configs []*space.SearchSpace, labels []float64) error
	Predict(configs []*space.SearchSpace) (means, variances []float64, err error)
}

// configFeatures turns a configuration into the feature vector the model
// operates on: the normalized numerical values in canonical order, then two
// squashed structural descriptors (depth, terminal count) per graph
// parameter.
func configFeatures(s *space.SearchSpace) ([]float64, error) {
	vec, err := s.NormalizedVector()
	if err != nil {
		return nil, err
	}
	for _, gp := range s.Graphs() {
		tree, err := gp.Tree()
		if err != nil {
			return nil, err
		}
		d := float64(tree.Depth())
		tc := float64(tree.TerminalCount())
		vec = append(vec, d/(1+d), tc/(1+tc))
	}
	if len(vec) == 0 {
		return nil, errors.New("configuration yields no features")
	}
	return vec, nil
}
