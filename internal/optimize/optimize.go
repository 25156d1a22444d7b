// Package optimize drives the Bayesian-optimization loop: an initial random
// design, surrogate refits over the evaluated history with fantasized pending
// points, and acquisition-ranked candidate proposals.
package optimize

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/exp/rand"

	"daidalos/internal/acquisition"
	"daidalos/internal/space"
	"daidalos/internal/surrogate"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultInitialDesignSize = 10
	DefaultNCandidates       = 200
	DefaultPatience          = 50
)

// Phases reported in StepDiagnostics.
const (
	PhaseInitialDesign    = "initial_design"
	PhaseRandomInterleave = "random_interleave"
	PhaseAcquisition      = "acquisition"
	PhaseRandomFallback   = "random_fallback"
)

// Observation pairs an evaluated configuration with its loss.
type Observation struct {
	Config *space.SearchSpace
	Loss   float64
}

// StepDiagnostics records how one proposal was produced.
type StepDiagnostics struct {
	Step        int     `json:"step"`
	Phase       string  `json:"phase"`
	ConfigID    string  `json:"config_id"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Score       float64 `json:"score,omitempty"`
	TrainSize   int     `json:"train_size"`
	PendingSize int     `json:"pending_size"`
}

// SavedObservation is the serialized form of one evaluated configuration.
type SavedObservation struct {
	Values map[string]string `json:"values"`
	Loss   float64           `json:"loss"`
}

// State is a resumable snapshot: the marshaled RNG stream plus the evaluated
// history and pending proposals in serialized-value form.
type State struct {
	RNG       []byte              `json:"rng"`
	Evaluated []SavedObservation  `json:"evaluated,omitempty"`
	Pending   []map[string]string `json:"pending,omitempty"`
	Steps     int                 `json:"steps"`
}

type Config struct {
	Space *space.SearchSpace

	// Model defaults to a fresh GP with surrogate.DefaultSigma.
	Model surrogate.Surrogate

	// AcquisitionTag selects a registered acquisition; empty means
	// acquisition.TagEI. AcqOptions parameterizes it, except that Rand is
	// superseded by the optimizer's own stream.
	AcquisitionTag string
	AcqOptions     acquisition.Options

	// SamplerName selects the candidate sampler; empty means
	// acquisition.SamplerMutation.
	SamplerName string

	InitialDesignSize int
	NCandidates       int
	Patience          int

	// RandomInterleave is the probability of replacing a model-based
	// proposal with a fresh random draw.
	RandomInterleave float64

	Seed uint64
}

// Optimizer proposes configurations one at a time. It owns a PCG random
// stream so a run can be checkpointed and resumed mid-flight; all randomness
// of the loop flows through that single stream.
type Optimizer struct {
	space            *space.SearchSpace
	model            surrogate.Surrogate
	acq              acquisition.Acquisition
	sampler          acquisition.Sampler
	src              *rand.PCGSource
	rng              *rand.Rand
	initialDesign    int
	nCandidates      int
	patience         int
	randomInterleave float64

	trainX  []*space.SearchSpace
	trainY  []float64
	pending []*space.SearchSpace
	steps   int
}

func New(cfg Config) (*Optimizer, error) {
	if cfg.Space == nil {
		return nil, fmt.Errorf("search space is required")
	}
	if cfg.Space.Len() == 0 {
		return nil, fmt.Errorf("search space must not be empty")
	}
	if cfg.RandomInterleave < 0 || cfg.RandomInterleave > 1 {
		return nil, fmt.Errorf("random interleave probability %v must be in [0, 1]", cfg.RandomInterleave)
	}
	if cfg.InitialDesignSize <= 0 {
		cfg.InitialDesignSize = DefaultInitialDesignSize
	}
	if cfg.NCandidates <= 0 {
		cfg.NCandidates = DefaultNCandidates
	}
	if cfg.Patience <= 0 {
		cfg.Patience = DefaultPatience
	}

	src := &rand.PCGSource{}
	src.Seed(cfg.Seed)
	rng := rand.New(src)

	model := cfg.Model
	if model == nil {
		gp, err := surrogate.NewGP(surrogate.DefaultSigma)
		if err != nil {
			return nil, fmt.Errorf("build default surrogate: %w", err)
		}
		model = gp
	}

	tag := cfg.AcquisitionTag
	if tag == "" {
		tag = acquisition.TagEI
	}
	opts := cfg.AcqOptions
	opts.Rand = rng
	acq, err := acquisition.New(tag, opts)
	if err != nil {
		return nil, fmt.Errorf("build acquisition: %w", err)
	}

	name := cfg.SamplerName
	if name == "" {
		name = acquisition.SamplerMutation
	}
	sampler, err := acquisition.NewSampler(name, rng, cfg.Space, acq, cfg.Patience)
	if err != nil {
		return nil, fmt.Errorf("build candidate sampler: %w", err)
	}

	return &Optimizer{
		space:            cfg.Space,
		model:            model,
		acq:              acq,
		sampler:          sampler,
		src:              src,
		rng:              rng,
		initialDesign:    cfg.InitialDesignSize,
		nCandidates:      cfg.NCandidates,
		patience:         cfg.Patience,
		randomInterleave: cfg.RandomInterleave,
	}, nil
}

// LoadResults replaces the optimizer's view of the run: the evaluated history
// and the proposals still being evaluated. Once the evaluated history covers
// the initial design, the surrogate is refit and the acquisition updated.
func (o *Optimizer) LoadResults(evaluated []Observation, pending []*space.SearchSpace) error {
	trainX := make([]*space.SearchSpace, 0, len(evaluated))
	trainY := make([]float64, 0, len(evaluated))
	for i, ob := range evaluated {
		if ob.Config == nil {
			return fmt.Errorf("evaluated observation %d has no configuration", i)
		}
		trainX = append(trainX, ob.Config)
		trainY = append(trainY, ob.Loss)
	}
	for i, p := range pending {
		if p == nil {
			return fmt.Errorf("pending configuration %d is nil", i)
		}
	}
	o.trainX = trainX
	o.trainY = trainY
	o.pending = append([]*space.SearchSpace(nil), pending...)

	if len(o.trainX) >= o.initialDesign {
		return o.updateModel()
	}
	return nil
}

// NextConfig proposes the configuration to evaluate next. During the initial
// design it draws at random; afterwards it asks the candidate sampler for the
// acquisition-best draw, avoiding fingerprints already pending. The returned
// diagnostics describe which path produced the proposal.
func (o *Optimizer) NextConfig(ctx context.Context) (*space.SearchSpace, StepDiagnostics, error) {
	if err := ctx.Err(); err != nil {
		return nil, StepDiagnostics{}, err
	}
	o.steps++
	diag := StepDiagnostics{
		Step:        o.steps,
		TrainSize:   len(o.trainX),
		PendingSize: len(o.pending),
	}

	var (
		config *space.SearchSpace
		err    error
	)
	switch {
	case len(o.trainX) == 0:
		diag.Phase = PhaseInitialDesign
		config, err = o.randomDraw()
	case o.rng.Float64() < o.randomInterleave:
		diag.Phase = PhaseRandomInterleave
		config, err = o.randomDraw()
	case len(o.trainX) < o.initialDesign:
		diag.Phase = PhaseInitialDesign
		config, err = o.randomDraw()
	case len(o.pending) > 0:
		config, diag.Phase, diag.Score, err = o.sampleDeduped()
	default:
		var configs []*space.SearchSpace
		var scores []float64
		configs, scores, err = o.sampler.Sample(o.nCandidates, 1)
		if err == nil {
			diag.Phase = PhaseAcquisition
			config = configs[0]
			diag.Score = scores[0]
		}
	}
	if err != nil {
		return nil, StepDiagnostics{}, err
	}

	diag.ConfigID = strconv.Itoa(len(o.trainX) + len(o.pending) + 1)
	diag.Fingerprint = config.Fingerprint()
	return config, diag, nil
}

// sampleDeduped draws model-based proposals until one's fingerprint is not
// already pending, falling back to a random draw when patience runs out.
func (o *Optimizer) sampleDeduped() (*space.SearchSpace, string, float64, error) {
	seen := make(map[string]struct{}, len(o.pending))
	for _, p := range o.pending {
		seen[p.Fingerprint()] = struct{}{}
	}
	for i := 0; i < o.patience; i++ {
		configs, scores, err := o.sampler.Sample(o.nCandidates, 1)
		if err != nil {
			return nil, "", 0, err
		}
		if _, dup := seen[configs[0].Fingerprint()]; !dup {
			return configs[0], PhaseAcquisition, scores[0], nil
		}
	}
	config, err := o.randomDraw()
	if err != nil {
		return nil, "", 0, err
	}
	return config, PhaseRandomFallback, 0, nil
}

func (o *Optimizer) randomDraw() (*space.SearchSpace, error) {
	config := o.space.Clone()
	if err := config.Sample(o.rng); err != nil {
		return nil, fmt.Errorf("draw random configuration: %w", err)
	}
	return config, nil
}

// updateModel refits the surrogate. While proposals are pending their losses
// are fantasized: the model is fit on the evaluated history alone, predicts a
// mean for each pending configuration, and is refit with those means appended
// as labels. The acquisition and sampler then see the extended history.
func (o *Optimizer) updateModel() error {
	trainX := o.trainX
	trainY := o.trainY
	if len(o.pending) > 0 {
		if err := o.model.Fit(o.trainX, o.trainY); err != nil {
			return fmt.Errorf("fit on evaluated history: %w", err)
		}
		means, _, err := o.model.Predict(o.pending)
		if err != nil {
			return fmt.Errorf("fantasize pending evaluations: %w", err)
		}
		trainX = append(append([]*space.SearchSpace(nil), o.trainX...), o.pending...)
		trainY = append(append([]float64(nil), o.trainY...), means...)
	}
	if err := o.model.Fit(trainX, trainY); err != nil {
		return fmt.Errorf("fit surrogate: %w", err)
	}

	incumbent := trainY[0]
	for _, y := range trainY[1:] {
		if y < incumbent {
			incumbent = y
		}
	}
	o.acq.Update(o.model, incumbent)
	o.sampler.SetIncumbents(trainX)
	return nil
}

// Incumbent returns the best evaluated configuration and its loss.
func (o *Optimizer) Incumbent() (*space.SearchSpace, float64, bool) {
	if len(o.trainX) == 0 {
		return nil, 0, false
	}
	best := 0
	for i, y := range o.trainY {
		if y < o.trainY[best] {
			best = i
		}
	}
	return o.trainX[best], o.trainY[best], true
}

// State snapshots the optimizer for checkpointing.
func (o *Optimizer) State() (State, error) {
	raw, err := o.src.MarshalBinary()
	if err != nil {
		return State{}, fmt.Errorf("marshal rng state: %w", err)
	}
	st := State{RNG: raw, Steps: o.steps}
	for i, c := range o.trainX {
		st.Evaluated = append(st.Evaluated, SavedObservation{Values: c.Serialize(), Loss: o.trainY[i]})
	}
	for _, p := range o.pending {
		st.Pending = append(st.Pending, p.Serialize())
	}
	return st, nil
}

// Restore rebuilds the optimizer from a snapshot taken by State. The RNG
// stream continues exactly where the snapshot left it.
func (o *Optimizer) Restore(st State) error {
	if err := o.src.UnmarshalBinary(st.RNG); err != nil {
		return fmt.Errorf("restore rng state: %w", err)
	}
	evaluated := make([]Observation, 0, len(st.Evaluated))
	for i, saved := range st.Evaluated {
		config := o.space.Clone()
		if err := config.LoadSerialized(saved.Values); err != nil {
			return fmt.Errorf("restore evaluated configuration %d: %w", i, err)
		}
		evaluated = append(evaluated, Observation{Config: config, Loss: saved.Loss})
	}
	pending := make([]*space.SearchSpace, 0, len(st.Pending))
	for i, values := range st.Pending {
		config := o.space.Clone()
		if err := config.LoadSerialized(values); err != nil {
			return fmt.Errorf("restore pending configuration %d: %w", i, err)
		}
		pending = append(pending, config)
	}
	o.steps = st.Steps
	return o.LoadResults(evaluated, pending)
}
