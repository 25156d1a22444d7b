package acquisition

import (
	"testing"

	"golang.org/x/exp/rand"

	"daidalos/internal/param"
	"daidalos/internal/space"
	"daidalos/internal/surrogate"
)

// positionAcq scores a configuration by its normalized position, making the
// expected ranking externally checkable.
type positionAcq struct{}

func (positionAcq) Update(model surrogate.Surrogate, incumbent float64) {}

func (positionAcq) Evaluate(config *space.SearchSpace) (float64, error) {
	v, err := config.NormalizedVector()
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func samplerSpace(t *testing.T) *space.SearchSpace {
	t.Helper()
	f, err := param.NewFloat(0, 1, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	s, err := space.New(space.Named{Name: "x", Param: f})
	if err != nil {
		t.Fatalf("new space: %v", err)
	}
	return s
}

func floatOf(t *testing.T, s *space.SearchSpace) *param.FloatParameter {
	t.Helper()
	p, ok := s.Param("x")
	if !ok {
		t.Fatal("missing parameter x")
	}
	return p.(*param.FloatParameter)
}

func TestSamplerConstructorValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := samplerSpace(t)

	if _, err := NewRandomSampler(nil, base, positionAcq{}); err == nil {
		t.Fatal("expected error for nil rand")
	}
	if _, err := NewRandomSampler(rng, nil, positionAcq{}); err == nil {
		t.Fatal("expected error for nil base space")
	}
	if _, err := NewRandomSampler(rng, base, nil); err == nil {
		t.Fatal("expected error for nil acquisition")
	}
	if _, err := NewMutationSampler(nil, base, positionAcq{}, 0); err == nil {
		t.Fatal("expected error for nil rand")
	}
	if _, err := NewMutationSampler(rng, nil, positionAcq{}, 0); err == nil {
		t.Fatal("expected error for nil base space")
	}
	if _, err := NewMutationSampler(rng, base, nil, 0); err == nil {
		t.Fatal("expected error for nil acquisition")
	}
}

func TestNewSamplerByName(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := samplerSpace(t)

	s, err := NewSampler(SamplerRandom, rng, base, positionAcq{}, 0)
	if err != nil {
		t.Fatalf("new random: %v", err)
	}
	if _, ok := s.(*RandomSampler); !ok {
		t.Fatalf("got %T, want *RandomSampler", s)
	}
	s, err = NewSampler(SamplerMutation, rng, base, positionAcq{}, 0)
	if err != nil {
		t.Fatalf("new mutation: %v", err)
	}
	if _, ok := s.(*MutationSampler); !ok {
		t.Fatalf("got %T, want *MutationSampler", s)
	}
	if _, err := NewSampler("evolution", rng, base, positionAcq{}, 0); err == nil {
		t.Fatal("expected error for unknown sampler name")
	}
}

func TestSampleArgValidation(t *testing.T) {
	s, err := NewRandomSampler(rand.New(rand.NewSource(1)), samplerSpace(t), positionAcq{})
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	for _, tc := range []struct{ nCandidates, nReturn int }{
		{0, 1},
		{-1, 1},
		{5, 0},
		{5, 6},
	} {
		if _, _, err := s.Sample(tc.nCandidates, tc.nReturn); err == nil {
			t.Fatalf("expected error for Sample(%d, %d)", tc.nCandidates, tc.nReturn)
		}
	}
}

func TestRandomSamplerReturnsRankedCandidates(t *testing.T) {
	base := samplerSpace(t)
	s, err := NewRandomSampler(rand.New(rand.NewSource(42)), base, positionAcq{})
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}

	configs, scores, err := s.Sample(30, 5)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(configs) != 5 || len(scores) != 5 {
		t.Fatalf("got %d configs and %d scores, want 5 each", len(configs), len(scores))
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1] {
			t.Fatalf("scores not descending at %d: %v", i, scores)
		}
	}
	for i, c := range configs {
		if c == base {
			t.Fatalf("candidate %d aliases the base space", i)
		}
		got, err := positionAcq{}.Evaluate(c)
		if err != nil {
			t.Fatalf("re-evaluate candidate %d: %v", i, err)
		}
		if got != scores[i] {
			t.Fatalf("score %d does not match its config: got=%v want=%v", i, scores[i], got)
		}
	}
	if floatOf(t, base).HasValue() {
		t.Fatal("sampling must not touch the base space")
	}
}

func TestMutationSamplerFallsBackToFreshDraws(t *testing.T) {
	s, err := NewMutationSampler(rand.New(rand.NewSource(3)), samplerSpace(t), positionAcq{}, 0)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}

	configs, _, err := s.Sample(8, 8)
	if err != nil {
		t.Fatalf("sample without incumbents: %v", err)
	}
	for i, c := range configs {
		if !floatOf(t, c).HasValue() {
			t.Fatalf("candidate %d has no value", i)
		}
	}
}

func TestMutationSamplerDerivesFromIncumbents(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	base := samplerSpace(t)
	s, err := NewMutationSampler(rng, base, positionAcq{}, 0)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}

	incumbent := base.Clone()
	if err := incumbent.Sample(rng); err != nil {
		t.Fatalf("sample incumbent: %v", err)
	}
	before, err := incumbent.NormalizedVector()
	if err != nil {
		t.Fatalf("incumbent vector: %v", err)
	}
	s.SetIncumbents([]*space.SearchSpace{incumbent})

	configs, _, err := s.Sample(6, 6)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for i, c := range configs {
		if c == incumbent {
			t.Fatalf("candidate %d aliases the incumbent", i)
		}
		got, err := c.NormalizedVector()
		if err != nil {
			t.Fatalf("candidate %d vector: %v", i, err)
		}
		if got[0] == before[0] {
			t.Fatalf("candidate %d kept the incumbent value %v", i, got[0])
		}
	}
	after, err := incumbent.NormalizedVector()
	if err != nil {
		t.Fatalf("incumbent vector: %v", err)
	}
	if after[0] != before[0] {
		t.Fatalf("mutation must not touch the incumbent: before=%v after=%v", before[0], after[0])
	}
}
