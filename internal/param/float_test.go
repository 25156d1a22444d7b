package param

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"golang.org/x/exp/rand"
)

func TestNewFloatValidation(t *testing.T) {
	if _, err := NewFloat(2, 1, false); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
	if _, err := NewFloat(1, 1, false); err == nil {
		t.Fatal("expected error for empty range")
	}
	if _, err := NewFloat(0, 1, true); err == nil {
		t.Fatal("expected error for log scale with zero lower bound")
	}
}

func TestFloatSampleStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	lin, err := NewFloat(-2, 3, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	logp, err := NewFloat(1e-4, 10, true)
	if err != nil {
		t.Fatalf("new log float: %v", err)
	}
	for i := 0; i < 200; i++ {
		if err := lin.Sample(rng); err != nil {
			t.Fatalf("sample: %v", err)
		}
		if v := lin.Value(); v < -2 || v > 3 {
			t.Fatalf("linear sample %v outside [-2, 3]", v)
		}
		if err := logp.Sample(rng); err != nil {
			t.Fatalf("sample log: %v", err)
		}
		if v := logp.Value(); v < 1e-4 || v > 10 {
			t.Fatalf("log sample %v outside [1e-4, 10]", v)
		}
	}
}

func TestFloatNormalizedRoundTrip(t *testing.T) {
	p, err := NewFloat(-5, 5, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	for _, v := range []float64{-5, -1.25, 0, 2.5, 5} {
		if err := p.RestoreValue(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			t.Fatalf("restore %v: %v", v, err)
		}
		n, err := p.Normalized()
		if err != nil {
			t.Fatalf("normalized: %v", err)
		}
		if n < 0 || n > 1 {
			t.Fatalf("normalized %v outside [0,1]", n)
		}
		if err := p.SetNormalized(n); err != nil {
			t.Fatalf("set normalized: %v", err)
		}
		if got := p.Value(); math.Abs(got-v) > 1e-9 {
			t.Fatalf("round trip: got=%v want=%v", got, v)
		}
	}
}

func TestFloatNormalizedNeedsValue(t *testing.T) {
	p, err := NewFloat(0, 1, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	if _, err := p.Normalized(); !errors.Is(err, ErrNoValue) {
		t.Fatalf("expected ErrNoValue, got %v", err)
	}
	if _, err := p.Mutate(rand.New(rand.NewSource(1)), ""); !errors.Is(err, ErrNoValue) {
		t.Fatalf("expected ErrNoValue from mutate, got %v", err)
	}
}

func TestFloatMutateLocalSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	p, err := NewFloat(0, 10, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	if err := p.Sample(rng); err != nil {
		t.Fatalf("sample: %v", err)
	}

	before := p.Value()
	for i := 0; i < 200; i++ {
		child, err := p.Mutate(rng, StrategyLocalSearch)
		if errors.Is(err, ErrUnchangedChild) {
			continue
		}
		if err != nil {
			t.Fatalf("mutate: %v", err)
		}
		f := child.(*FloatParameter)
		if f.Value() == before {
			t.Fatal("child reported success with an unchanged value")
		}
		if v := f.Value(); v < 0 || v > 10 {
			t.Fatalf("child value %v outside bounds", v)
		}
		if p.Value() != before {
			t.Fatal("mutation modified the receiver")
		}
		if f.ID() == p.ID() {
			t.Fatal("child kept the parent identity tag")
		}
	}
}

func TestFloatMutateSimpleResamples(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	p, err := NewFloat(0, 1, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	if err := p.Sample(rng); err != nil {
		t.Fatalf("sample: %v", err)
	}
	child, err := p.Mutate(rng, StrategySimple)
	if err != nil && !errors.Is(err, ErrUnchangedChild) {
		t.Fatalf("mutate: %v", err)
	}
	if err == nil && child.(*FloatParameter).Value() == p.Value() {
		t.Fatal("simple mutation returned an equal child without error")
	}
}

func TestFloatMutateUnknownStrategy(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p, err := NewFloat(0, 1, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	if err := p.Sample(rng); err != nil {
		t.Fatalf("sample: %v", err)
	}
	if _, err := p.Mutate(rng, "annealing"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestFloatCrossoverUnsupported(t *testing.T) {
	p, err := NewFloat(0, 1, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	if _, _, err := p.Crossover(rand.New(rand.NewSource(1)), p.Clone()); !errors.Is(err, ErrCrossoverUnsupported) {
		t.Fatalf("expected ErrCrossoverUnsupported, got %v", err)
	}
}

func TestFloatRestoreValueValidates(t *testing.T) {
	p, err := NewFloat(0, 1, false)
	if err != nil {
		t.Fatalf("new float: %v", err)
	}
	if err := p.RestoreValue("0.25"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if p.Value() != 0.25 {
		t.Fatalf("restored value: got=%v want=0.25", p.Value())
	}
	if err := p.RestoreValue("7"); err == nil {
		t.Fatal("expected error for out-of-bounds restore")
	}
	if err := p.RestoreValue("not-a-number"); err == nil {
		t.Fatal("expected error for unparseable restore")
	}
}
