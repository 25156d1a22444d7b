package grammar

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"golang.org/x/exp/rand"
)

const arithRules = `
S -> S '+' T | T
T -> '1' | '2'
`

func mustGrammar(t *testing.T, rules string) *Grammar {
	t.Helper()
	g, err := NewGrammar(rules)
	if err != nil {
		t.Fatalf("build grammar: %v", err)
	}
	return g
}

func TestNewGrammarDerivedSets(t *testing.T) {
	g := mustGrammar(t, arithRules)

	if g.Start() != "S" {
		t.Fatalf("start symbol: got=%q want=%q", g.Start(), "S")
	}
	if got, want := g.Nonterminals(), []string{"S", "T"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("nonterminals: got=%v want=%v", got, want)
	}
	if got, want := g.Terminals(), []string{"+", "1", "2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("terminals: got=%v want=%v", got, want)
	}
	if got, want := g.SwappableNonterminals(), []string{"S", "T"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("swappable: got=%v want=%v", got, want)
	}
	if prods := g.Productions("S"); len(prods) != 2 {
		t.Fatalf("S productions: got=%d want=2", len(prods))
	}
}

func TestNewGrammarRejectsOverlap(t *testing.T) {
	_, err := NewGrammar("S -> 'S' | 'a'")
	if err == nil || !strings.Contains(err.Error(), "same terminal and nonterminal") {
		t.Fatalf("expected overlap error, got %v", err)
	}
}

func TestNewGrammarRejectsMissingProduction(t *testing.T) {
	_, err := NewGrammar("S -> T 'a'")
	if err == nil || !strings.Contains(err.Error(), "no production for nonterminal T") {
		t.Fatalf("expected missing production error, got %v", err)
	}
}

func TestNewGrammarRejectsMalformedRule(t *testing.T) {
	if _, err := NewGrammar("S is 'a'"); err == nil {
		t.Fatal("expected error for rule without arrow")
	}
	if _, err := NewGrammar("S -> 'a"); err == nil {
		t.Fatal("expected error for unterminated terminal")
	}
}

func TestSampleRequiresRand(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.SetConvergent()
	if _, err := g.Sample(nil, 1, 0.1); !errors.Is(err, ErrRandRequired) {
		t.Fatalf("expected ErrRandRequired, got %v", err)
	}
}

func TestSampleRejectsModeConflict(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.convergent = true
	g.depthConstrained = true
	if _, err := g.Sample(rand.New(rand.NewSource(1)), 1, 0.1); !errors.Is(err, ErrModeConflict) {
		t.Fatalf("expected ErrModeConflict, got %v", err)
	}
}

func TestSampleRejectsMissingConstraints(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.depthConstrained = true
	if _, err := g.Sample(rand.New(rand.NewSource(1)), 1, 0.1); !errors.Is(err, ErrNoDepthConstraints) {
		t.Fatalf("expected ErrNoDepthConstraints, got %v", err)
	}
}

func TestConvergentSampleProducesValidTrees(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.SetConvergent()
	rng := rand.New(rand.NewSource(7))

	shape := regexp.MustCompile(`^\(S .*\)$`)
	allowed := map[string]struct{}{
		"S": {}, "T": {}, "+": {}, "1": {}, "2": {},
	}

	trees, err := g.Sample(rng, 50, 0.1)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for _, tree := range trees {
		if !shape.MatchString(tree) {
			t.Fatalf("tree %q does not match expected shape", tree)
		}
		for _, tok := range strings.Fields(tree) {
			tok = strings.TrimPrefix(tok, "(")
			tok = strings.TrimRight(tok, ")")
			if tok == "" {
				continue
			}
			if _, ok := allowed[tok]; !ok {
				t.Fatalf("tree %q contains unexpected token %q", tree, tok)
			}
		}
		if _, err := ParseTree(tree); err != nil {
			t.Fatalf("tree %q does not parse: %v", tree, err)
		}
	}
}

func TestConvergentSampleStateDoesNotLeakAcrossCalls(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.SetConvergent()

	first, err := g.Sample(rand.New(rand.NewSource(99)), 20, 0.2)
	if err != nil {
		t.Fatalf("first sample: %v", err)
	}
	second, err := g.Sample(rand.New(rand.NewSource(99)), 20, 0.2)
	if err != nil {
		t.Fatalf("second sample: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical seeds produced different outputs\nfirst=%v\nsecond=%v", first, second)
	}
}

func TestDepthConstrainedSampleHonorsBounds(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.SetDepthConstraints(map[string]int{"S": 2})
	rng := rand.New(rand.NewSource(11))

	trees, err := g.Sample(rng, 100, 0)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	for _, tree := range trees {
		depths := g.ComputeDepthInformation(tree)
		for i, tok := range strings.Split(tree, " ") {
			if strings.HasPrefix(tok, "(S") && depths[i] > 2 {
				t.Fatalf("tree %q exceeds S depth bound at token %d", tree, i)
			}
		}
		if !g.CheckDepthConstraints(tree) {
			t.Fatalf("tree %q fails constraint check", tree)
		}
	}
}

func TestDepthConstrainedSampleExhaustion(t *testing.T) {
	g := mustGrammar(t, "S -> S 'a'")
	g.SetDepthConstraints(map[string]int{"S": 1})

	_, err := g.Sample(rand.New(rand.NewSource(3)), 1, 0)
	if !errors.Is(err, ErrDerivationExhausted) {
		t.Fatalf("expected ErrDerivationExhausted, got %v", err)
	}
}

func TestSampleFromSeedsDepthInformation(t *testing.T) {
	g := mustGrammar(t, arithRules)
	g.SetDepthConstraints(map[string]int{"S": 2})
	rng := rand.New(rand.NewSource(5))

	// One S scope is already open, so replacements may only nest one more.
	trees, err := g.SampleFrom(rng, 50, 0, "S", map[string]int{"S": 1})
	if err != nil {
		t.Fatalf("sample from: %v", err)
	}
	for _, tree := range trees {
		depths := g.ComputeDepthInformation(tree)
		for i, tok := range strings.Split(tree, " ") {
			if strings.HasPrefix(tok, "(S") && depths[i] > 1 {
				t.Fatalf("tree %q opens too many S scopes for its context", tree)
			}
		}
	}
}

func TestGeneratorEnumeratesWithinDepth(t *testing.T) {
	g := mustGrammar(t, arithRules)

	if got := g.Generator(100, 3); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("depth 3: got=%v want=[1 2]", got)
	}

	want := []string{"1 + 1", "1 + 2", "2 + 1", "2 + 2", "1", "2"}
	if got := g.Generator(100, 4); !reflect.DeepEqual(got, want) {
		t.Fatalf("depth 4: got=%v want=%v", got, want)
	}

	if got := g.Generator(3, 4); !reflect.DeepEqual(got, want[:3]) {
		t.Fatalf("n cap: got=%v want=%v", got, want[:3])
	}
	if got := g.Generator(0, 4); got != nil {
		t.Fatalf("n=0: got=%v want=nil", got)
	}
}

func TestSamplerRestrictedRespectsLengthWindow(t *testing.T) {
	g := mustGrammar(t, arithRules)
	rng := rand.New(rand.NewSource(17))

	trees, err := g.SamplerRestricted(rng, 6, 5, 0.1, 1)
	if err != nil {
		t.Fatalf("sampler restricted: %v", err)
	}
	if len(trees) != 6 {
		t.Fatalf("tree count: got=%d want=6", len(trees))
	}
	seen := make(map[string]struct{})
	for _, tree := range trees {
		if _, dup := seen[tree]; dup {
			t.Fatalf("duplicate tree %q", tree)
		}
		seen[tree] = struct{}{}
		if n := g.countTerminals(tree); n < 1 || n > 5 {
			t.Fatalf("tree %q has %d terminals, outside [1,5]", tree, n)
		}
	}
}

func TestSampleMaxMinPicksDeclaredExtremes(t *testing.T) {
	g := mustGrammar(t, "R -> 'a' | B 'c'\nB -> 'b'")

	if got := g.SampleMaxMin(false); got != "(R a)" {
		t.Fatalf("smallest: got=%q want=%q", got, "(R a)")
	}
	if got := g.SampleMaxMin(true); got != "(R (B b) c)" {
		t.Fatalf("largest: got=%q want=%q", got, "(R (B b) c)")
	}
}

func TestWeightedChoiceDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	counts := make([]int, 2)
	for i := 0; i < 2000; i++ {
		counts[weightedChoice(rng, []float64{0.9, 0.1})]++
	}
	if counts[0] < 1600 || counts[1] < 100 {
		t.Fatalf("weighted choice skew off: counts=%v", counts)
	}
}
