package acquisition

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Tags of the built-in acquisition strategies.
const (
	TagEI       = "ei"
	TagAEI      = "aei"
	TagUCB      = "ucb"
	TagPI       = "pi"
	TagThompson = "thompson"
)

var (
	ErrFactoryExists   = errors.New("acquisition already registered")
	ErrFactoryNotFound = errors.New("acquisition not found")
)

var acquisitionRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: make(map[string]Factory),
}

func init() {
	seedBuiltins()
}

func seedBuiltins() {
	acquisitionRegistry.m[TagEI] = func(opts Options) (Acquisition, error) {
		return NewExpectedImprovement(opts.XI)
	}
	acquisitionRegistry.m[TagAEI] = func(opts Options) (Acquisition, error) {
		noise := opts.Noise
		if noise == 0 {
			noise = defaultNoise
		}
		return NewAugmentedExpectedImprovement(opts.XI, noise)
	}
	acquisitionRegistry.m[TagUCB] = func(opts Options) (Acquisition, error) {
		beta := opts.Beta
		if beta == 0 {
			beta = defaultBeta
		}
		return NewUpperConfidenceBound(beta)
	}
	acquisitionRegistry.m[TagPI] = func(opts Options) (Acquisition, error) {
		return NewProbabilityOfImprovement(opts.XI)
	}
	acquisitionRegistry.m[TagThompson] = func(opts Options) (Acquisition, error) {
		return NewThompsonSampling(opts.Rand)
	}
}

// Register adds a factory under a new tag.
func Register(tag string, factory Factory) error {
	if tag == "" {
		return errors.New("acquisition tag is required")
	}
	if factory == nil {
		return errors.New("acquisition factory is required")
	}

	acquisitionRegistry.mu.Lock()
	defer acquisitionRegistry.mu.Unlock()

	if _, exists := acquisitionRegistry.m[tag]; exists {
		return fmt.Errorf("%w: %s", ErrFactoryExists, tag)
	}
	acquisitionRegistry.m[tag] = factory
	return nil
}

// Resolve returns the factory registered under the tag.
func Resolve(tag string) (Factory, error) {
	acquisitionRegistry.mu.RLock()
	factory, ok := acquisitionRegistry.m[tag]
	acquisitionRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFactoryNotFound, tag)
	}
	return factory, nil
}

// New resolves a tag and builds the acquisition in one step.
func New(tag string, opts Options) (Acquisition, error) {
	factory, err := Resolve(tag)
	if err != nil {
		return nil, err
	}
	return factory(opts)
}

// List returns the registered tags in sorted order.
func List() []string {
	acquisitionRegistry.mu.RLock()
	defer acquisitionRegistry.mu.RUnlock()

	tags := make([]string, 0, len(acquisitionRegistry.m))
	for tag := range acquisitionRegistry.m {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ValidateBuiltins confirms every built-in tag resolves; callers run it once
// at startup before trusting tag-based selection.
func ValidateBuiltins() error {
	for _, tag := range []string{TagEI, TagAEI, TagUCB, TagPI, TagThompson} {
		if _, err := Resolve(tag); err != nil {
			return err
		}
	}
	return nil
}

func resetRegistryForTests() {
	acquisitionRegistry.mu.Lock()
	defer acquisitionRegistry.mu.Unlock()
	acquisitionRegistry.m = make(map[string]Factory)
	seedBuiltins()
}
