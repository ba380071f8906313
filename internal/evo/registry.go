package evo

import (
	"errors"
	"fmt"
	"sort"

	"optiattack/internal/config"
	"optiattack/internal/search"
)

var ErrOperatorNotFound = errors.New("operator not found")

// Deps is everything an operator factory may need.
type Deps struct {
	Config config.Config
	Rand   *search.Randomness
	Sigmas SigmaSource
	Images ImageSource
}

func (d Deps) bounds() Bounds {
	return Bounds{Width: d.Config.ImageWidth, Height: d.Config.ImageHeight}
}

func (d Deps) samplerConfig() SamplerConfig {
	return SamplerConfig{
		Bounds:        d.bounds(),
		MinActionSize: d.Config.MinActionSize,
		MaxActionSize: d.Config.MaxActionSize,
	}
}

type (
	SamplerFactory   func(Deps) (Sampler, error)
	MutatorFactory   func(Deps) (Mutator, error)
	CrossoverFactory func(Deps) (Crossover, error)
)

// operatorRegistry is filled once by init and read-only afterwards.
var operatorRegistry struct {
	samplers   map[string]SamplerFactory
	mutators   map[string]MutatorFactory
	crossovers map[string]CrossoverFactory
}

func init() {
	operatorRegistry.samplers = map[string]SamplerFactory{
		string(config.SamplerRandom): func(d Deps) (Sampler, error) {
			return NewRandomSampler(d.samplerConfig(), d.Rand), nil
		},
		string(config.SamplerGaussian): func(d Deps) (Sampler, error) {
			if d.Images == nil {
				return nil, fmt.Errorf("gaussian sampler requires an image source")
			}
			return NewGaussianSampler(d.samplerConfig(), d.Rand, d.Images, d.Config.MutationSigma), nil
		},
	}
	operatorRegistry.mutators = map[string]MutatorFactory{
		string(config.MutatorStandard): func(d Deps) (Mutator, error) {
			if d.Sigmas == nil {
				return nil, fmt.Errorf("standard mutator requires a sigma source")
			}
			return NewStandardMutator(d.bounds(), d.Rand, d.Sigmas), nil
		},
	}
	operatorRegistry.crossovers = map[string]CrossoverFactory{
		string(config.CrossoverSinglePoint): func(d Deps) (Crossover, error) {
			return NewSinglePointCrossover(d.Rand), nil
		},
	}
}

func NewSampler(name string, d Deps) (Sampler, error) {
	f, ok := operatorRegistry.samplers[name]
	if !ok {
		return nil, fmt.Errorf("%w: sampler %s", ErrOperatorNotFound, name)
	}
	return f(d)
}

func NewMutator(name string, d Deps) (Mutator, error) {
	f, ok := operatorRegistry.mutators[name]
	if !ok {
		return nil, fmt.Errorf("%w: mutator %s", ErrOperatorNotFound, name)
	}
	return f(d)
}

func NewCrossover(name string, d Deps) (Crossover, error) {
	f, ok := operatorRegistry.crossovers[name]
	if !ok {
		return nil, fmt.Errorf("%w: crossover %s", ErrOperatorNotFound, name)
	}
	return f(d)
}

// Catalog names every operator a config may select, each list sorted.
type Catalog struct {
	Samplers   []string
	Mutators   []string
	Crossovers []string
	Selectors  []string
}

func Operators() Catalog {
	return Catalog{
		Samplers:   sortedKeys(operatorRegistry.samplers),
		Mutators:   sortedKeys(operatorRegistry.mutators),
		Crossovers: sortedKeys(operatorRegistry.crossovers),
		Selectors:  []string{string(config.SelectionRoulette), string(config.SelectionTournament)},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Toolkit bundles the operators selected by a config.
type Toolkit struct {
	Sampler   Sampler
	Mutator   Mutator
	Crossover Crossover
}

func NewToolkit(d Deps) (Toolkit, error) {
	sampler, err := NewSampler(string(d.Config.Sampler), d)
	if err != nil {
		return Toolkit{}, err
	}
	mutator, err := NewMutator(string(d.Config.Mutator), d)
	if err != nil {
		return Toolkit{}, err
	}
	crossover, err := NewCrossover(string(d.Config.Crossover), d)
	if err != nil {
		return Toolkit{}, err
	}
	return Toolkit{Sampler: sampler, Mutator: mutator, Crossover: crossover}, nil
}
