package evo

import (
	"fmt"
	"math"

	"optiattack/internal/config"
	"optiattack/internal/model"
	"optiattack/internal/search"
)

// Selector chooses a mate for the individual at index self. Fitness is
// lower-is-better throughout.
type Selector interface {
	Name() string
	PickParent(rnd *search.Randomness, population []*model.EvaluatedIndividual, self int) (int, error)
}

// NewSelector builds the parent selector named by cfg.Selection.
func NewSelector(cfg config.Config) (Selector, error) {
	switch cfg.Selection {
	case config.SelectionRoulette, "":
		return RouletteSelector{}, nil
	case config.SelectionTournament:
		return TournamentSelector{TournamentSize: cfg.TournamentSize}, nil
	default:
		return nil, fmt.Errorf("%w: selection %s", ErrOperatorNotFound, cfg.Selection)
	}
}

// RouletteSelector weights each candidate by exp(1-f) and never returns self
// when another candidate exists.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) PickParent(rnd *search.Randomness, population []*model.EvaluatedIndividual, self int) (int, error) {
	if rnd == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return 0, fmt.Errorf("empty population")
	}
	if len(population) == 1 {
		return 0, nil
	}
	weights := make([]float64, len(population))
	for i, ind := range population {
		if i == self {
			continue
		}
		weights[i] = RouletteWeight(ind.Fitness.Value)
	}
	if !hasPositive(weights) {
		idx := rnd.Intn(len(population) - 1)
		if self >= 0 && idx >= self {
			idx++
		}
		return idx, nil
	}
	return rnd.Choice(len(population), weights), nil
}

// RouletteWeight is exp(1-f); unevaluated (infinite) fitness weighs nothing.
func RouletteWeight(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return math.Exp(1 - f)
}

func hasPositive(weights []float64) bool {
	for _, w := range weights {
		if w > 0 {
			return true
		}
	}
	return false
}

// TournamentSelector samples TournamentSize candidates other than self and
// keeps the fittest.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rnd *search.Randomness, population []*model.EvaluatedIndividual, self int) (int, error) {
	if rnd == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return 0, fmt.Errorf("empty population")
	}
	if len(population) == 1 {
		return 0, nil
	}
	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}
	draw := func() int {
		idx := rnd.Intn(len(population) - 1)
		if self >= 0 && idx >= self {
			idx++
		}
		return idx
	}
	best := draw()
	for i := 1; i < size; i++ {
		candidate := draw()
		if population[candidate].Fitness.Value < population[best].Fitness.Value {
			best = candidate
		}
	}
	return best, nil
}

// Fittest returns the index with the lowest fitness, or -1 when empty.
func Fittest(population []*model.EvaluatedIndividual) int {
	best := -1
	for i, ind := range population {
		if ind == nil {
			continue
		}
		if best < 0 || ind.Fitness.Value < population[best].Fitness.Value {
			best = i
		}
	}
	return best
}
