package evo

import (
	"errors"
	"math"
	"testing"

	"optiattack/internal/config"
	"optiattack/internal/model"
	"optiattack/internal/search"
)

func population(values ...float64) []*model.EvaluatedIndividual {
	out := make([]*model.EvaluatedIndividual, 0, len(values))
	for i, v := range values {
		out = append(out, model.NewEvaluatedIndividual(
			model.NewIndividual(model.NewAction(i, 0, 0, 0, 0)),
			model.FitnessValue{Value: v},
		))
	}
	return out
}

func TestRouletteSelectorNeverPicksSelf(t *testing.T) {
	rnd := search.NewRandomness(5)
	pop := population(0.1, 0.5, 0.9)
	for i := 0; i < 300; i++ {
		self := i % 3
		got, err := RouletteSelector{}.PickParent(rnd, pop, self)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if got == self {
			t.Fatalf("selector returned self index %d", self)
		}
	}
}

func TestRouletteSelectorFavorsLowerFitness(t *testing.T) {
	rnd := search.NewRandomness(11)
	pop := population(5, 0, 5)
	counts := make([]int, 3)
	for i := 0; i < 2000; i++ {
		got, err := RouletteSelector{}.PickParent(rnd, pop, -1)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		counts[got]++
	}
	if counts[1] < counts[0] || counts[1] < counts[2] {
		t.Fatalf("expected the fittest to dominate, got %v", counts)
	}
}

func TestRouletteWeightIgnoresUnevaluated(t *testing.T) {
	if RouletteWeight(math.Inf(1)) != 0 {
		t.Fatal("expected zero weight for infinite fitness")
	}
	if math.Abs(RouletteWeight(1)-1) > 1e-12 {
		t.Fatalf("unexpected weight for fitness 1: %f", RouletteWeight(1))
	}
}

func TestRouletteSelectorFallsBackWhenAllUnevaluated(t *testing.T) {
	rnd := search.NewRandomness(2)
	pop := population(math.Inf(1), math.Inf(1))
	got, err := RouletteSelector{}.PickParent(rnd, pop, 0)
	if err != nil {
		t.Fatalf("pick parent: %v", err)
	}
	if got != 1 {
		t.Fatalf("unexpected fallback pick: got=%d want=1", got)
	}
}

func TestTournamentSelectorPrefersLowerFitness(t *testing.T) {
	rnd := search.NewRandomness(9)
	pop := population(0.9, 0.2, 0.8, 0.7)
	wins := 0
	for i := 0; i < 200; i++ {
		got, err := TournamentSelector{TournamentSize: 3}.PickParent(rnd, pop, 0)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if got == 0 {
			t.Fatal("tournament returned self")
		}
		if got == 1 {
			wins++
		}
	}
	if wins < 100 {
		t.Fatalf("expected the fittest to win most tournaments, got %d/200", wins)
	}
}

func TestSelectorValidation(t *testing.T) {
	if _, err := (RouletteSelector{}).PickParent(nil, population(1), 0); err == nil {
		t.Fatal("expected nil random source error")
	}
	if _, err := (TournamentSelector{}).PickParent(search.NewRandomness(1), nil, 0); err == nil {
		t.Fatal("expected empty population error")
	}
}

func TestFittest(t *testing.T) {
	if got := Fittest(population(0.4, 0.1, 0.3)); got != 1 {
		t.Fatalf("unexpected fittest: %d", got)
	}
	if Fittest(nil) != -1 {
		t.Fatal("expected -1 for empty population")
	}
}

func TestNewSelectorFollowsConfig(t *testing.T) {
	cfg := config.Default()
	sel, err := NewSelector(cfg)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	if sel.Name() != "roulette" {
		t.Fatalf("expected roulette by default, got %s", sel.Name())
	}

	cfg.Selection = config.SelectionTournament
	cfg.TournamentSize = 5
	sel, err = NewSelector(cfg)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	tournament, ok := sel.(TournamentSelector)
	if !ok || tournament.TournamentSize != 5 {
		t.Fatalf("expected a size 5 tournament, got %#v", sel)
	}

	cfg.Selection = "rank"
	if _, err := NewSelector(cfg); !errors.Is(err, ErrOperatorNotFound) {
		t.Fatalf("expected ErrOperatorNotFound, got %v", err)
	}
}
