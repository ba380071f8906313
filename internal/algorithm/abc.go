package algorithm

import (
	"context"
	"math"

	"optiattack/internal/model"
)

// ABC is an artificial bee colony. Employed bees refine every food source,
// onlookers refine sources chosen in proportion to max(1-f, 0), and a scout
// replaces the most exhausted source once its trial count reaches the limit.
type ABC struct {
	env     *Env
	sources []*model.EvaluatedIndividual
	trials  []int
	limit   int
}

func NewABC(env *Env) *ABC {
	return &ABC{env: env, limit: env.Config.EffectiveABCLimit()}
}

func (*ABC) Name() string { return "abc" }

func (a *ABC) SetupBeforeSearch(ctx context.Context) error {
	pop, err := seedPopulation(ctx, a.env, a.env.Config.PopulationSize)
	a.sources = pop
	a.trials = make([]int, len(pop))
	return err
}

func (a *ABC) SearchOnce(ctx context.Context) error {
	env := a.env
	if len(a.sources) == 0 {
		_, err := env.evaluate(ctx, env.Operators.Sampler.Sample(), nil)
		return err
	}

	for i := range a.sources {
		if !env.Time.ShouldContinueSearch() {
			return nil
		}
		if err := a.exploit(ctx, i); err != nil {
			return err
		}
	}

	for n := 0; n < len(a.sources); n++ {
		if !env.Time.ShouldContinueSearch() {
			return nil
		}
		if err := a.exploit(ctx, env.Rand.Choice(len(a.sources), a.onlookerWeights())); err != nil {
			return err
		}
	}

	if !env.Time.ShouldContinueSearch() {
		return nil
	}
	return a.scout(ctx)
}

// exploit mutates source i and keeps the neighbour when it is strictly better.
func (a *ABC) exploit(ctx context.Context, i int) error {
	env := a.env
	source := a.sources[i]
	neighbour, err := env.evaluate(ctx, env.Operators.Mutator.Mutate(source.Individual), nil)
	if err != nil {
		return err
	}
	if neighbour.Fitness.Value < source.Fitness.Value {
		a.sources[i] = neighbour
		a.trials[i] = 0
		return nil
	}
	a.trials[i]++
	return nil
}

func (a *ABC) onlookerWeights() []float64 {
	weights := make([]float64, len(a.sources))
	for i, s := range a.sources {
		weights[i] = OnlookerWeight(s.Fitness.Value)
	}
	return weights
}

// OnlookerWeight is max(1-f, 0); unevaluated sources weigh nothing.
func OnlookerWeight(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return math.Max(1-f, 0)
}

func (a *ABC) scout(ctx context.Context) error {
	worst := -1
	for i, t := range a.trials {
		if t >= a.limit && (worst < 0 || t > a.trials[worst]) {
			worst = i
		}
	}
	if worst < 0 {
		return nil
	}
	env := a.env
	fresh, err := env.evaluate(ctx, env.Operators.Sampler.Sample(), nil)
	if err != nil {
		return err
	}
	env.logger().Debug("scout replaced exhausted source", "index", worst, "trials", a.trials[worst])
	a.sources[worst] = fresh
	a.trials[worst] = 0
	return nil
}

func (*ABC) AfterSearch(context.Context) error { return nil }
