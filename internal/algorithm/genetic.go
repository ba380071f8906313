package algorithm

import (
	"context"

	"optiattack/internal/evo"
	"optiattack/internal/model"
)

// Genetic is a generational GA: every member mates with a partner chosen by
// the selector, both children are mutated and the better one takes the slot.
type Genetic struct {
	env        *Env
	selector   evo.Selector
	population []*model.EvaluatedIndividual
	generation int
}

func NewGenetic(env *Env, selector evo.Selector) *Genetic {
	if selector == nil {
		selector = evo.RouletteSelector{}
	}
	return &Genetic{env: env, selector: selector}
}

func (*Genetic) Name() string { return "genetic" }

func (g *Genetic) Population() []*model.EvaluatedIndividual {
	return append([]*model.EvaluatedIndividual(nil), g.population...)
}

func (g *Genetic) SetupBeforeSearch(ctx context.Context) error {
	pop, err := seedPopulation(ctx, g.env, g.env.Config.PopulationSize)
	g.population = pop
	return err
}

// seedPopulation samples and evaluates up to size individuals, stopping early
// once the budget is spent.
func seedPopulation(ctx context.Context, env *Env, size int) ([]*model.EvaluatedIndividual, error) {
	pop := make([]*model.EvaluatedIndividual, 0, size)
	for len(pop) < size && env.Time.ShouldContinueSearch() {
		ei, err := env.evaluate(ctx, env.Operators.Sampler.Sample(), nil)
		if err != nil {
			return pop, err
		}
		pop = append(pop, ei)
	}
	return pop, nil
}

func (g *Genetic) SearchOnce(ctx context.Context) error {
	env := g.env
	if len(g.population) < 2 {
		// Budget ran out while seeding or the population is degenerate;
		// fall back to plain sampling.
		_, err := env.evaluate(ctx, env.Operators.Sampler.Sample(), nil)
		return err
	}
	for i := range g.population {
		if !env.Time.ShouldContinueSearch() {
			return nil
		}
		j, err := g.selector.PickParent(env.Rand, g.population, i)
		if err != nil {
			return err
		}
		a := g.population[i].Individual.Copy()
		b := g.population[j].Individual.Copy()
		env.Operators.Crossover.Apply(a, b)
		a = env.Operators.Mutator.Mutate(a)
		b = env.Operators.Mutator.Mutate(b)

		best, err := env.Evaluator.CalculateFitness(ctx, a)
		if err != nil {
			return err
		}
		if env.Time.ShouldContinueSearch() {
			other, err := env.Evaluator.CalculateFitness(ctx, b)
			if err != nil {
				return err
			}
			if other.Fitness.Value < best.Fitness.Value {
				best = other
			}
		}
		g.population[i] = best
		env.Archive.AddIfNeeded(best, nil)
	}
	g.generation++
	env.logger().Debug("generation complete", "generation", g.generation, "best", g.population[evo.Fittest(g.population)].Fitness.Value)
	return nil
}

func (*Genetic) AfterSearch(context.Context) error { return nil }
