package algorithm

import (
	"context"
	"math"

	"github.com/MaxHalford/eaopt"

	"optiattack/internal/config"
	"optiattack/internal/model"
)

// GenesPerAction is the width of one encoded action: x, y, r, g, b.
const GenesPerAction = 5

const (
	deCrossoverRate = 0.5
	deWeight        = 0.2
)

// DE runs eaopt's differential evolution over a real vector of
// max_action_size encoded actions. Every objective call goes through the
// shared fitness function and archive; once the budget is spent the
// objective answers +Inf without querying the oracle and the run stops at the
// next generation boundary.
type DE struct {
	env *Env
	err error
}

func NewDE(env *Env) *DE {
	return &DE{env: env}
}

func (*DE) Name() string { return "de" }

func (*DE) SetupBeforeSearch(context.Context) error { return nil }

func (d *DE) SearchOnce(ctx context.Context) error {
	env := d.env
	agents := uint(env.Config.PopulationSize)
	if agents < 4 {
		agents = 4
	}
	de, err := eaopt.NewDiffEvo(agents, d.generations(agents), 0, 1, deCrossoverRate, deWeight, false, env.Rand.Derive())
	if err != nil {
		return err
	}
	d.err = nil
	de.GA.EarlyStop = func(*eaopt.GA) bool {
		return d.err != nil || ctx.Err() != nil || !env.Time.ShouldContinueSearch()
	}
	objective := func(x []float64) float64 {
		if d.err != nil || ctx.Err() != nil || !env.Time.ShouldContinueSearch() {
			return math.Inf(1)
		}
		ei, err := env.evaluate(ctx, d.Decode(x), nil)
		if err != nil {
			d.err = err
			return math.Inf(1)
		}
		return ei.Fitness.Value
	}
	nDims := uint(env.Config.MaxActionSize * GenesPerAction)
	if _, _, err := de.Minimize(objective, nDims); err != nil && d.err == nil {
		return err
	}
	if d.err != nil {
		return d.err
	}
	return ctx.Err()
}

func (d *DE) generations(agents uint) uint {
	if d.env.Config.StoppingCriterion == config.StopIndividualEvaluations {
		return uint(math.Ceil(d.env.Config.MaxEvaluations/float64(agents))) + 1
	}
	return 1 << 20
}

// Decode maps each five-gene block onto an action inside the image bounds.
// Genes outside [0,1] are clamped; later actions win location collisions.
func (d *DE) Decode(x []float64) *model.Individual {
	w, h := d.env.Config.ImageWidth, d.env.Config.ImageHeight
	ind := model.NewIndividual()
	ind.Origin = "de"
	for i := 0; i+GenesPerAction <= len(x); i += GenesPerAction {
		ind.AddAction(model.NewAction(
			scaleGene(x[i], w-1),
			scaleGene(x[i+1], h-1),
			scaleGene(x[i+2], 255),
			scaleGene(x[i+3], 255),
			scaleGene(x[i+4], 255),
		), true)
	}
	return ind
}

func scaleGene(g float64, max int) int {
	if math.IsNaN(g) {
		g = 0
	}
	g = math.Min(math.Max(g, 0), 1)
	return int(math.Round(g * float64(max)))
}

func (*DE) AfterSearch(context.Context) error { return nil }
