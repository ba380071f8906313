package algorithm

import (
	"context"
)

// MIO balances exploration and exploitation: with the APC random sampling
// probability (always, while the archive is empty) it samples a new
// individual, otherwise it mutates the archive's least-sampled individual.
type MIO struct {
	env *Env
}

func NewMIO(env *Env) *MIO {
	return &MIO{env: env}
}

func (*MIO) Name() string { return "mio" }

func (*MIO) SetupBeforeSearch(context.Context) error { return nil }

func (m *MIO) SearchOnce(ctx context.Context) error {
	env := m.env
	if env.Archive.Size() == 0 || env.Rand.NextBool(env.APC.RandomSamplingProbability()) {
		_, err := env.evaluate(ctx, env.Operators.Sampler.Sample(), nil)
		return err
	}
	parent := env.Archive.SampleIndividual()
	mutant := env.Operators.Mutator.Mutate(parent.Individual)
	_, err := env.evaluate(ctx, mutant, parent)
	return err
}

func (*MIO) AfterSearch(context.Context) error { return nil }

// Random samples a fresh individual every iteration.
type Random struct {
	env *Env
}

func NewRandom(env *Env) *Random {
	return &Random{env: env}
}

func (*Random) Name() string { return "random" }

func (*Random) SetupBeforeSearch(context.Context) error { return nil }

func (r *Random) SearchOnce(ctx context.Context) error {
	_, err := r.env.evaluate(ctx, r.env.Operators.Sampler.Sample(), nil)
	return err
}

func (*Random) AfterSearch(context.Context) error { return nil }
