package evo

import (
	"math"

	"optiattack/internal/model"
	"optiattack/internal/search"
)

// StandardMutator moves one randomly chosen action: its color by Gaussian
// noise with the APC pixel sigma and its location by Gaussian noise with the
// APC location sigma. A mutated action that lands on another action's
// location replaces it.
type StandardMutator struct {
	bounds Bounds
	rnd    *search.Randomness
	sigmas SigmaSource
}

func NewStandardMutator(bounds Bounds, rnd *search.Randomness, sigmas SigmaSource) *StandardMutator {
	return &StandardMutator{bounds: bounds, rnd: rnd, sigmas: sigmas}
}

func (*StandardMutator) Name() string {
	return "standard"
}

func (m *StandardMutator) Mutate(ind *model.Individual) *model.Individual {
	if ind.Size() == 0 {
		return ind
	}
	out := ind.Copy()
	i := m.rnd.Intn(out.Size())
	original := out.Action(i)

	pixelSigma := m.sigmas.PixelSigma()
	locationSigma := m.sigmas.LocationSigma()

	mutated := original.Derive()
	mutated.Color = model.Color{
		R: m.jitter(original.Color.R, pixelSigma),
		G: m.jitter(original.Color.G, pixelSigma),
		B: m.jitter(original.Color.B, pixelSigma),
	}.Clamp()
	mutated.Location = m.bounds.Clamp(model.Location{
		X: m.jitter(original.Location.X, locationSigma),
		Y: m.jitter(original.Location.Y, locationSigma),
	})

	out.SetAction(i, mutated)
	out.Origin = "mutator:standard"
	return out
}

func (m *StandardMutator) jitter(v int, sigma float64) int {
	return int(math.Round(float64(v) + m.rnd.Gaussian(0, sigma)))
}
