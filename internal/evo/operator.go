package evo

import (
	"optiattack/internal/imaging"
	"optiattack/internal/model"
)

// Sampler draws a brand-new individual.
type Sampler interface {
	Name() string
	Sample() *model.Individual
}

// Mutator returns a perturbed copy of ind; ind itself is never modified.
type Mutator interface {
	Name() string
	Mutate(ind *model.Individual) *model.Individual
}

// Crossover recombines two parents in place.
type Crossover interface {
	Name() string
	Apply(a, b *model.Individual)
}

// SigmaSource supplies the current mutation strengths, normally the APC.
type SigmaSource interface {
	PixelSigma() float64
	LocationSigma() float64
}

// ImageSource supplies the image whose pixels Gaussian sampling perturbs.
type ImageSource interface {
	CurrentImage() *imaging.Image
}

type Bounds struct {
	Width  int
	Height int
}

func (b Bounds) Pixels() int {
	return b.Width * b.Height
}

func (b Bounds) Clamp(loc model.Location) model.Location {
	return model.Location{X: clampInt(loc.X, 0, b.Width-1), Y: clampInt(loc.Y, 0, b.Height-1)}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
