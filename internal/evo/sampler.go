package evo

import (
	"fmt"
	"math"

	"optiattack/internal/model"
	"optiattack/internal/search"
)

// CollisionPolicy decides what a sampler does when a drawn action lands on a
// location the individual already holds.
type CollisionPolicy int

const (
	// RejectAndRetry discards the draw and tries again until k distinct
	// locations are placed.
	RejectAndRetry CollisionPolicy = iota
	// ReplaceOnCollision overwrites the earlier action; the individual may end
	// up with fewer than k actions.
	ReplaceOnCollision
)

func (p CollisionPolicy) String() string {
	switch p {
	case RejectAndRetry:
		return "reject"
	case ReplaceOnCollision:
		return "replace"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

type SamplerConfig struct {
	Bounds        Bounds
	MinActionSize int
	MaxActionSize int
	Policy        CollisionPolicy
}

func (c SamplerConfig) drawSize(rnd *search.Randomness) int {
	k := rnd.NextInt(c.MinActionSize, c.MaxActionSize)
	if pixels := c.Bounds.Pixels(); k > pixels {
		k = pixels
	}
	return k
}

func (c SamplerConfig) fill(rnd *search.Randomness, origin string, draw func() model.Action) *model.Individual {
	k := c.drawSize(rnd)
	ind := model.NewIndividual()
	ind.Origin = origin
	if c.Policy == ReplaceOnCollision {
		for i := 0; i < k; i++ {
			ind.AddAction(draw(), true)
		}
		return ind
	}
	for ind.Size() < k {
		ind.AddAction(draw(), false)
	}
	return ind
}

func (c SamplerConfig) randomLocation(rnd *search.Randomness) model.Location {
	return model.Location{X: rnd.Intn(c.Bounds.Width), Y: rnd.Intn(c.Bounds.Height)}
}

// RandomSampler places actions at uniform locations with uniform colors.
type RandomSampler struct {
	cfg SamplerConfig
	rnd *search.Randomness
}

func NewRandomSampler(cfg SamplerConfig, rnd *search.Randomness) *RandomSampler {
	return &RandomSampler{cfg: cfg, rnd: rnd}
}

func (*RandomSampler) Name() string {
	return "random"
}

func (s *RandomSampler) Sample() *model.Individual {
	return s.cfg.fill(s.rnd, "sampler:random", func() model.Action {
		loc := s.cfg.randomLocation(s.rnd)
		return model.NewAction(loc.X, loc.Y, s.rnd.NextInt(0, 255), s.rnd.NextInt(0, 255), s.rnd.NextInt(0, 255))
	})
}

// GaussianSampler places actions at uniform locations and perturbs the pixel
// already there with N(0, sigma) per channel.
type GaussianSampler struct {
	cfg    SamplerConfig
	rnd    *search.Randomness
	source ImageSource
	sigma  float64
}

func NewGaussianSampler(cfg SamplerConfig, rnd *search.Randomness, source ImageSource, sigma float64) *GaussianSampler {
	return &GaussianSampler{cfg: cfg, rnd: rnd, source: source, sigma: sigma}
}

func (*GaussianSampler) Name() string {
	return "gaussian"
}

func (s *GaussianSampler) Sample() *model.Individual {
	img := s.source.CurrentImage()
	return s.cfg.fill(s.rnd, "sampler:gaussian", func() model.Action {
		loc := s.cfg.randomLocation(s.rnd)
		c := img.At(loc)
		return model.NewAction(loc.X, loc.Y,
			s.perturb(c.R),
			s.perturb(c.G),
			s.perturb(c.B),
		)
	})
}

func (s *GaussianSampler) perturb(channel int) int {
	return int(math.Round(float64(channel) + s.rnd.Gaussian(0, s.sigma)))
}
