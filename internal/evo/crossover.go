package evo

import (
	"optiattack/internal/model"
	"optiattack/internal/search"
)

// SinglePointCrossover cuts both parents at the same relative position and
// swaps their tails. Parents with fewer than two actions are left alone.
type SinglePointCrossover struct {
	rnd *search.Randomness
}

func NewSinglePointCrossover(rnd *search.Randomness) *SinglePointCrossover {
	return &SinglePointCrossover{rnd: rnd}
}

func (*SinglePointCrossover) Name() string {
	return "single_point"
}

func (c *SinglePointCrossover) Apply(a, b *model.Individual) {
	if a.Size() < 2 || b.Size() < 2 {
		return
	}
	split := c.rnd.NextFloat()
	p1 := CutPoint(a.Size(), split)
	p2 := CutPoint(b.Size(), split)
	childA := a.Crossover(b, p1, p2)
	childB := b.Crossover(a, p2, p1)
	a.ReplaceActions(childA.Actions())
	b.ReplaceActions(childB.Actions())
}

// CutPoint maps split in [0,1) to a cut in [1,n-1], so each side keeps at
// least one action of its own.
func CutPoint(n int, split float64) int {
	return int(float64(n-1)*split) + 1
}
