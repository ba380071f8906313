package search

import (
	"math/rand"
	"sync"
	"time"
)

// Randomness is the single seeded source every operator draws from, so a run
// is reproducible from its seed.
type Randomness struct {
	mu   sync.Mutex
	rng  *rand.Rand
	seed int64
}

// NewRandomness seeds the source. A negative seed selects the current time.
func NewRandomness(seed int64) *Randomness {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Randomness{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

func (r *Randomness) Seed() int64 {
	return r.seed
}

// NextInt draws uniformly from the closed range [min,max].
func (r *Randomness) NextInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rng.Intn(max-min+1)
}

// Intn draws uniformly from [0,n). n must be positive.
func (r *Randomness) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// NextFloat draws uniformly from [0,1).
func (r *Randomness) NextFloat() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *Randomness) NextFloatRange(min, max float64) float64 {
	return min + (max-min)*r.NextFloat()
}

// NextBool returns true with probability p.
func (r *Randomness) NextBool(p float64) bool {
	return r.NextFloat() < p
}

func (r *Randomness) Gaussian(mean, std float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return mean + r.rng.NormFloat64()*std
}

// Choice picks an index in [0,n) with probability proportional to weights.
// Nil, mismatched or all-zero weights fall back to a uniform draw.
func (r *Randomness) Choice(n int, weights []float64) int {
	if n <= 0 {
		return -1
	}
	total := 0.0
	if len(weights) == n {
		for _, w := range weights {
			if w > 0 {
				total += w
			}
		}
	}
	if total <= 0 {
		return r.Intn(n)
	}
	target := r.NextFloat() * total
	acc := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		if target < acc {
			return i
		}
	}
	for i := n - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return n - 1
}

// Derive returns an independent generator seeded from this one, for libraries
// that need their own *rand.Rand.
func (r *Randomness) Derive() *rand.Rand {
	r.mu.Lock()
	defer r.mu.Unlock()
	return rand.New(rand.NewSource(r.rng.Int63()))
}
