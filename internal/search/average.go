package search

import (
	"errors"
	"fmt"
	"time"
)

// IncrementalAverage keeps a running mean, min and max without storing the
// values, plus an optional stopwatch feeding it.
type IncrementalAverage struct {
	n     int
	mean  float64
	min   float64
	max   float64
	timer time.Time
	now   func() time.Time
}

var ErrTimerNotStarted = errors.New("timer not started")

func (a *IncrementalAverage) Add(v float64) {
	if a.n == 0 {
		a.min, a.max = v, v
	} else {
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
	a.n++
	a.mean += (v - a.mean) / float64(a.n)
}

func (a *IncrementalAverage) N() int        { return a.n }
func (a *IncrementalAverage) Mean() float64 { return a.mean }
func (a *IncrementalAverage) Min() float64  { return a.min }
func (a *IncrementalAverage) Max() float64  { return a.max }

func (a *IncrementalAverage) StartTimer() {
	a.timer = a.clock()
}

func (a *IncrementalAverage) Recording() bool {
	return !a.timer.IsZero()
}

// AddElapsed records the milliseconds since StartTimer and stops the timer.
func (a *IncrementalAverage) AddElapsed() (float64, error) {
	if a.timer.IsZero() {
		return 0, ErrTimerNotStarted
	}
	elapsed := float64(a.clock().Sub(a.timer).Microseconds()) / 1000
	a.timer = time.Time{}
	a.Add(elapsed)
	return elapsed, nil
}

func (a *IncrementalAverage) String() string {
	return fmt.Sprintf("Avg=%.2f, min=%.2f, max=%.2f", a.mean, a.min, a.max)
}

func (a *IncrementalAverage) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}
