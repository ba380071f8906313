package search

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"optiattack/internal/config"
)

const rollingWindow = 100

var ErrUnsupportedCriterion = errors.New("unsupported stopping criterion")

// Listener is notified inline, on the search goroutine, after every counted
// evaluation. Implementations must return quickly.
type Listener interface {
	NewActionEvaluated()
}

type ListenerFunc func()

func (f ListenerFunc) NewActionEvaluated() { f() }

type TimeControllerConfig struct {
	Criterion      config.StoppingCriterion
	MaxEvaluations float64
	Phase          *PhaseController
	Now            func() time.Time
}

// TimeController owns budget accounting for one run: evaluation counts or
// elapsed time, the current best fitness and the rolling timing window.
type TimeController struct {
	mu sync.Mutex

	criterion      config.StoppingCriterion
	maxEvaluations float64
	phase          *PhaseController
	now            func() time.Time

	started         bool
	startTime       time.Time
	lastImprovement time.Time

	evaluations        int
	pruningEvaluations int
	currentFitness     float64

	times []int64
	sizes []int

	listeners []Listener
}

func NewTimeController(cfg TimeControllerConfig) (*TimeController, error) {
	switch cfg.Criterion {
	case config.StopIndividualEvaluations, config.StopTime:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCriterion, cfg.Criterion)
	}
	if cfg.MaxEvaluations <= 0 {
		return nil, fmt.Errorf("max evaluations must be positive: %v", cfg.MaxEvaluations)
	}
	if cfg.Phase == nil {
		cfg.Phase = NewPhaseController()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TimeController{
		criterion:      cfg.Criterion,
		maxEvaluations: cfg.MaxEvaluations,
		phase:          cfg.Phase,
		now:            cfg.Now,
		currentFitness: math.Inf(1),
	}, nil
}

func (tc *TimeController) Phase() *PhaseController {
	return tc.phase
}

func (tc *TimeController) AddListener(l Listener) {
	if l == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, l)
}

func (tc *TimeController) StartSearch() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.started = true
	tc.startTime = tc.now()
	tc.lastImprovement = tc.startTime
}

func (tc *TimeController) Started() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.started
}

// NewIndividualEvaluation counts one oracle evaluation. During pruning the
// evaluation goes to a separate counter and listeners are not told.
func (tc *TimeController) NewIndividualEvaluation() {
	if tc.phase.IsPruning() {
		tc.mu.Lock()
		tc.pruningEvaluations++
		tc.mu.Unlock()
		return
	}
	tc.mu.Lock()
	tc.evaluations++
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()
	for _, l := range listeners {
		l.NewActionEvaluated()
	}
}

func (tc *TimeController) Evaluations() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.evaluations
}

func (tc *TimeController) PruningEvaluations() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.pruningEvaluations
}

func (tc *TimeController) MaxEvaluations() float64 {
	return tc.maxEvaluations
}

func (tc *TimeController) Criterion() config.StoppingCriterion {
	return tc.criterion
}

func (tc *TimeController) PercentageUsedBudget() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.percentageLocked()
}

func (tc *TimeController) percentageLocked() float64 {
	if !tc.started {
		return 0
	}
	if tc.criterion == config.StopTime {
		return tc.now().Sub(tc.startTime).Seconds() / tc.maxEvaluations
	}
	return float64(tc.evaluations) / tc.maxEvaluations
}

func (tc *TimeController) ShouldContinueSearch() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.percentageLocked() < 1.0 && tc.currentFitness > 0
}

func (tc *TimeController) CurrentFitnessValue() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.currentFitness
}

func (tc *TimeController) SetCurrentFitnessValue(v float64) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentFitness = v
}

// NewActionImprovement resets the time-since-improvement clock.
func (tc *TimeController) NewActionImprovement() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lastImprovement = tc.now()
}

func (tc *TimeController) SecondsSinceLastImprovement() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.lastImprovement.IsZero() {
		return 0
	}
	return tc.now().Sub(tc.lastImprovement).Seconds()
}

func (tc *TimeController) ElapsedSeconds() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if !tc.started {
		return 0
	}
	return tc.now().Sub(tc.startTime).Seconds()
}

func (tc *TimeController) record(elapsedMS int64, size int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.times = append(tc.times, elapsedMS)
	tc.sizes = append(tc.sizes, size)
	if len(tc.times) > rollingWindow {
		tc.times = tc.times[len(tc.times)-rollingWindow:]
		tc.sizes = tc.sizes[len(tc.sizes)-rollingWindow:]
	}
}

// AverageTimeMS is the mean evaluation time over the last 100 measurements.
func (tc *TimeController) AverageTimeMS() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.times) == 0 {
		return 0
	}
	var total int64
	for _, t := range tc.times {
		total += t
	}
	return float64(total) / float64(len(tc.times))
}

func (tc *TimeController) AverageActionSize() float64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.sizes) == 0 {
		return 0
	}
	total := 0
	for _, s := range tc.sizes {
		total += s
	}
	return float64(total) / float64(len(tc.sizes))
}

// MeasureTimeMillis runs work, feeds the elapsed milliseconds into the
// rolling window, calls logFn when work succeeds and returns work's result.
func MeasureTimeMillis[T any](tc *TimeController, logFn func(elapsedMS int64, result T, actionSize int), work func() (T, error), actionSize int) (T, error) {
	start := tc.now()
	result, err := work()
	if err != nil {
		return result, err
	}
	elapsed := tc.now().Sub(start).Milliseconds()
	tc.record(elapsed, actionSize)
	if logFn != nil {
		logFn(elapsed, result, actionSize)
	}
	return result, nil
}
