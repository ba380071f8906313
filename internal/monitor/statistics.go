package monitor

import (
	"math"
	"sync"

	"optiattack/internal/model"
)

// Budget is the time controller view the statistics collector reads.
type Budget interface {
	Evaluations() int
	PercentageUsedBudget() float64
	CurrentFitnessValue() float64
	ElapsedSeconds() float64
	AverageTimeMS() float64
	AverageActionSize() float64
}

type SolutionSource interface {
	ExtractSolution() model.Solution
	Size() int
}

// Snapshot is the archive's solution at a point of the budget.
type Snapshot struct {
	EvalCount            int            `json:"eval_count"`
	PercentageUsedBudget float64        `json:"percentage_used_budget"`
	ArchiveSize          int            `json:"archive_size"`
	Solution             model.Solution `json:"solution"`
}

// Data is the final summary written next to the snapshots.
type Data struct {
	EvalCount            int                `json:"eval_count"`
	PruningEvalCount     int                `json:"pruning_eval_count"`
	IntervalCount        float64            `json:"interval_count"`
	CurrentFitness       model.FitnessValue `json:"current_fitness"`
	Predictions          model.Predictions  `json:"predictions,omitempty"`
	ActionCount          int                `json:"action_count"`
	ArchiveSize          int                `json:"archive_size"`
	PercentageUsedBudget float64            `json:"percentage_used_budget"`
	ElapsedSeconds       float64            `json:"elapsed_seconds"`
	AverageTimeMS        float64            `json:"average_time_ms"`
	AverageActionSize    float64            `json:"average_action_size"`
}

// Statistics snapshots the archive every interval percent of the budget and
// tracks the best fitness over time. A non-positive interval disables
// snapshots; the fitness history is always kept.
type Statistics struct {
	mu sync.Mutex

	budget  Budget
	archive SolutionSource

	interval  float64
	threshold float64
	snapshots []Snapshot
	history   []model.FitnessPoint
	last      float64
}

func NewStatistics(budget Budget, archive SolutionSource, interval float64) *Statistics {
	return &Statistics{
		budget:    budget,
		archive:   archive,
		interval:  interval,
		threshold: interval,
		last:      math.Inf(1),
	}
}

func (s *Statistics) NewActionEvaluated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordFitnessLocked()
	if s.interval <= 0 {
		return
	}
	if s.budget.PercentageUsedBudget()*100 >= s.threshold {
		s.takeSnapshotLocked()
	}
}

// TakeSnapshot records the archive now and moves the threshold on by one
// interval.
func (s *Statistics) TakeSnapshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.takeSnapshotLocked()
}

func (s *Statistics) takeSnapshotLocked() {
	s.snapshots = append(s.snapshots, Snapshot{
		EvalCount:            s.budget.Evaluations(),
		PercentageUsedBudget: s.budget.PercentageUsedBudget(),
		ArchiveSize:          s.archive.Size(),
		Solution:             s.archive.ExtractSolution(),
	})
	s.threshold += s.interval
}

// recordFitnessLocked appends a history point when the best fitness moved.
// Listeners run before the archive sees the candidate, so a point lags the
// admission that caused it by one evaluation.
func (s *Statistics) recordFitnessLocked() {
	best := s.budget.CurrentFitnessValue()
	if best == s.last {
		return
	}
	s.last = best
	s.history = append(s.history, model.FitnessPoint{
		EvalCount:      s.budget.Evaluations(),
		ElapsedSeconds: s.budget.ElapsedSeconds(),
		Fitness:        best,
	})
}

// Finish records the closing fitness point and, when snapshots are enabled,
// the closing snapshot.
func (s *Statistics) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordFitnessLocked()
	if s.interval > 0 {
		s.takeSnapshotLocked()
	}
}

func (s *Statistics) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snapshots...)
}

func (s *Statistics) FitnessHistory() []model.FitnessPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.FitnessPoint(nil), s.history...)
}

func (s *Statistics) Threshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threshold
}

// Data summarizes the run for solution.
func (s *Statistics) Data(solution model.Solution, pruningEvals int) Data {
	return Data{
		EvalCount:            s.budget.Evaluations(),
		PruningEvalCount:     pruningEvals,
		IntervalCount:        s.interval,
		CurrentFitness:       solution.Fitness,
		Predictions:          solution.Fitness.Predictions,
		ActionCount:          solution.Size(),
		ArchiveSize:          s.archive.Size(),
		PercentageUsedBudget: s.budget.PercentageUsedBudget(),
		ElapsedSeconds:       s.budget.ElapsedSeconds(),
		AverageTimeMS:        s.budget.AverageTimeMS(),
		AverageActionSize:    s.budget.AverageActionSize(),
	}
}
