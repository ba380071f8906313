package stats

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

const benchmarksDir = "benchmarks"

type BenchmarkRun struct {
	RunID        string   `json:"run_id"`
	Seed         int64    `json:"seed"`
	Success      bool     `json:"success"`
	Evaluations  int      `json:"evaluations"`
	ActionCount  int      `json:"action_count"`
	FinalFitness *float64 `json:"final_fitness,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// BenchmarkSummary aggregates independent runs of one configuration.
// Evaluation statistics cover successful runs only.
type BenchmarkSummary struct {
	ID              string         `json:"id"`
	ExperimentLabel string         `json:"experiment_label"`
	Algorithm       string         `json:"algorithm"`
	StartedAtUTC    string         `json:"started_at_utc,omitempty"`
	CompletedAtUTC  string         `json:"completed_at_utc,omitempty"`
	TotalRuns       int            `json:"total_runs"`
	SuccessRuns     int            `json:"success_runs"`
	FailedRuns      int            `json:"failed_runs"`
	SuccessRate     float64        `json:"success_rate"`
	AvgEvaluations  float64        `json:"avg_evaluations"`
	StdEvaluations  float64        `json:"std_evaluations"`
	MinEvaluations  float64        `json:"min_evaluations"`
	MaxEvaluations  float64        `json:"max_evaluations"`
	AvgActionCount  float64        `json:"avg_action_count"`
	Runs            []BenchmarkRun `json:"runs"`
}

// Summarize fills the aggregate fields from s.Runs. Runs that errored count
// towards the total but not towards success.
func (s *BenchmarkSummary) Summarize() {
	s.TotalRuns = len(s.Runs)
	s.SuccessRuns, s.FailedRuns = 0, 0
	s.SuccessRate, s.AvgEvaluations, s.StdEvaluations = 0, 0, 0
	s.MinEvaluations, s.MaxEvaluations, s.AvgActionCount = 0, 0, 0

	evals := make([]float64, 0, len(s.Runs))
	actions := 0
	for _, run := range s.Runs {
		if run.Error != "" {
			s.FailedRuns++
			continue
		}
		if !run.Success {
			continue
		}
		s.SuccessRuns++
		evals = append(evals, float64(run.Evaluations))
		actions += run.ActionCount
	}
	if s.TotalRuns > 0 {
		s.SuccessRate = float64(s.SuccessRuns) / float64(s.TotalRuns)
	}
	if len(evals) == 0 {
		return
	}
	s.AvgEvaluations, s.StdEvaluations = meanStd(evals)
	s.MinEvaluations, s.MaxEvaluations = evals[0], evals[0]
	for _, v := range evals[1:] {
		s.MinEvaluations = math.Min(s.MinEvaluations, v)
		s.MaxEvaluations = math.Max(s.MaxEvaluations, v)
	}
	s.AvgActionCount = float64(actions) / float64(len(evals))
}

func meanStd(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	sq := 0.0
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func WriteBenchmarkSummary(baseDir string, summary BenchmarkSummary) (string, error) {
	if summary.ID == "" {
		return "", fmt.Errorf("benchmark id is required")
	}
	path := benchmarkSummaryPath(baseDir, summary.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if summary.Runs == nil {
		summary.Runs = []BenchmarkRun{}
	}
	return path, writeJSON(path, summary)
}

func ReadBenchmarkSummary(baseDir, id string) (BenchmarkSummary, bool, error) {
	if id == "" {
		return BenchmarkSummary{}, false, fmt.Errorf("benchmark id is required")
	}
	var summary BenchmarkSummary
	ok, err := readJSON(benchmarkSummaryPath(baseDir, id), &summary)
	return summary, ok, err
}

// ListBenchmarkSummaries returns summaries newest first; undated ones last.
func ListBenchmarkSummaries(baseDir string) ([]BenchmarkSummary, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, benchmarksDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []BenchmarkSummary{}, nil
		}
		return nil, err
	}

	out := make([]BenchmarkSummary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		summary, ok, err := ReadBenchmarkSummary(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		switch {
		case out[i].StartedAtUTC == out[j].StartedAtUTC:
			return out[i].ID < out[j].ID
		case out[i].StartedAtUTC == "":
			return false
		case out[j].StartedAtUTC == "":
			return true
		default:
			return out[i].StartedAtUTC > out[j].StartedAtUTC
		}
	})
	return out, nil
}

func benchmarkSummaryPath(baseDir, id string) string {
	return filepath.Join(baseDir, benchmarksDir, id, "summary.json")
}
