package stats

import (
	"math"
	"testing"
)

func TestBenchmarkSummarize(t *testing.T) {
	summary := BenchmarkSummary{
		ID: "bench-1",
		Runs: []BenchmarkRun{
			{RunID: "a", Seed: 1, Success: true, Evaluations: 10, ActionCount: 2},
			{RunID: "b", Seed: 2, Success: true, Evaluations: 30, ActionCount: 4},
			{RunID: "c", Seed: 3, Success: false, Evaluations: 100},
			{Seed: 4, Error: "oracle down"},
		},
	}
	summary.Summarize()

	if summary.TotalRuns != 4 || summary.SuccessRuns != 2 || summary.FailedRuns != 1 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.SuccessRate != 0.5 {
		t.Fatalf("unexpected success rate: got=%f want=0.5", summary.SuccessRate)
	}
	if summary.AvgEvaluations != 20 || summary.StdEvaluations != 10 {
		t.Fatalf("unexpected evaluation stats: avg=%f std=%f", summary.AvgEvaluations, summary.StdEvaluations)
	}
	if summary.MinEvaluations != 10 || summary.MaxEvaluations != 30 || summary.AvgActionCount != 3 {
		t.Fatalf("unexpected min/max/actions: %+v", summary)
	}
}

func TestBenchmarkSummarizeWithoutSuccess(t *testing.T) {
	summary := BenchmarkSummary{Runs: []BenchmarkRun{{Success: false, Evaluations: 5}}}
	summary.Summarize()
	if summary.SuccessRate != 0 || summary.AvgEvaluations != 0 || math.IsNaN(summary.StdEvaluations) {
		t.Fatalf("expected zeroed statistics, got %+v", summary)
	}
}

func TestWriteReadAndListBenchmarkSummaries(t *testing.T) {
	baseDir := t.TempDir()
	for _, s := range []BenchmarkSummary{
		{ID: "old", StartedAtUTC: "2026-01-01T00:00:00Z"},
		{ID: "undated"},
		{ID: "new", StartedAtUTC: "2026-03-01T00:00:00Z", Runs: []BenchmarkRun{{RunID: "r", Success: true}}},
	} {
		if _, err := WriteBenchmarkSummary(baseDir, s); err != nil {
			t.Fatalf("write %s: %v", s.ID, err)
		}
	}

	got, ok, err := ReadBenchmarkSummary(baseDir, "new")
	if err != nil || !ok || len(got.Runs) != 1 {
		t.Fatalf("read: ok=%t err=%v got=%+v", ok, err, got)
	}

	list, err := ListBenchmarkSummaries(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != "new" || list[1].ID != "old" || list[2].ID != "undated" {
		t.Fatalf("unexpected order: %+v", list)
	}

	if _, err := WriteBenchmarkSummary(baseDir, BenchmarkSummary{}); err == nil {
		t.Fatal("expected error for missing id")
	}
	empty, err := ListBenchmarkSummaries(t.TempDir())
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list: %v %v", empty, err)
	}
}
