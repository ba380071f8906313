package platform

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"optiattack/internal/config"
	"optiattack/internal/imaging"
	"optiattack/internal/stats"
)

type BenchmarkOptions struct {
	ID      string
	Seeds   []int64
	Workers int
}

type BenchmarkReport struct {
	Summary stats.BenchmarkSummary
	// Results holds the finished sessions in seed order; failed seeds are
	// absent and recorded in Summary.Runs instead.
	Results []Result
}

// Benchmark runs one independent session per seed, at most opts.Workers at a
// time. A failing seed is recorded and does not stop the others; only a
// cancelled ctx aborts the benchmark.
func Benchmark(ctx context.Context, cfg config.Config, image *imaging.Image, deps Deps, opts BenchmarkOptions) (BenchmarkReport, error) {
	if len(opts.Seeds) == 0 {
		return BenchmarkReport{}, errors.New("benchmark needs at least one seed")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Progress = nil
	log := deps.logger().With("benchmark_id", opts.ID)
	deps.Logger = log

	summary := stats.BenchmarkSummary{
		ID:              opts.ID,
		ExperimentLabel: cfg.ExperimentLabel,
		Algorithm:       string(cfg.Algorithm),
		StartedAtUTC:    deps.Now().UTC().Format(time.RFC3339Nano),
	}
	log.Info("benchmark started", "seeds", len(opts.Seeds), "workers", workers)

	results := make([]*Result, len(opts.Seeds))
	runs := make([]stats.BenchmarkRun, len(opts.Seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seed := range opts.Seeds {
		g.Go(func() error {
			runCfg := cfg
			runCfg.Seed = seed
			runs[i] = stats.BenchmarkRun{Seed: seed}

			session, err := NewSession(runCfg, image, deps)
			if err != nil {
				runs[i].Error = err.Error()
				return nil
			}
			res, err := session.Run(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("benchmark run failed", "seed", seed, "err", err)
				runs[i].Error = err.Error()
				return nil
			}
			final := res.FinalSolution()
			runs[i] = stats.BenchmarkRun{
				RunID:        res.RunID,
				Seed:         res.Seed,
				Success:      res.Success(),
				Evaluations:  res.Evaluations,
				ActionCount:  final.Size(),
				FinalFitness: stats.FiniteFitness(final.Fitness.Value),
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BenchmarkReport{}, err
	}

	report := BenchmarkReport{Results: make([]Result, 0, len(results))}
	for _, res := range results {
		if res != nil {
			report.Results = append(report.Results, *res)
		}
	}
	summary.Runs = runs
	summary.CompletedAtUTC = deps.Now().UTC().Format(time.RFC3339Nano)
	summary.Summarize()
	report.Summary = summary

	log.Info("benchmark finished",
		"success_runs", summary.SuccessRuns,
		"failed_runs", summary.FailedRuns,
		"success_rate", summary.SuccessRate,
		"avg_evaluations", summary.AvgEvaluations,
	)
	return report, nil
}
