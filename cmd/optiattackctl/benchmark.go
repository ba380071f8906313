package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"optiattack/internal/config"
	"optiattack/pkg/optiattack"
)

func newBenchmarkCmd() *cobra.Command {
	flags := &runFlags{}
	var (
		seeds   []int64
		workers int
	)
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Attack the same image once per seed and summarize the runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(seeds) == 0 {
				return errors.New("benchmark requires --seeds")
			}
			if workers <= 0 {
				return errors.New("workers must be > 0")
			}
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return runBenchmark(cmd, cfg, flags.logFile, seeds, workers)
		},
	}
	flags.bind(cmd)
	cmd.Flags().Int64SliceVar(&seeds, "seeds", []int64{1, 2, 3}, "comma separated seeds, one run each")
	cmd.Flags().IntVar(&workers, "workers", 1, "runs attacked concurrently")
	return cmd
}

func runBenchmark(cmd *cobra.Command, cfg config.Config, logFile string, seeds []int64, workers int) error {
	ctx := cmd.Context()
	logger, cleanup, err := setupRuntime(ctx, cfg, logFile, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := newClient(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Benchmark(ctx, optiattack.BenchmarkRequest{
		Config:  cfg,
		Seeds:   seeds,
		Workers: workers,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, run := range result.Summary.Runs {
		if run.Error != "" {
			fmt.Fprintf(out, "seed=%d error=%q\n", run.Seed, run.Error)
			continue
		}
		fmt.Fprintf(out, "seed=%d run_id=%s success=%t evaluations=%d actions=%d\n",
			run.Seed, run.RunID, run.Success, run.Evaluations, run.ActionCount)
	}
	s := result.Summary
	fmt.Fprintf(out, "benchmark_id=%s algorithm=%s runs=%d success_runs=%d failed_runs=%d success_rate=%.3f avg_evaluations=%.2f std_evaluations=%.2f avg_actions=%.2f summary=%s\n",
		s.ID,
		s.Algorithm,
		s.TotalRuns,
		s.SuccessRuns,
		s.FailedRuns,
		s.SuccessRate,
		s.AvgEvaluations,
		s.StdEvaluations,
		s.AvgActionCount,
		result.SummaryPath,
	)
	return nil
}

func newClient(cmd *cobra.Command, cfg config.Config, logger *slog.Logger) (*optiattack.Client, error) {
	opts := optiattack.Options{
		StoreKind: cfg.Store,
		DBPath:    cfg.DBPath,
		OutputDir: cfg.OutputDir,
		Logger:    logger,
	}
	if cfg.ShowProgress {
		opts.Progress = cmd.OutOrStdout()
	}
	return optiattack.New(opts)
}
