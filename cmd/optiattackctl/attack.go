package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"optiattack/internal/config"
	"optiattack/pkg/optiattack"
)

func newAttackCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Run one attack against the network under test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return runAttack(cmd, cfg, flags.logFile)
		},
	}
	flags.bind(cmd)
	return cmd
}

func runAttack(cmd *cobra.Command, cfg config.Config, logFile string) error {
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

	summary, err := client.Attack(ctx, optiattack.AttackRequest{Config: cfg})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s success=%t original=%s final=%s evaluations=%d pruning_evaluations=%d actions=%d fitness=%.6f artifacts=%s\n",
		summary.RunID,
		summary.Success,
		summary.OriginalLabel,
		summary.FinalLabel,
		summary.Evaluations,
		summary.PruningEvaluations,
		summary.ActionCount,
		summary.FinalFitness,
		summary.ArtifactsDir,
	)
	return nil
}
