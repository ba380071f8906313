package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"optiattack/internal/config"
	"optiattack/internal/evo"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and check attack configuration files",
	}
	cmd.AddCommand(newConfigDefaultsCmd(), newConfigValidateCmd(), newConfigOperatorsCmd())
	return cmd
}

func newConfigDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the default configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.Default().EncodeYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a configuration file and report every problem in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("validate requires --config")
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: algorithm=%s attack_type=%s criterion=%s max_evaluations=%g image=%dx%d\n",
				cfg.Algorithm,
				cfg.AttackType(),
				cfg.StoppingCriterion,
				cfg.MaxEvaluations,
				cfg.ImageWidth,
				cfg.ImageHeight,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "config file (.yaml, .yml or .json)")
	return cmd
}

func newConfigOperatorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operators",
		Short: "List the values accepted by the algorithm and operator keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			algorithms := make([]string, 0, len(config.Algorithms()))
			for _, alg := range config.Algorithms() {
				algorithms = append(algorithms, string(alg))
			}
			ops := evo.Operators()
			out := cmd.OutOrStdout()
			for _, line := range []struct {
				key    string
				values []string
			}{
				{"algorithm", algorithms},
				{"sampler", ops.Samplers},
				{"mutator", ops.Mutators},
				{"crossover", ops.Crossovers},
				{"selection", ops.Selectors},
			} {
				fmt.Fprintf(out, "%s: %s\n", line.key, strings.Join(line.values, " "))
			}
			return nil
		},
	}
}
