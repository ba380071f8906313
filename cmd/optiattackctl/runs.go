package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"optiattack/internal/config"
	"optiattack/pkg/optiattack"
)

func newRunsCmd() *cobra.Command {
	var (
		limit     int
		jsonOut   bool
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := optiattack.New(optiattack.Options{OutputDir: outputDir})
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			runs, err := client.Runs(cmd.Context(), optiattack.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				type runsItem struct {
					RunID           string   `json:"run_id"`
					CreatedAtUTC    string   `json:"created_at_utc"`
					ExperimentLabel string   `json:"experiment_label"`
					Algorithm       string   `json:"algorithm"`
					AttackType      string   `json:"attack_type"`
					Target          string   `json:"target,omitempty"`
					Seed            int64    `json:"seed"`
					Success         bool     `json:"success"`
					Evaluations     int      `json:"evaluations"`
					ActionCount     int      `json:"action_count"`
					FinalFitness    *float64 `json:"final_fitness,omitempty"`
				}
				items := make([]runsItem, 0, len(runs))
				for _, r := range runs {
					items = append(items, runsItem(r))
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, r := range runs {
				fitness := "n/a"
				if r.FinalFitness != nil {
					fitness = fmt.Sprintf("%.6f", *r.FinalFitness)
				}
				fmt.Fprintf(out, "run_id=%s created_at=%s label=%s algorithm=%s attack=%s seed=%d success=%t evaluations=%d actions=%d fitness=%s\n",
					r.RunID,
					r.CreatedAtUTC,
					r.ExperimentLabel,
					r.Algorithm,
					r.AttackType,
					r.Seed,
					r.Success,
					r.Evaluations,
					r.ActionCount,
					fitness,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")
	cmd.Flags().StringVar(&outputDir, "output-dir", config.Default().OutputDir, "artifact and run index directory")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		runID     string
		latest    bool
		outDir    string
		outputDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of one run to another directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if runID != "" && latest {
				return usageError("use either --run-id or --latest, not both")
			}
			if runID == "" && !latest {
				return usageError("export requires --run-id or --latest")
			}
			client, err := optiattack.New(optiattack.Options{OutputDir: outputDir, ExportsDir: outDir})
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			exported, err := client.Export(cmd.Context(), optiattack.ExportRequest{RunID: runID, Latest: latest})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run from the run index")
	cmd.Flags().StringVar(&outDir, "out", "exports", "export output directory")
	cmd.Flags().StringVar(&outputDir, "output-dir", config.Default().OutputDir, "artifact and run index directory")
	return cmd
}
