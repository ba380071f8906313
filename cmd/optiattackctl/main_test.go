package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiattack/internal/config"
	"optiattack/internal/imaging"
	"optiattack/internal/model"
	"optiattack/internal/nutserver"
	"optiattack/internal/stats"
)

const smallConfig = `image_width: 4
image_height: 4
apc_location_start: 2
apc_location_end: 1
max_evaluations: 500
log_level: error
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

// startNUT serves the channel classifier and returns its host and port.
func startNUT(t *testing.T) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	server := nutserver.New(nutserver.Config{}, nutserver.NewChannelClassifier(), nil)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Hostname(), u.Port()
}

func writeFixtures(t *testing.T) (configPath, imagePath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "attack.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(smallConfig), 0o644))
	imagePath = filepath.Join(dir, "input.png")
	require.NoError(t, imaging.Blank(4, 4, model.Color{R: 140, G: 120, B: 100}).Save(imagePath))
	return configPath, imagePath
}

func TestConfigDefaults(t *testing.T) {
	out, err := execute(t, "config", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "algorithm: mio")
	assert.Contains(t, out, "stopping_criterion: individual_evaluations")
	assert.NotContains(t, out, "target:")
}

func TestConfigOperators(t *testing.T) {
	out, err := execute(t, "config", "operators")
	require.NoError(t, err)
	assert.Contains(t, out, "algorithm: mio random genetic abc de\n")
	assert.Contains(t, out, "sampler: gaussian random\n")
	assert.Contains(t, out, "selection: roulette tournament\n")
}

func TestConfigValidate(t *testing.T) {
	configPath, _ := writeFixtures(t)
	out, err := execute(t, "config", "validate", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok: algorithm=mio attack_type=untargeted")
	assert.Contains(t, out, "image=4x4")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_evaluations: 0\nalgorithm: hill\n"), 0o644))
	_, err = execute(t, "config", "validate", "--config", bad)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "config", "validate")
	require.Error(t, err)
}

func TestAttackRunsExportsAndLists(t *testing.T) {
	host, port := startNUT(t)
	configPath, imagePath := writeFixtures(t)
	outputDir := filepath.Join(t.TempDir(), "output")

	out, err := execute(t, "attack",
		"--config", configPath,
		"--image", imagePath,
		"--nut-host", host,
		"--nut-port", port,
		"--seed", "7",
		"--output-dir", outputDir,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "success=true")
	assert.Contains(t, out, "original=red")

	entries, err := stats.ListRunIndex(outputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runID := entries[0].RunID
	assert.Contains(t, out, "run_id="+runID)
	for _, file := range []string{"config.json", "solution.json", filepath.Join("images", "final_image.png")} {
		_, err := os.Stat(filepath.Join(outputDir, runID, file))
		require.NoError(t, err, file)
	}

	out, err = execute(t, "runs", "--output-dir", outputDir, "--json")
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, runID, listed[0]["run_id"])
	assert.Equal(t, true, listed[0]["success"])

	out, err = execute(t, "runs", "--output-dir", outputDir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "run_id="+runID))

	exportDir := filepath.Join(t.TempDir(), "exports")
	out, err = execute(t, "export", "--latest", "--output-dir", outputDir, "--out", exportDir)
	require.NoError(t, err)
	assert.Contains(t, out, "exported run_id="+runID)
	_, err = os.Stat(filepath.Join(exportDir, runID, "solution.json"))
	require.NoError(t, err)
}

func TestBenchmarkCommand(t *testing.T) {
	host, port := startNUT(t)
	configPath, imagePath := writeFixtures(t)
	outputDir := filepath.Join(t.TempDir(), "output")

	out, err := execute(t, "benchmark",
		"--config", configPath,
		"--image", imagePath,
		"--nut-host", host,
		"--nut-port", port,
		"--seeds", "1,2",
		"--workers", "2",
		"--enable-pruning=false",
		"--output-dir", outputDir,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "seed=1 run_id=")
	assert.Contains(t, out, "seed=2 run_id=")
	assert.Contains(t, out, "runs=2")

	entries, err := stats.ListRunIndex(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	summaries, err := stats.ListBenchmarkSummaries(outputDir)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].TotalRuns)
}

func TestBenchmarkRequiresWorkers(t *testing.T) {
	_, err := execute(t, "benchmark", "--workers", "0")
	require.ErrorContains(t, err, "workers must be > 0")
}

func TestAttackFailsWithoutNUT(t *testing.T) {
	configPath, imagePath := writeFixtures(t)
	_, err := execute(t, "attack",
		"--config", configPath,
		"--image", imagePath,
		"--nut-host", "127.0.0.1",
		"--nut-port", "1",
		"--output-dir", t.TempDir(),
	)
	require.ErrorContains(t, err, "baseline prediction")
}

func TestExportRequiresSelection(t *testing.T) {
	_, err := execute(t, "export", "--output-dir", t.TempDir())
	require.ErrorContains(t, err, "export requires --run-id or --latest")

	_, err = execute(t, "export", "--run-id", "x", "--latest", "--output-dir", t.TempDir())
	require.ErrorContains(t, err, "not both")
}

func TestRunsEmptyIndex(t *testing.T) {
	out, err := execute(t, "runs", "--output-dir", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "no runs found\n", out)

	_, err = execute(t, "runs", "--limit", "0")
	require.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "evolve")
	require.Error(t, err)
}

func TestResolveAppliesOnlyChangedFlags(t *testing.T) {
	configPath, _ := writeFixtures(t)
	flags := &runFlags{}
	cmd := &cobra.Command{Use: "probe"}
	flags.bind(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", configPath, "--algorithm", "RANDOM", "--target", "green"}))

	cfg, err := flags.resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, config.AlgorithmRandom, cfg.Algorithm)
	assert.Equal(t, 4, cfg.ImageWidth, "unchanged --width must not override the file")
	assert.Equal(t, float64(500), cfg.MaxEvaluations)
	label, targeted := cfg.TargetLabel()
	assert.True(t, targeted)
	assert.Equal(t, "green", label)

	cmd = &cobra.Command{Use: "probe"}
	flags = &runFlags{}
	flags.bind(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--algorithm", "hill"}))
	_, err = flags.resolve(cmd)
	require.Error(t, err)
}
