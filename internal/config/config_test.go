package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AttackUntargeted, cfg.AttackType())
	assert.Equal(t, 100, cfg.EffectiveABCLimit())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.MinActionSize = 5
	cfg.MaxActionSize = 2
	cfg.APCStartTime = 0.9
	cfg.APCThreshold = 0.1
	cfg.StoppingCriterion = "generations"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "min_action_size")
	assert.Contains(t, err.Error(), "apc_start_time")
	assert.Contains(t, err.Error(), "StoppingCriterion")
}

func TestSelectionKey(t *testing.T) {
	cfg := Default()
	assert.Equal(t, SelectionRoulette, cfg.Selection)

	cfg.Selection = " Tournament "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SelectionTournament, cfg.Selection)

	cfg.Selection = "rank"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "Selection")
}

func TestNormalizeTarget(t *testing.T) {
	for _, raw := range []string{"None", "", "  "} {
		cfg := Default()
		cfg.Target = WithTarget(raw)
		require.NoError(t, cfg.Validate())
		assert.Nil(t, cfg.Target, "target %q should mean untargeted", raw)
	}

	cfg := Default()
	cfg.Target = WithTarget(" horse ")
	require.NoError(t, cfg.Validate())
	label, ok := cfg.TargetLabel()
	require.True(t, ok)
	assert.Equal(t, "horse", label)
	assert.Equal(t, AttackTargeted, cfg.AttackType())
}

func TestParseAlgorithmAliases(t *testing.T) {
	alg, err := ParseAlgorithm("GA")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmGenetic, alg)

	_, err = ParseAlgorithm("nsga2")
	require.Error(t, err)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attack.yaml")
	content := []byte("seed: 42\nimage_width: 10\nimage_height: 10\nmax_evaluations: 50\nalgorithm: GA\ntarget: horse\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 10, cfg.ImageWidth)
	assert.Equal(t, 50.0, cfg.MaxEvaluations)
	assert.Equal(t, AlgorithmGenetic, cfg.Algorithm)
	assert.Equal(t, 1, cfg.MinActionSize, "unset keys keep defaults")
	assert.Equal(t, AttackTargeted, cfg.AttackType())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("sed: 1\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	_, err := Load(yamlPath)
	require.Error(t, err)

	jsonPath := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(jsonPath, []byte(`{"sed": 1}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	_, err = Load(jsonPath)
	require.Error(t, err)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attack.json")
	if err := os.WriteFile(path, []byte(`{"stopping_criterion": "time", "max_evaluations": 30}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StopTime, cfg.StoppingCriterion)
}

func TestEncodeYAMLLoadsBack(t *testing.T) {
	data, err := Default().EncodeYAML()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().MaxEvaluations, cfg.MaxEvaluations)
}
