package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionEqualityIgnoresParent(t *testing.T) {
	a := NewAction(1, 2, 10, 20, 30)
	b := a.Derive()
	require.NotNil(t, b.Parent)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(NewAction(1, 2, 10, 20, 31)))
	assert.False(t, a.Equal(NewAction(2, 1, 10, 20, 30)))
}

func TestNewActionClampsColor(t *testing.T) {
	a := NewAction(0, 0, -5, 300, 128)
	assert.Equal(t, Color{R: 0, G: 255, B: 128}, a.Color)
}

func TestActionNoise(t *testing.T) {
	a := NewAction(0, 0, 100, 50, 0)
	assert.Equal(t, 10+50+20, a.Noise(Color{R: 90, G: 100, B: 20}))
}

func TestIndividualAddActionPolicies(t *testing.T) {
	ind := NewIndividual()
	require.True(t, ind.AddAction(NewAction(1, 1, 0, 0, 0), true))
	require.True(t, ind.AddAction(NewAction(2, 2, 0, 0, 0), true))

	assert.False(t, ind.AddAction(NewAction(1, 1, 9, 9, 9), false), "reject policy must refuse a taken location")
	assert.Equal(t, Color{}, ind.Action(0).Color)

	assert.True(t, ind.AddAction(NewAction(1, 1, 9, 9, 9), true))
	assert.Equal(t, 2, ind.Size())
	assert.Equal(t, Color{R: 9, G: 9, B: 9}, ind.Action(0).Color, "replace keeps the original position")
}

func TestIndividualSetActionDropsCollidingAction(t *testing.T) {
	ind := NewIndividual(NewAction(0, 0, 1, 1, 1), NewAction(1, 1, 2, 2, 2), NewAction(2, 2, 3, 3, 3))
	ind.SetAction(0, NewAction(2, 2, 7, 7, 7))

	require.Equal(t, 2, ind.Size())
	assert.Equal(t, Location{X: 2, Y: 2}, ind.Action(0).Location)
	assert.Equal(t, Location{X: 1, Y: 1}, ind.Action(1).Location)
}

func TestIndividualCopyIsIndependent(t *testing.T) {
	ind := NewIndividual(NewAction(0, 0, 1, 1, 1))
	cp := ind.Copy()
	cp.SetAction(0, NewAction(0, 0, 5, 5, 5))
	assert.Equal(t, Color{R: 1, G: 1, B: 1}, ind.Action(0).Color)
}

func TestIndividualCrossover(t *testing.T) {
	a := NewIndividual(NewAction(0, 0, 0, 0, 0), NewAction(1, 0, 0, 0, 0), NewAction(2, 0, 0, 0, 0))
	b := NewIndividual(NewAction(0, 1, 0, 0, 0), NewAction(1, 1, 0, 0, 0), NewAction(2, 1, 0, 0, 0))

	child := a.Crossover(b, 1, 2)
	got := child.Actions()
	require.Len(t, got, 2)
	assert.Equal(t, Location{X: 0, Y: 0}, got[0].Location)
	assert.Equal(t, Location{X: 2, Y: 1}, got[1].Location)
}

func TestPredictionsRanking(t *testing.T) {
	preds := Predictions{{Label: "horse", Score: 0.1}, {Label: "zebra", Score: 0.9}}
	top, ok := preds.Top()
	require.True(t, ok)
	assert.Equal(t, "zebra", top.Label)
	second, ok := preds.Second()
	require.True(t, ok)
	assert.Equal(t, "horse", second.Label)
	assert.Equal(t, 0.0, preds.ScoreOf("cat"))

	_, ok = Predictions{{Label: "only", Score: 1}}.Second()
	assert.False(t, ok)
}

func TestFitnessValueJSONHandlesUnsetValue(t *testing.T) {
	data, err := json.Marshal(WorstFitness())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":null`)

	var decoded FitnessValue
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, math.IsInf(decoded.Value, 1))
}

func TestRunRecordFinalSolution(t *testing.T) {
	rec := RunRecord{Solution: Solution{Actions: []Action{NewAction(0, 0, 0, 0, 0), NewAction(1, 1, 0, 0, 0)}}}
	assert.Equal(t, 2, rec.FinalSolution().Size())
	rec.Pruned = &Solution{Actions: []Action{NewAction(0, 0, 0, 0, 0)}}
	assert.Equal(t, 1, rec.FinalSolution().Size())
}
