package model

import (
	"encoding/json"
	"math"
	"sort"
)

// Prediction is one label/score pair returned by the network under test.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type Predictions []Prediction

// Ranked returns a copy sorted by descending score. Ties keep input order.
func (p Predictions) Ranked() Predictions {
	ranked := append(Predictions(nil), p...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (p Predictions) Top() (Prediction, bool) {
	if len(p) == 0 {
		return Prediction{}, false
	}
	return p.Ranked()[0], true
}

// Second returns the runner-up prediction.
func (p Predictions) Second() (Prediction, bool) {
	if len(p) < 2 {
		return Prediction{}, false
	}
	return p.Ranked()[1], true
}

// ScoreOf returns the score of label, or 0 when the label is absent.
func (p Predictions) ScoreOf(label string) float64 {
	for _, pred := range p {
		if pred.Label == label {
			return pred.Score
		}
	}
	return 0
}

// FitnessValue is lower-is-better; a value <= 0 means the attack succeeded.
type FitnessValue struct {
	Value           float64     `json:"value"`
	ExecutionTimeMS int64       `json:"execution_time_ms"`
	Predictions     Predictions `json:"predictions,omitempty"`
}

// WorstFitness is the value an archive starts from before any admission.
func WorstFitness() FitnessValue {
	return FitnessValue{Value: math.Inf(1)}
}

func (f FitnessValue) Succeeded() bool {
	return f.Value <= 0
}

// EvaluatedIndividual pairs an individual with its fitness. SamplingCounter
// counts draws from the archive since the lineage last improved.
type EvaluatedIndividual struct {
	Individual      *Individual  `json:"individual"`
	Fitness         FitnessValue `json:"fitness"`
	SamplingCounter int          `json:"sampling_counter"`
}

func NewEvaluatedIndividual(ind *Individual, fitness FitnessValue) *EvaluatedIndividual {
	return &EvaluatedIndividual{Individual: ind, Fitness: fitness}
}

func (e *EvaluatedIndividual) Copy() *EvaluatedIndividual {
	return &EvaluatedIndividual{
		Individual:      e.Individual.Copy(),
		Fitness:         e.Fitness,
		SamplingCounter: e.SamplingCounter,
	}
}

// Solution is the exported action list and the fitness that produced it.
type Solution struct {
	Actions []Action     `json:"actions"`
	Fitness FitnessValue `json:"fitness"`
}

func (s Solution) Size() int {
	return len(s.Actions)
}

type fitnessValueJSON struct {
	Value           *float64    `json:"value"`
	ExecutionTimeMS int64       `json:"execution_time_ms"`
	Predictions     Predictions `json:"predictions,omitempty"`
}

// MarshalJSON writes an unset (infinite) value as null.
func (f FitnessValue) MarshalJSON() ([]byte, error) {
	out := fitnessValueJSON{ExecutionTimeMS: f.ExecutionTimeMS, Predictions: f.Predictions}
	if !math.IsInf(f.Value, 0) && !math.IsNaN(f.Value) {
		v := f.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

func (f *FitnessValue) UnmarshalJSON(data []byte) error {
	var in fitnessValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.Value = math.Inf(1)
	if in.Value != nil {
		f.Value = *in.Value
	}
	f.ExecutionTimeMS = in.ExecutionTimeMS
	f.Predictions = in.Predictions
	return nil
}
