package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted outcome of one attack run.
type RunRecord struct {
	VersionedRecord
	ID                 string      `json:"id"`
	ExperimentLabel    string      `json:"experiment_label"`
	Algorithm          string      `json:"algorithm"`
	AttackType         string      `json:"attack_type"`
	Target             string      `json:"target,omitempty"`
	Seed               int64       `json:"seed"`
	CreatedAtUTC       string      `json:"created_at_utc"`
	Evaluations        int         `json:"evaluations"`
	PruningEvaluations int         `json:"pruning_evaluations"`
	ElapsedMS          int64       `json:"elapsed_ms"`
	Success            bool        `json:"success"`
	Original           Predictions `json:"original_predictions"`
	Solution           Solution    `json:"solution"`
	Pruned             *Solution   `json:"pruned,omitempty"`
}

// FinalSolution is the pruned solution when pruning ran, else the search result.
func (r RunRecord) FinalSolution() Solution {
	if r.Pruned != nil {
		return *r.Pruned
	}
	return r.Solution
}

// FitnessPoint records a change of the best fitness during a run.
type FitnessPoint struct {
	EvalCount      int     `json:"eval_count"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Fitness        float64 `json:"fitness"`
}
