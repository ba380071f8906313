package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"optiattack/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns r stamped with the current schema and codec versions.
func Versioned(r model.RunRecord) model.RunRecord {
	r.SchemaVersion = CurrentSchemaVersion
	r.CodecVersion = CurrentCodecVersion
	return r
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	if r.SchemaVersion == 0 && r.CodecVersion == 0 {
		r = Versioned(r)
	}
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	return run, nil
}

func EncodeFitnessHistory(history []model.FitnessPoint) ([]byte, error) {
	if history == nil {
		history = []model.FitnessPoint{}
	}
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]model.FitnessPoint, error) {
	var history []model.FitnessPoint
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
