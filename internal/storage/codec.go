package storage

import (
	"encoding/json"
	"errors"

	"daidalos/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeEvaluations(records []model.EvaluationRecord) ([]byte, error) {
	return json.Marshal(records)
}

func DecodeEvaluations(data []byte) ([]model.EvaluationRecord, error) {
	var records []model.EvaluationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func EncodeCheckpoint(c model.CheckpointRecord) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeCheckpoint(data []byte) (model.CheckpointRecord, error) {
	var checkpoint model.CheckpointRecord
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return model.CheckpointRecord{}, err
	}
	if err := checkVersion(checkpoint.VersionedRecord); err != nil {
		return model.CheckpointRecord{}, err
	}
	return checkpoint, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
