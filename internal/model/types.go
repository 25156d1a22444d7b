package model

import "encoding/json"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
)

// RunRecord describes one optimization run and its current standing.
type RunRecord struct {
	VersionedRecord
	ID           string            `json:"id"`
	Objective    string            `json:"objective"`
	Acquisition  string            `json:"acquisition"`
	Sampler      string            `json:"sampler"`
	Seed         uint64            `json:"seed"`
	Budget       int               `json:"budget"`
	Evaluated    int               `json:"evaluated"`
	Status       string            `json:"status"`
	BestLoss     float64           `json:"best_loss"`
	BestValues   map[string]string `json:"best_values,omitempty"`
	CreatedAtUTC string            `json:"created_at_utc,omitempty"`
}

// EvaluationRecord is one scored configuration within a run.
type EvaluationRecord struct {
	VersionedRecord
	RunID       string            `json:"run_id"`
	Step        int               `json:"step"`
	ConfigID    string            `json:"config_id"`
	Phase       string            `json:"phase,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	Values      map[string]string `json:"values"`
	Loss        float64           `json:"loss"`
	Score       float64           `json:"score,omitempty"`
}

// CheckpointRecord snapshots a run's optimizer state for resumption. State is
// the optimizer's own serialized form and is opaque to the storage layer.
type CheckpointRecord struct {
	VersionedRecord
	RunID string          `json:"run_id"`
	Step  int             `json:"step"`
	State json.RawMessage `json:"state"`
}
