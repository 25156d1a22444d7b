package storage

import (
	"context"

	"daidalos/internal/model"
)

// Store defines persistence operations for optimization runs, their
// evaluation traces and resumable checkpoints.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
	SaveEvaluations(ctx context.Context, runID string, evaluations []model.EvaluationRecord) error
	GetEvaluations(ctx context.Context, runID string) ([]model.EvaluationRecord, bool, error)
	SaveCheckpoint(ctx context.Context, checkpoint model.CheckpointRecord) error
	GetCheckpoint(ctx context.Context, runID string) (model.CheckpointRecord, bool, error)
}
