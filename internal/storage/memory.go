package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"daidalos/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]model.RunRecord
	evaluations map[string][]model.EvaluationRecord
	checkpoints map[string]model.CheckpointRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.RunRecord)
	s.evaluations = make(map[string][]model.EvaluationRecord)
	s.checkpoints = make(map[string]model.CheckpointRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.BestValues = copyValues(run.BestValues)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.BestValues = copyValues(run.BestValues)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.BestValues = copyValues(run.BestValues)
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.evaluations, id)
	delete(s.checkpoints, id)
	return nil
}

func (s *MemoryStore) SaveEvaluations(_ context.Context, runID string, evaluations []model.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evaluations[runID] = copyEvaluations(evaluations)
	return nil
}

func (s *MemoryStore) GetEvaluations(_ context.Context, runID string) ([]model.EvaluationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evaluations, ok := s.evaluations[runID]
	if !ok {
		return nil, false, nil
	}
	return copyEvaluations(evaluations), true, nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, checkpoint model.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint.State = append(json.RawMessage(nil), checkpoint.State...)
	s.checkpoints[checkpoint.RunID] = checkpoint
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string) (model.CheckpointRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checkpoint, ok := s.checkpoints[runID]
	if !ok {
		return model.CheckpointRecord{}, false, nil
	}
	checkpoint.State = append(json.RawMessage(nil), checkpoint.State...)
	return checkpoint, true, nil
}

func copyEvaluations(records []model.EvaluationRecord) []model.EvaluationRecord {
	copied := make([]model.EvaluationRecord, len(records))
	copy(copied, records)
	for i := range copied {
		copied[i].Values = copyValues(copied[i].Values)
	}
	return copied
}

func copyValues(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return copied
}
