package daidalos

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"daidalos/internal/model"
	"daidalos/internal/space"
)

func newMemoryClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory", ExportsDir: filepath.Join(t.TempDir(), "exports")})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func smallRunRequest(runID string, budget int) RunRequest {
	return RunRequest{
		RunID:           runID,
		Objective:       ObjectiveArith,
		Target:          10,
		Seed:            7,
		Budget:          budget,
		InitialDesign:   3,
		NCandidates:     30,
		Workers:         2,
		CheckpointEvery: 2,
	}
}

func TestClientRunTraceBestExport(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, smallRunRequest("demo-run", 6))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID != "demo-run" {
		t.Fatalf("run id = %q", summary.RunID)
	}
	if summary.Evaluated != 6 {
		t.Fatalf("evaluated = %d, want 6", summary.Evaluated)
	}
	if len(summary.BestByStep) != 6 {
		t.Fatalf("best history length = %d, want 6", len(summary.BestByStep))
	}
	for i := 1; i < len(summary.BestByStep); i++ {
		if summary.BestByStep[i] > summary.BestByStep[i-1] {
			t.Fatalf("best history increased at step %d: %v", i+1, summary.BestByStep)
		}
	}
	if summary.BestValues["expr"] == "" {
		t.Fatal("expected best expression")
	}
	if summary.Resumed {
		t.Fatal("fresh run reported as resumed")
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "demo-run" {
		t.Fatalf("unexpected runs list: %+v", runs)
	}
	if runs[0].Status != model.RunStatusCompleted {
		t.Fatalf("status = %q, want %q", runs[0].Status, model.RunStatusCompleted)
	}
	if runs[0].Evaluated != 6 || runs[0].Budget != 6 {
		t.Fatalf("unexpected progress: %+v", runs[0])
	}

	trace, err := client.Trace(ctx, TraceRequest{RunID: "demo-run"})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(trace) != 6 {
		t.Fatalf("trace length = %d, want 6", len(trace))
	}
	for i, item := range trace {
		if item.Step != i+1 {
			t.Fatalf("trace step %d = %d", i, item.Step)
		}
		if item.ConfigID != strconv.Itoa(i+1) {
			t.Fatalf("config id at step %d = %q", i+1, item.ConfigID)
		}
		wantPhase := "initial_design"
		if i >= 3 {
			wantPhase = "acquisition"
		}
		if item.Phase != wantPhase {
			t.Fatalf("phase at step %d = %q, want %q", i+1, item.Phase, wantPhase)
		}
		if item.Values["expr"] == "" {
			t.Fatalf("missing expression at step %d", i+1)
		}
	}

	best, err := client.Best(ctx, BestRequest{RunID: "demo-run"})
	if err != nil {
		t.Fatalf("best: %v", err)
	}
	if best.Loss != summary.BestLoss {
		t.Fatalf("best loss = %v, want %v", best.Loss, summary.BestLoss)
	}
	if best.Values["expr"] != summary.BestValues["expr"] {
		t.Fatalf("best values mismatch: %v vs %v", best.Values, summary.BestValues)
	}

	export, err := client.Export(ctx, ExportRequest{RunID: "demo-run"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(export.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var payload struct {
		Run         model.RunRecord          `json:"run"`
		Evaluations []model.EvaluationRecord `json:"evaluations"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if payload.Run.ID != "demo-run" || len(payload.Evaluations) != 6 {
		t.Fatalf("unexpected export payload: run=%q evaluations=%d", payload.Run.ID, len(payload.Evaluations))
	}
}

func TestRunDefaultsRequest(t *testing.T) {
	client := newMemoryClient(t)

	summary, err := client.Run(context.Background(), RunRequest{Budget: 4, Seed: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected generated run id")
	}
	if summary.Objective != ObjectiveArith {
		t.Fatalf("objective = %q, want %q", summary.Objective, ObjectiveArith)
	}
	if summary.Evaluated != 4 {
		t.Fatalf("evaluated = %d, want 4", summary.Evaluated)
	}

	// Budget below the default initial design keeps every step random.
	trace, err := client.Trace(context.Background(), TraceRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	for _, item := range trace {
		if item.Phase != "initial_design" {
			t.Fatalf("phase = %q, want initial_design", item.Phase)
		}
	}
}

func TestRunCustomEvaluate(t *testing.T) {
	client := newMemoryClient(t)

	var calls atomic.Int64
	evaluate := func(_ context.Context, cfg *space.SearchSpace) (float64, error) {
		calls.Add(1)
		return float64(len(cfg.Fingerprint())), nil
	}

	summary, err := client.Run(context.Background(), RunRequest{
		RunID:         "custom-run",
		Evaluate:      evaluate,
		Seed:          11,
		Budget:        5,
		InitialDesign: 2,
		NCandidates:   20,
		Workers:       3,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Objective != "custom" {
		t.Fatalf("objective = %q, want custom", summary.Objective)
	}
	if got := calls.Load(); got != 5 {
		t.Fatalf("evaluate called %d times, want 5", got)
	}
	if summary.BestLoss <= 0 {
		t.Fatalf("best loss = %v, want > 0", summary.BestLoss)
	}
}

func TestRunResumeMatchesStraightRun(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	straight, err := client.Run(ctx, smallRunRequest("straight-run", 8))
	if err != nil {
		t.Fatalf("straight run: %v", err)
	}

	if _, err := client.Run(ctx, smallRunRequest("resumed-run", 4)); err != nil {
		t.Fatalf("first leg: %v", err)
	}
	secondLeg := smallRunRequest("resumed-run", 8)
	secondLeg.Resume = true
	resumed, err := client.Run(ctx, secondLeg)
	if err != nil {
		t.Fatalf("second leg: %v", err)
	}
	if !resumed.Resumed {
		t.Fatal("second leg not marked resumed")
	}
	if resumed.Evaluated != 8 {
		t.Fatalf("resumed evaluated = %d, want 8", resumed.Evaluated)
	}
	if resumed.BestLoss != straight.BestLoss {
		t.Fatalf("best loss diverged: straight %v, resumed %v", straight.BestLoss, resumed.BestLoss)
	}

	straightTrace, err := client.Trace(ctx, TraceRequest{RunID: "straight-run"})
	if err != nil {
		t.Fatalf("straight trace: %v", err)
	}
	resumedTrace, err := client.Trace(ctx, TraceRequest{RunID: "resumed-run"})
	if err != nil {
		t.Fatalf("resumed trace: %v", err)
	}
	if len(straightTrace) != 8 || len(resumedTrace) != 8 {
		t.Fatalf("trace lengths: straight %d, resumed %d", len(straightTrace), len(resumedTrace))
	}
	for i := range straightTrace {
		if straightTrace[i].Values["expr"] != resumedTrace[i].Values["expr"] {
			t.Fatalf("step %d diverged: %q vs %q",
				i+1, straightTrace[i].Values["expr"], resumedTrace[i].Values["expr"])
		}
		if straightTrace[i].Phase != resumedTrace[i].Phase {
			t.Fatalf("phase at step %d diverged: %q vs %q",
				i+1, straightTrace[i].Phase, resumedTrace[i].Phase)
		}
		if straightTrace[i].Loss != resumedTrace[i].Loss {
			t.Fatalf("loss at step %d diverged: %v vs %v",
				i+1, straightTrace[i].Loss, resumedTrace[i].Loss)
		}
	}
}

func TestRunResumeValidation(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, RunRequest{Resume: true}); err == nil {
		t.Fatal("expected error for resume without run id")
	}
	_, err := client.Run(ctx, RunRequest{RunID: "ghost", Resume: true})
	if err == nil || !strings.Contains(err.Error(), "no checkpoint") {
		t.Fatalf("expected missing checkpoint error, got %v", err)
	}
}

func TestRunRejectsBadRequest(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, RunRequest{Objective: "simulated_annealing", Budget: 2}); err == nil {
		t.Fatal("expected error for unknown objective")
	}
	if _, err := client.Run(ctx, RunRequest{Acquisition: "gradient", Budget: 2}); err == nil {
		t.Fatal("expected error for unknown acquisition")
	}
	if _, err := client.Run(ctx, RunRequest{Sampler: "annealer", Budget: 2}); err == nil {
		t.Fatal("expected error for unknown sampler")
	}
	if _, err := client.Run(ctx, RunRequest{Grammar: "S -> T", Budget: 2}); err == nil {
		t.Fatal("expected error for broken grammar")
	}
	if _, err := client.Run(ctx, RunRequest{RandomInterleave: 1.5, Budget: 2}); err == nil {
		t.Fatal("expected error for out of range interleave probability")
	}
}

func TestLatestResolution(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, smallRunRequest("first-run", 3)); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second := smallRunRequest("second-run", 3)
	second.Seed = 9
	if _, err := client.Run(ctx, second); err != nil {
		t.Fatalf("second run: %v", err)
	}

	best, err := client.Best(ctx, BestRequest{Latest: true})
	if err != nil {
		t.Fatalf("best latest: %v", err)
	}
	if best.RunID != "second-run" {
		t.Fatalf("latest run = %q, want second-run", best.RunID)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 10})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "second-run" {
		t.Fatalf("expected newest run first: %+v", runs)
	}

	if _, err := client.Best(ctx, BestRequest{RunID: "first-run", Latest: true}); err == nil {
		t.Fatal("expected error for run id combined with latest")
	}
	if _, err := client.Trace(ctx, TraceRequest{}); err == nil {
		t.Fatal("expected error for trace without run id or latest")
	}
	if _, err := client.Trace(ctx, TraceRequest{RunID: "ghost"}); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestExportValidation(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected error for export without run id or latest")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "a", Latest: true}); err == nil {
		t.Fatal("expected error for run id combined with latest")
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "ghost"}); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestResetDropsRuns(t *testing.T) {
	client := newMemoryClient(t)
	ctx := context.Background()

	if _, err := client.Run(ctx, smallRunRequest("doomed-run", 3)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{Limit: 10})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs after reset, got %d", len(runs))
	}
	if _, err := client.Trace(ctx, TraceRequest{RunID: "doomed-run"}); err == nil {
		t.Fatal("expected trace to fail after reset")
	}
}

func TestRunHonorsContext(t *testing.T) {
	client := newMemoryClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Run(ctx, smallRunRequest("cancelled-run", 4)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
