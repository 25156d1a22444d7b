package daidalos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"daidalos/internal/acquisition"
	"daidalos/internal/grammar"
	"daidalos/internal/model"
	"daidalos/internal/optimize"
	"daidalos/internal/param"
	"daidalos/internal/space"
	"daidalos/internal/storage"
)

const (
	defaultExportsDir      = "exports"
	defaultDBPath          = "daidalos.db"
	defaultBudget          = 30
	defaultWorkers         = 4
	defaultCheckpointEvery = 5
	defaultCFactor         = 0.3
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
}

type Client struct {
	store      storage.Store
	exportsDir string

	initialized bool
}

type RunRequest struct {
	RunID     string
	Objective string
	Target    float64
	Grammar   string

	// Evaluate overrides the named objective when set.
	Evaluate EvaluateFn

	Seed             uint64
	Budget           int
	InitialDesign    int
	NCandidates      int
	Patience         int
	Acquisition      string
	Sampler          string
	RandomInterleave float64
	Workers          int
	CheckpointEvery  int
	Resume           bool
}

type RunSummary struct {
	RunID      string
	Objective  string
	Evaluated  int
	BestLoss   float64
	BestValues map[string]string
	BestByStep []float64
	Resumed    bool
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Objective    string
	Acquisition  string
	Sampler      string
	Seed         uint64
	Budget       int
	Evaluated    int
	Status       string
	BestLoss     float64
}

type TraceRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TraceItem struct {
	Step        int
	ConfigID    string
	Phase       string
	Fingerprint string
	Values      map[string]string
	Loss        float64
	Score       float64
}

type BestRequest struct {
	RunID  string
	Latest bool
}

type BestResult struct {
	RunID     string
	Objective string
	Loss      float64
	Values    map[string]string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID string
	Path  string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Reset drops every persisted run with its evaluations and checkpoints.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if err := c.store.DeleteRun(ctx, run.ID); err != nil {
			return err
		}
	}
	return nil
}

// Run drives one optimization run to completion: an initial design evaluated
// by a worker pool, then sequential model-guided proposals until the budget
// is spent. Evaluations, run standing and checkpoints are persisted as the
// run progresses, so an interrupted run can be picked up with Resume.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	if req.Resume {
		if req.RunID == "" {
			return RunSummary{}, errors.New("resume requires an explicit run id")
		}
		prev, ok, err := c.store.GetRun(ctx, req.RunID)
		if err != nil {
			return RunSummary{}, err
		}
		if ok {
			if req.Objective == "" {
				req.Objective = prev.Objective
			}
			if req.Acquisition == "" {
				req.Acquisition = prev.Acquisition
			}
			if req.Sampler == "" {
				req.Sampler = prev.Sampler
			}
			if req.Seed == 0 {
				req.Seed = prev.Seed
			}
			if req.Budget <= 0 {
				req.Budget = prev.Budget
			}
			if prev.CreatedAtUTC != "" {
				createdAt = prev.CreatedAtUTC
			}
		}
	}

	if req.Objective == "" {
		if req.Evaluate != nil {
			req.Objective = "custom"
		} else {
			req.Objective = ObjectiveArith
		}
	}
	if req.Target == 0 {
		switch req.Objective {
		case ObjectiveTreeSize:
			req.Target = 7
		case ObjectiveArith:
			req.Target = 10
		}
	}
	if req.Seed == 0 {
		req.Seed = 1
	}
	if req.Budget <= 0 {
		req.Budget = defaultBudget
	}
	if req.InitialDesign <= 0 {
		req.InitialDesign = optimize.DefaultInitialDesignSize
	}
	if req.InitialDesign > req.Budget {
		req.InitialDesign = req.Budget
	}
	if req.Workers <= 0 {
		req.Workers = defaultWorkers
	}
	if req.CheckpointEvery <= 0 {
		req.CheckpointEvery = defaultCheckpointEvery
	}
	if req.Acquisition == "" {
		req.Acquisition = acquisition.TagEI
	}
	if req.Sampler == "" {
		req.Sampler = acquisition.SamplerMutation
	}
	evaluate := req.Evaluate
	if evaluate == nil {
		var err error
		evaluate, err = objectiveFromName(req.Objective, req.Target)
		if err != nil {
			return RunSummary{}, err
		}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	base, err := buildSpace(req.Grammar)
	if err != nil {
		return RunSummary{}, err
	}

	opt, err := optimize.New(optimize.Config{
		Space:             base,
		AcquisitionTag:    req.Acquisition,
		SamplerName:       req.Sampler,
		InitialDesignSize: req.InitialDesign,
		NCandidates:       req.NCandidates,
		Patience:          req.Patience,
		RandomInterleave:  req.RandomInterleave,
		Seed:              req.Seed,
	})
	if err != nil {
		return RunSummary{}, err
	}

	var (
		history    []optimize.Observation
		allRecords []model.EvaluationRecord
		resumed    bool
	)
	if req.Resume {
		checkpoint, ok, err := c.store.GetCheckpoint(ctx, req.RunID)
		if err != nil {
			return RunSummary{}, err
		}
		if !ok {
			return RunSummary{}, fmt.Errorf("no checkpoint for run id: %s", req.RunID)
		}
		var st optimize.State
		if err := json.Unmarshal(checkpoint.State, &st); err != nil {
			return RunSummary{}, fmt.Errorf("decode checkpoint state: %w", err)
		}
		if err := opt.Restore(st); err != nil {
			return RunSummary{}, err
		}
		history, err = observationsFromState(base, st)
		if err != nil {
			return RunSummary{}, err
		}
		if records, ok, err := c.store.GetEvaluations(ctx, req.RunID); err != nil {
			return RunSummary{}, err
		} else if ok {
			allRecords = records
		}
		resumed = true
	}

	best := math.Inf(1)
	var bestValues map[string]string
	bestByStep := make([]float64, 0, req.Budget)
	for _, obs := range history {
		if obs.Loss < best {
			best = obs.Loss
			bestValues = obs.Config.Serialize()
		}
		bestByStep = append(bestByStep, best)
	}

	run := model.RunRecord{
		VersionedRecord: versionedRecord(),
		ID:              req.RunID,
		Objective:       req.Objective,
		Acquisition:     req.Acquisition,
		Sampler:         req.Sampler,
		Seed:            req.Seed,
		Budget:          req.Budget,
		Evaluated:       len(history),
		Status:          model.RunStatusRunning,
		CreatedAtUTC:    createdAt,
	}
	if len(history) > 0 {
		run.BestLoss = best
		run.BestValues = bestValues
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, err
	}

	sinceCheckpoint := 0
	for len(history) < req.Budget {
		if err := ctx.Err(); err != nil {
			return RunSummary{}, err
		}

		batch := 1
		if remaining := req.InitialDesign - len(history); remaining > 0 {
			batch = remaining
		}
		if len(history)+batch > req.Budget {
			batch = req.Budget - len(history)
		}

		proposals := make([]proposal, 0, batch)
		pending := make([]*space.SearchSpace, 0, batch)
		for i := 0; i < batch; i++ {
			if err := opt.LoadResults(history, pending); err != nil {
				return RunSummary{}, err
			}
			cfg, diag, err := opt.NextConfig(ctx)
			if err != nil {
				return RunSummary{}, err
			}
			proposals = append(proposals, proposal{config: cfg, diag: diag})
			pending = append(pending, cfg)
		}

		losses, err := evaluateBatch(ctx, evaluate, proposals, req.Workers)
		if err != nil {
			return RunSummary{}, err
		}

		for i, p := range proposals {
			history = append(history, optimize.Observation{Config: p.config, Loss: losses[i]})
			if losses[i] < best {
				best = losses[i]
				bestValues = p.config.Serialize()
			}
			bestByStep = append(bestByStep, best)
			allRecords = append(allRecords, model.EvaluationRecord{
				VersionedRecord: versionedRecord(),
				RunID:           req.RunID,
				Step:            len(history),
				ConfigID:        p.diag.ConfigID,
				Phase:           p.diag.Phase,
				Fingerprint:     p.diag.Fingerprint,
				Values:          p.config.Serialize(),
				Loss:            losses[i],
				Score:           p.diag.Score,
			})
		}
		if err := c.store.SaveEvaluations(ctx, req.RunID, allRecords); err != nil {
			return RunSummary{}, err
		}

		run.Evaluated = len(history)
		run.BestLoss = best
		run.BestValues = bestValues
		if err := c.store.SaveRun(ctx, run); err != nil {
			return RunSummary{}, err
		}

		sinceCheckpoint += batch
		if sinceCheckpoint >= req.CheckpointEvery || len(history) == req.Budget {
			if err := c.saveCheckpoint(ctx, opt, req.RunID, history); err != nil {
				return RunSummary{}, err
			}
			sinceCheckpoint = 0
		}
	}

	run.Status = model.RunStatusCompleted
	run.Evaluated = len(history)
	run.BestLoss = best
	run.BestValues = bestValues
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:      req.RunID,
		Objective:  req.Objective,
		Evaluated:  len(history),
		BestLoss:   best,
		BestValues: bestValues,
		BestByStep: bestByStep,
		Resumed:    resumed,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}

	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			Objective:    r.Objective,
			Acquisition:  r.Acquisition,
			Sampler:      r.Sampler,
			Seed:         r.Seed,
			Budget:       r.Budget,
			Evaluated:    r.Evaluated,
			Status:       r.Status,
			BestLoss:     r.BestLoss,
		})
	}
	return out, nil
}

func (c *Client) Trace(ctx context.Context, req TraceRequest) ([]TraceItem, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	runID := req.RunID
	if req.Latest {
		var err error
		runID, err = c.latestRunID(ctx)
		if err != nil {
			return nil, err
		}
	}
	if runID == "" {
		return nil, errors.New("trace requires run id or latest")
	}

	records, ok, err := c.store.GetEvaluations(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("evaluations not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}

	out := make([]TraceItem, 0, len(records))
	for _, rec := range records {
		out = append(out, TraceItem{
			Step:        rec.Step,
			ConfigID:    rec.ConfigID,
			Phase:       rec.Phase,
			Fingerprint: rec.Fingerprint,
			Values:      rec.Values,
			Loss:        rec.Loss,
			Score:       rec.Score,
		})
	}
	return out, nil
}

func (c *Client) Best(ctx context.Context, req BestRequest) (BestResult, error) {
	if req.RunID != "" && req.Latest {
		return BestResult{}, errors.New("use either run id or latest")
	}
	if err := c.ensureStore(ctx); err != nil {
		return BestResult{}, err
	}

	runID := req.RunID
	if req.Latest {
		var err error
		runID, err = c.latestRunID(ctx)
		if err != nil {
			return BestResult{}, err
		}
	}
	if runID == "" {
		return BestResult{}, errors.New("best requires run id or latest")
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return BestResult{}, err
	}
	if !ok {
		return BestResult{}, fmt.Errorf("run not found: %s", runID)
	}
	if run.Evaluated == 0 {
		return BestResult{}, fmt.Errorf("run %s has no evaluations yet", runID)
	}
	return BestResult{
		RunID:     run.ID,
		Objective: run.Objective,
		Loss:      run.BestLoss,
		Values:    run.BestValues,
	}, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	if err := c.ensureStore(ctx); err != nil {
		return ExportSummary{}, err
	}

	runID := req.RunID
	if req.Latest {
		var err error
		runID, err = c.latestRunID(ctx)
		if err != nil {
			return ExportSummary{}, err
		}
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	evaluations, _, err := c.store.GetEvaluations(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	payload := struct {
		Run         model.RunRecord          `json:"run"`
		Evaluations []model.EvaluationRecord `json:"evaluations"`
	}{Run: run, Evaluations: evaluations}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ExportSummary{}, err
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return ExportSummary{}, err
	}
	path := filepath.Join(req.OutDir, runID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Path: filepath.Clean(path)}, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) latestRunID(ctx context.Context) (string, error) {
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	latest := runs[0]
	for _, r := range runs[1:] {
		if r.CreatedAtUTC > latest.CreatedAtUTC {
			latest = r
		}
	}
	return latest.ID, nil
}

func (c *Client) saveCheckpoint(ctx context.Context, opt *optimize.Optimizer, runID string, history []optimize.Observation) error {
	if err := opt.LoadResults(history, nil); err != nil {
		return err
	}
	st, err := opt.State()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.store.SaveCheckpoint(ctx, model.CheckpointRecord{
		VersionedRecord: versionedRecord(),
		RunID:           runID,
		Step:            len(history),
		State:           raw,
	})
}

type proposal struct {
	config *space.SearchSpace
	diag   optimize.StepDiagnostics
}

// evaluateBatch scores a batch of proposals on a bounded worker pool. Losses
// come back in proposal order; the first evaluation error aborts the batch.
func evaluateBatch(ctx context.Context, evaluate EvaluateFn, proposals []proposal, workers int) ([]float64, error) {
	type job struct {
		idx int
		cfg *space.SearchSpace
	}
	type result struct {
		idx  int
		loss float64
		err  error
	}

	jobs := make(chan job)
	results := make(chan result, len(proposals))

	if workers > len(proposals) {
		workers = len(proposals)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				loss, err := evaluate(ctx, j.cfg)
				results <- result{idx: j.idx, loss: loss, err: err}
			}
		}()
	}

	for i := range proposals {
		jobs <- job{idx: i, cfg: proposals[i].config}
	}
	close(jobs)
	wg.Wait()
	close(results)

	losses := make([]float64, len(proposals))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		if math.IsNaN(res.loss) || math.IsInf(res.loss, 0) {
			return nil, fmt.Errorf("objective returned non-finite loss %v", res.loss)
		}
		losses[res.idx] = res.loss
	}
	return losses, nil
}

func buildSpace(grammarText string) (*space.SearchSpace, error) {
	if grammarText == "" {
		grammarText = DemoGrammar
	}
	g, err := grammar.NewGrammar(grammarText)
	if err != nil {
		return nil, err
	}
	gp, err := param.NewGraph(g, defaultCFactor)
	if err != nil {
		return nil, err
	}
	return space.New(space.Named{Name: "expr", Param: gp})
}

func observationsFromState(base *space.SearchSpace, st optimize.State) ([]optimize.Observation, error) {
	out := make([]optimize.Observation, 0, len(st.Evaluated))
	for _, saved := range st.Evaluated {
		cfg := base.Clone()
		if err := cfg.LoadSerialized(saved.Values); err != nil {
			return nil, err
		}
		out = append(out, optimize.Observation{Config: cfg, Loss: saved.Loss})
	}
	return out, nil
}

func versionedRecord() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: storage.CurrentSchemaVersion,
		CodecVersion:  storage.CurrentCodecVersion,
	}
}
