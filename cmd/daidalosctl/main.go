package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"daidalos/internal/storage"
	api "daidalos/pkg/daidalos"
)

const exportsDir = "exports"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "trace":
		return runTrace(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config path, YAML or JSON")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	resume := fs.Bool("resume", false, "resume run-id from its latest checkpoint")
	objectiveName := fs.String("objective", "", "objective: tree_size|arith (empty uses arith)")
	target := fs.Float64("target", 0, "objective target value (0 uses the objective default)")
	grammarFile := fs.String("grammar-file", "", "grammar definition path (empty uses the built-in demo grammar)")
	seed := fs.Uint64("seed", 0, "rng seed (0 uses 1; resume inherits the stored seed)")
	budget := fs.Int("budget", 0, "total evaluation budget (0 uses 30)")
	initialDesign := fs.Int("initial-design", 0, "random evaluations before the model takes over (0 uses 10)")
	nCandidates := fs.Int("n-candidates", 0, "candidates scored per acquisition step (0 uses 200)")
	patience := fs.Int("patience", 0, "sampler retry budget (0 uses 50)")
	acquisitionTag := fs.String("acquisition", "", "acquisition function: ei|aei|ucb|pi|thompson (empty uses ei)")
	samplerName := fs.String("sampler", "", "candidate sampler: random|mutation (empty uses mutation)")
	randomInterleave := fs.Float64("random-interleave", 0, "probability of replacing a model proposal with a random draw")
	workers := fs.Int("workers", 0, "initial design evaluation workers (0 uses 4)")
	checkpointEvery := fs.Int("checkpoint-every", 0, "evaluations between checkpoints (0 uses 5)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = api.RunRequest{
			RunID:            *runID,
			Objective:        *objectiveName,
			Target:           *target,
			Seed:             *seed,
			Budget:           *budget,
			InitialDesign:    *initialDesign,
			NCandidates:      *nCandidates,
			Patience:         *patience,
			Acquisition:      *acquisitionTag,
			Sampler:          *samplerName,
			RandomInterleave: *randomInterleave,
			Workers:          *workers,
			CheckpointEvery:  *checkpointEvery,
			Resume:           *resume,
		}
	} else {
		err := overrideFromFlags(&req, setFlags, map[string]any{
			"run-id":            *runID,
			"resume":            *resume,
			"objective":         *objectiveName,
			"target":            *target,
			"seed":              *seed,
			"budget":            *budget,
			"initial-design":    *initialDesign,
			"n-candidates":      *nCandidates,
			"patience":          *patience,
			"acquisition":       *acquisitionTag,
			"sampler":           *samplerName,
			"random-interleave": *randomInterleave,
			"workers":           *workers,
			"checkpoint-every":  *checkpointEvery,
		})
		if err != nil {
			return err
		}
	}
	if *grammarFile != "" {
		text, err := os.ReadFile(*grammarFile)
		if err != nil {
			return fmt.Errorf("load grammar file: %w", err)
		}
		req.Grammar = string(text)
	}
	if req.RandomInterleave < 0 || req.RandomInterleave > 1 {
		return errors.New("random-interleave must be within [0, 1]")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s objective=%s evaluated=%d resumed=%t\n",
		summary.RunID, summary.Objective, summary.Evaluated, summary.Resumed)
	for i, bestLoss := range summary.BestByStep {
		fmt.Printf("step=%d best_loss=%.6f\n", i+1, bestLoss)
	}
	fmt.Printf("final_best_loss=%.6f\n", summary.BestLoss)
	for _, name := range sortedKeys(summary.BestValues) {
		fmt.Printf("best_value %s=%s\n", name, summary.BestValues[name])
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, api.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID        string  `json:"run_id"`
			CreatedAtUTC string  `json:"created_at_utc"`
			Objective    string  `json:"objective"`
			Acquisition  string  `json:"acquisition"`
			Sampler      string  `json:"sampler"`
			Seed         uint64  `json:"seed"`
			Budget       int     `json:"budget"`
			Evaluated    int     `json:"evaluated"`
			Status       string  `json:"status"`
			BestLoss     float64 `json:"best_loss"`
		}
		out := make([]runsItem, 0, len(items))
		for _, item := range items {
			out = append(out, runsItem{
				RunID:        item.RunID,
				CreatedAtUTC: item.CreatedAtUTC,
				Objective:    item.Objective,
				Acquisition:  item.Acquisition,
				Sampler:      item.Sampler,
				Seed:         item.Seed,
				Budget:       item.Budget,
				Evaluated:    item.Evaluated,
				Status:       item.Status,
				BestLoss:     item.BestLoss,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created=%s objective=%s acquisition=%s sampler=%s seed=%d evaluated=%d/%d status=%s best_loss=%.6f\n",
			item.RunID, item.CreatedAtUTC, item.Objective, item.Acquisition, item.Sampler,
			item.Seed, item.Evaluated, item.Budget, item.Status, item.BestLoss)
	}
	return nil
}

func runTrace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to trace")
	latest := fs.Bool("latest", false, "trace the most recent run")
	limit := fs.Int("limit", 0, "max evaluations to show (0 shows all)")
	jsonOut := fs.Bool("json", false, "emit trace as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Trace(ctx, api.TraceRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}

	if *jsonOut {
		type traceItem struct {
			Step        int               `json:"step"`
			ConfigID    string            `json:"config_id"`
			Phase       string            `json:"phase"`
			Fingerprint string            `json:"fingerprint,omitempty"`
			Values      map[string]string `json:"values"`
			Loss        float64           `json:"loss"`
			Score       float64           `json:"score,omitempty"`
		}
		out := make([]traceItem, 0, len(items))
		for _, item := range items {
			out = append(out, traceItem{
				Step:        item.Step,
				ConfigID:    item.ConfigID,
				Phase:       item.Phase,
				Fingerprint: item.Fingerprint,
				Values:      item.Values,
				Loss:        item.Loss,
				Score:       item.Score,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, item := range items {
		fmt.Printf("step=%d phase=%s config_id=%s loss=%.6f score=%.6f fingerprint=%s\n",
			item.Step, item.Phase, item.ConfigID, item.Loss, item.Score, item.Fingerprint)
	}
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to inspect")
	latest := fs.Bool("latest", false, "inspect the most recent run")
	jsonOut := fs.Bool("json", false, "emit best configuration as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Best(ctx, api.BestRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	if *jsonOut {
		out := struct {
			RunID     string            `json:"run_id"`
			Objective string            `json:"objective"`
			Loss      float64           `json:"loss"`
			Values    map[string]string `json:"values"`
		}{RunID: result.RunID, Objective: result.Objective, Loss: result.Loss, Values: result.Values}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("run_id=%s objective=%s best_loss=%.6f\n", result.RunID, result.Objective, result.Loss)
	for _, name := range sortedKeys(result.Values) {
		fmt.Printf("best_value %s=%s\n", name, result.Values[name])
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id to export")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", "", "output directory (empty uses ./exports)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "daidalos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, api.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s path=%s\n", summary.RunID, summary.Path)
	return nil
}

func newClient(storeKind, dbPath string) (*api.Client, error) {
	return api.New(api.Options{
		StoreKind:  storeKind,
		DBPath:     dbPath,
		ExportsDir: exportsDir,
	})
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for name := range values {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: daidalosctl <init|reset|run|runs|trace|best|export> [flags]", msg)
}
