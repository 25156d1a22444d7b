package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	api "daidalos/pkg/daidalos"
)

// loadRunRequestFromConfig reads a run request from a YAML or JSON file. The
// format follows the file extension; keys are snake_case and unknown keys are
// ignored so configs stay forward compatible.
func loadRunRequestFromConfig(path string) (api.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.RunRequest{}, err
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return api.RunRequest{}, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return api.RunRequest{}, fmt.Errorf("parse json config: %w", err)
		}
	}

	var req api.RunRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asBool(raw["resume"]); ok {
		req.Resume = v
	}
	if v, ok := asString(raw["objective"]); ok {
		req.Objective = v
	}
	if v, ok := asFloat64(raw["target"]); ok {
		req.Target = v
	}
	if v, ok := asString(raw["grammar"]); ok {
		req.Grammar = v
	}
	if v, ok := asString(raw["grammar_file"]); ok && req.Grammar == "" {
		text, err := os.ReadFile(v)
		if err != nil {
			return api.RunRequest{}, fmt.Errorf("load grammar file: %w", err)
		}
		req.Grammar = string(text)
	}
	if v, ok := asUint64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["budget"]); ok {
		req.Budget = v
	}
	if v, ok := asInt(raw["initial_design"]); ok {
		req.InitialDesign = v
	}
	if v, ok := asInt(raw["n_candidates"]); ok {
		req.NCandidates = v
	}
	if v, ok := asInt(raw["patience"]); ok {
		req.Patience = v
	}
	if v, ok := asString(raw["acquisition"]); ok {
		req.Acquisition = v
	}
	if v, ok := asString(raw["sampler"]); ok {
		req.Sampler = v
	}
	if v, ok := asFloat64(raw["random_interleave"]); ok {
		req.RandomInterleave = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asInt(raw["checkpoint_every"]); ok {
		req.CheckpointEvery = v
	}
	return req, nil
}

func loadOrDefaultRunRequest(configPath string) (api.RunRequest, error) {
	if configPath == "" {
		return api.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return api.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}

// overrideFromFlags applies explicitly set command line flags on top of a
// config-file request.
func overrideFromFlags(req *api.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "resume":
			req.Resume = v.(bool)
		case "objective":
			req.Objective = v.(string)
		case "target":
			req.Target = v.(float64)
		case "seed":
			req.Seed = v.(uint64)
		case "budget":
			req.Budget = v.(int)
		case "initial-design":
			req.InitialDesign = v.(int)
		case "n-candidates":
			req.NCandidates = v.(int)
		case "patience":
			req.Patience = v.(int)
		case "acquisition":
			req.Acquisition = v.(string)
		case "sampler":
			req.Sampler = v.(string)
		case "random-interleave":
			req.RandomInterleave = v.(float64)
		case "workers":
			req.Workers = v.(int)
		case "checkpoint-every":
			req.CheckpointEvery = v.(int)
		}
	}
	return nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case uint64:
		return x, true
	case float64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
