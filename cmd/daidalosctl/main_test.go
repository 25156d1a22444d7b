package main

import (
	"context"
	"strings"
	"testing"
)

func TestRunDispatcherRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage in error, got %v", err)
	}
}

func TestRunDispatcherRequiresCommand(t *testing.T) {
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
}

func TestRunCommandCompletesWithMemoryStore(t *testing.T) {
	args := []string{
		"run",
		"-budget", "3",
		"-initial-design", "2",
		"-n-candidates", "10",
		"-seed", "5",
		"-workers", "2",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run command: %v", err)
	}
}

func TestRunCommandWithConfigFile(t *testing.T) {
	path := writeConfig(t, "run.yaml", `
objective: tree_size
target: 4
budget: 3
initial_design: 2
n_candidates: 10
seed: 13
`)
	args := []string{"run", "-config", path, "-budget", "2"}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("run with config: %v", err)
	}
}

func TestRunCommandRejectsBadInterleave(t *testing.T) {
	err := run(context.Background(), []string{"run", "-random-interleave", "2"})
	if err == nil || !strings.Contains(err.Error(), "random-interleave") {
		t.Fatalf("expected interleave validation error, got %v", err)
	}
}

func TestRunsCommandEmptyStore(t *testing.T) {
	if err := run(context.Background(), []string{"runs"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
}

func TestInitAndResetCommands(t *testing.T) {
	if err := run(context.Background(), []string{"init"}); err != nil {
		t.Fatalf("init command: %v", err)
	}
	if err := run(context.Background(), []string{"reset"}); err != nil {
		t.Fatalf("reset command: %v", err)
	}
}

func TestTraceCommandRequiresRunSelector(t *testing.T) {
	err := run(context.Background(), []string{"trace"})
	if err == nil || !strings.Contains(err.Error(), "run id or latest") {
		t.Fatalf("expected selector error, got %v", err)
	}
}
