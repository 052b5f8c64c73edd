package store

import (
	"math"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestWriteAndLoadRun(t *testing.T) {
	s := openTestStore(t)

	steps := []StepResult{
		{RunID: "aci-rf", Step: 0, Point: 40.0, Lower: 32.1, Upper: 48.7, Realized: 41.0, EffectiveAlpha: 0.1},
		{RunID: "aci-rf", Step: 1, Point: 42.5, Lower: 33.0, Upper: 50.2, Realized: 60.0, EffectiveAlpha: 0.064},
	}
	if err := s.BatchWriteSteps(steps); err != nil {
		t.Fatalf("BatchWriteSteps: %v", err)
	}

	got, err := s.LoadRun("aci-rf")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d steps, want 2", len(got))
	}
	if got[0].Step != 0 || got[1].Step != 1 {
		t.Errorf("steps out of order: %+v", got)
	}
	if got[1].Lower != 33.0 || got[1].Upper != 50.2 {
		t.Errorf("step 1 bounds: got (%v, %v)", got[1].Lower, got[1].Upper)
	}
}

func TestWriteStepUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.WriteStep(StepResult{RunID: "r", Step: 0, Point: 1}); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}
	if err := s.WriteStep(StepResult{RunID: "r", Step: 0, Point: 2}); err != nil {
		t.Fatalf("WriteStep: %v", err)
	}

	got, err := s.LoadRun("r")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if len(got) != 1 || got[0].Point != 2 {
		t.Errorf("upsert: got %+v", got)
	}
}

func TestRunsAndTruncate(t *testing.T) {
	s := openTestStore(t)

	s.WriteStep(StepResult{RunID: "b", Step: 0})
	s.WriteStep(StepResult{RunID: "a", Step: 0})

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0] != "a" || runs[1] != "b" {
		t.Errorf("runs: got %v", runs)
	}

	if err := s.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	runs, _ = s.Runs()
	if len(runs) != 0 {
		t.Errorf("after truncate: got %v", runs)
	}
}

func TestRunSummary(t *testing.T) {
	s := openTestStore(t)

	s.BatchWriteSteps([]StepResult{
		{RunID: "r", Step: 0, Lower: 0, Upper: 10, Realized: 5},
		{RunID: "r", Step: 1, Lower: 0, Upper: 10, Realized: 50},
	})

	coverage, width, err := s.RunSummary("r")
	if err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	if math.Abs(coverage-0.5) > 1e-12 {
		t.Errorf("coverage: got %v, want 0.5", coverage)
	}
	if math.Abs(width-10) > 1e-12 {
		t.Errorf("width: got %v, want 10", width)
	}
}

func TestSanitizeRunID(t *testing.T) {
	if got := SanitizeRunID("ACP 0.04/RF"); got != "ACP_0_04_RF" {
		t.Errorf("got %q", got)
	}
}
