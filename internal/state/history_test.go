package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/weave/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "weave.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id string, startedAt time.Time) RunRecord {
	return RunRecord{
		ID:          id,
		PlanID:      "plan-1",
		Mode:        "pipeline",
		Prompt:      "do the thing",
		Status:      "completed",
		Usage:       models.TokenUsage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(time.Minute),
		Steps: []StepRecord{
			{
				StepID:      "analyze",
				Status:      "completed",
				Output:      "the analysis",
				Model:       "m1",
				Duration:    30 * time.Second,
				Usage:       models.TokenUsage{InputTokens: 60, OutputTokens: 30, TotalTokens: 90},
				StartedAt:   startedAt,
				CompletedAt: startedAt.Add(30 * time.Second),
			},
			{
				StepID:      "implement",
				Status:      "failed",
				Error:       "backend exploded",
				Duration:    10 * time.Second,
				StartedAt:   startedAt.Add(30 * time.Second),
				CompletedAt: startedAt.Add(40 * time.Second),
			},
		},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := db.SaveRun(sampleRun("run-1", started)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.PlanID != "plan-1" || got.Status != "completed" {
		t.Errorf("run = %+v", got)
	}
	if got.Usage.TotalTokens != 150 {
		t.Errorf("TotalTokens = %d, want 150", got.Usage.TotalTokens)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(got.Steps))
	}
	if got.Steps[0].StepID != "analyze" || got.Steps[0].Output != "the analysis" {
		t.Errorf("first step = %+v", got.Steps[0])
	}
	if got.Steps[1].Error != "backend exploded" {
		t.Errorf("second step error = %q", got.Steps[1].Error)
	}
	if got.Steps[0].Duration != 30*time.Second {
		t.Errorf("duration = %v, want 30s", got.Steps[0].Duration)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetRun("missing"); err == nil {
		t.Error("expected an error for a missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		rec := sampleRun(id, base.Add(time.Duration(i)*time.Hour))
		rec.Steps = nil
		if err := db.SaveRun(rec); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("order = [%s %s], want newest first", runs[0].ID, runs[1].ID)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := openTestDB(t)

	old := sampleRun("run-old", time.Now().Add(-48*time.Hour))
	old.Steps = nil
	recent := sampleRun("run-new", time.Now())
	recent.Steps = nil
	if err := db.SaveRun(old); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := db.SaveRun(recent); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	count, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns: %v", err)
	}
	if count != 1 {
		t.Errorf("purged %d runs, want 1", count)
	}
	if _, err := db.GetRun("run-new"); err != nil {
		t.Errorf("recent run should survive: %v", err)
	}
}
