package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store, tempDir
}

// createTestRun computes two short trajectories on the bowl and wraps them
// in a record.
func createTestRun(t *testing.T) (*RunRecord, []*trajectory.Trajectory) {
	t.Helper()

	bowl := catalog.Default()
	gd := opt.DefaultConfig(opt.GD)
	gd.LearningRate = 0.1
	gd.Iterations = 5
	adam := opt.DefaultConfig(opt.Adam)
	adam.Iterations = 5
	cfgs := []opt.Config{gd, adam}

	var trajectories []*trajectory.Trajectory
	var summaries []trajectory.Summary
	for _, cfg := range cfgs {
		tr, err := trajectory.Run(bowl, 3, 3, cfg)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		trajectories = append(trajectories, tr)
		summaries = append(summaries, trajectory.Summarize(tr, bowl.Minima, trajectory.DefaultConvergenceConfig()))
	}

	return NewRunRecord(bowl.Key, bowl.Expression, 3, 3, trajectories, summaries), trajectories
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if store.BaseDir() != dir {
		t.Errorf("Expected base dir %s, got %s", dir, store.BaseDir())
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	store, tempDir := setupTestStore(t)
	record, trajectories := createTestRun(t)

	if err := store.SaveRun(record, trajectories); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	for _, name := range []string{"run.json", "trace.jsonl"} {
		path := filepath.Join(tempDir, "runs", record.ID, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			t.Fatalf("%s was not created at %s", name, path)
		}
	}
	if _, err := os.Stat(filepath.Join(tempDir, "runs", record.ID, "run.json.tmp")); !os.IsNotExist(err) {
		t.Error("Temp file was not cleaned up")
	}

	loaded, err := store.LoadRun(record.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.ID != record.ID || loaded.Function != "bowl" || loaded.Expression != record.Expression {
		t.Errorf("Loaded record mismatch: %+v", loaded)
	}
	if len(loaded.Optimizers) != 2 {
		t.Fatalf("Expected 2 optimizers, got %d", len(loaded.Optimizers))
	}
	if loaded.Optimizers[1].Config.Kind != opt.Adam {
		t.Errorf("Expected adam second, got %s", loaded.Optimizers[1].Config.Kind)
	}
	if loaded.Optimizers[0].Summary.Final != record.Optimizers[0].Summary.Final {
		t.Errorf("Summary mismatch: %+v vs %+v", loaded.Optimizers[0].Summary.Final, record.Optimizers[0].Summary.Final)
	}
	if !loaded.Timestamp.Equal(record.Timestamp) {
		t.Errorf("Timestamp mismatch: %v vs %v", loaded.Timestamp, record.Timestamp)
	}
}

func TestSaveRunRejectsInvalidRecord(t *testing.T) {
	store, tempDir := setupTestStore(t)
	record, trajectories := createTestRun(t)
	record.Function = ""

	err := store.SaveRun(record, trajectories)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "runs", record.ID)); !os.IsNotExist(err) {
		t.Error("Invalid run should not create a directory")
	}

	if err := store.SaveRun(nil, nil); err == nil {
		t.Error("Expected error for nil record")
	}
}

func TestLoadTrace(t *testing.T) {
	store, _ := setupTestStore(t)
	record, trajectories := createTestRun(t)
	if err := store.SaveRun(record, trajectories); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	entries, err := store.LoadTrace(record.ID)
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(entries) != 12 {
		t.Fatalf("Expected 12 entries (2 x 6 states), got %d", len(entries))
	}

	groups := Group(entries)
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	for i, g := range groups {
		want := trajectories[i].States
		if len(g) != len(want) {
			t.Fatalf("Group %d: expected %d states, got %d", i, len(want), len(g))
		}
		for j := range g {
			if g[j] != want[j] {
				t.Errorf("Group %d state %d: expected %+v, got %+v", i, j, want[j], g[j])
			}
		}
	}
}

func TestLoadRunNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadRun("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	_, err = store.LoadTrace("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for trace, got %v", err)
	}
}

func TestInvalidIDs(t *testing.T) {
	store, _ := setupTestStore(t)

	for _, id := range []string{"", ".", "..", "../escape", "a/b"} {
		if _, err := store.LoadRun(id); err == nil {
			t.Errorf("LoadRun(%q): expected error", id)
		}
		if err := store.DeleteRun(id); err == nil {
			t.Errorf("DeleteRun(%q): expected error", id)
		}
	}
}

func TestListRuns(t *testing.T) {
	store, tempDir := setupTestStore(t)

	infos, err := store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns on empty store failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected no runs, got %d", len(infos))
	}

	older, trajectories := createTestRun(t)
	older.Timestamp = time.Now().Add(-time.Hour)
	newer, _ := createTestRun(t)
	for _, r := range []*RunRecord{older, newer} {
		if err := store.SaveRun(r, trajectories); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	// directories without run.json and corrupted records are skipped
	if err := os.MkdirAll(filepath.Join(tempDir, "runs", "partial"), 0755); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(tempDir, "runs", "corrupt")
	if err := os.MkdirAll(corrupt, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(corrupt, "run.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err = store.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(infos))
	}
	if infos[0].ID != newer.ID || infos[1].ID != older.ID {
		t.Errorf("Expected newest first, got %s, %s", infos[0].ID, infos[1].ID)
	}
	if len(infos[0].Optimizers) != 2 || infos[0].BestValue == nil {
		t.Errorf("Unexpected info: %+v", infos[0])
	}
}

func TestDeleteRun(t *testing.T) {
	store, tempDir := setupTestStore(t)
	record, trajectories := createTestRun(t)
	if err := store.SaveRun(record, trajectories); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	if err := store.DeleteRun(record.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "runs", record.ID)); !os.IsNotExist(err) {
		t.Error("Run directory still exists")
	}
	if err := store.DeleteRun(record.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}
