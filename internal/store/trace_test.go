package store

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	runID := "test-run-123"

	writer, err := NewTraceWriter(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Optimizer: opt.GD, Index: 0, Step: 0, State: trajectory.State{X: 3, Y: 3, Z: 18}},
		{Optimizer: opt.GD, Index: 0, Step: 1, State: trajectory.State{X: 2.4, Y: 2.4, Z: 11.52}},
		{Optimizer: opt.Adam, Index: 1, Step: 0, State: trajectory.State{X: 3, Y: 3, Z: 18}},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if _, err := os.Stat(tracePath); err != nil {
		t.Errorf("Expected trace file at %s: %v", tracePath, err)
	}

	reader, err := NewTraceReader(tmpDir, runID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	read, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(read) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(read))
	}
	for i := range entries {
		if read[i] != entries[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i], read[i])
		}
	}
}

func TestTraceWriter_Truncates(t *testing.T) {
	tmpDir := t.TempDir()

	for i := 0; i < 2; i++ {
		w, err := NewTraceWriter(tmpDir, "run")
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Write(TraceEntry{Optimizer: opt.GD, Step: i}); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewTraceReader(tmpDir, "run")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	all, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Step != 1 {
		t.Errorf("Expected only the second write, got %+v", all)
	}
}

func TestTraceNonFiniteValue(t *testing.T) {
	entry := TraceEntry{Optimizer: opt.GD, State: trajectory.State{X: 0, Y: 1, Z: math.Inf(1)}}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"z":null`) {
		t.Errorf("Expected null z, got %s", data)
	}

	var back TraceEntry
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !math.IsNaN(back.State.Z) {
		t.Errorf("Expected NaN z after round trip, got %g", back.State.Z)
	}
}

func TestTraceReader_Read(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := NewTraceWriter(tmpDir, "run")
	if err != nil {
		t.Fatal(err)
	}
	w.Write(TraceEntry{Optimizer: opt.Nadam, Step: 7})
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := NewTraceReader(tmpDir, "run")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	e, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if e.Optimizer != opt.Nadam || e.Step != 7 {
		t.Errorf("Unexpected entry %+v", e)
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestTraceReader_Corrupt(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "runs", "bad")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "trace.jsonl"), []byte("{\"step\":1}\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := NewTraceReader(tmpDir, "bad")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.ReadAll(); err == nil {
		t.Error("Expected error for corrupt line")
	}
}

func TestEntriesAndGroup(t *testing.T) {
	trajectories := []*trajectory.Trajectory{
		{Kind: opt.GD, States: []trajectory.State{{X: 1}, {X: 2}}},
		{Kind: opt.GD, States: []trajectory.State{{X: 5}}},
	}

	entries := Entries(trajectories)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[2].Index != 1 || entries[2].Step != 0 {
		t.Errorf("Unexpected last entry %+v", entries[2])
	}

	groups := Group(entries)
	if len(groups) != 2 || len(groups[0]) != 2 || groups[1][0].X != 5 {
		t.Errorf("Unexpected groups %+v", groups)
	}
}
