package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// TraceEntry is one visited state of one optimizer.
// Each entry is serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	// Optimizer is the kind that produced the state
	Optimizer opt.Kind `json:"optimizer"`

	// Index is the position of the optimizer in the run record, so that two
	// runs of the same kind stay apart
	Index int `json:"index"`

	// Step is 0 for the start point
	Step int `json:"step"`

	State trajectory.State `json:"state"`
}

// Entries flattens trajectories into trace entries in optimizer order.
func Entries(trajectories []*trajectory.Trajectory) []TraceEntry {
	var entries []TraceEntry
	for i, t := range trajectories {
		for step, s := range t.States {
			entries = append(entries, TraceEntry{Optimizer: t.Kind, Index: i, Step: step, State: s})
		}
	}
	return entries
}

// Group splits entries back into per-optimizer state sequences, ordered by
// Index.
func Group(entries []TraceEntry) [][]trajectory.State {
	var groups [][]trajectory.State
	for _, e := range entries {
		for len(groups) <= e.Index {
			groups = append(groups, nil)
		}
		groups[e.Index] = append(groups[e.Index], e.State)
	}
	return groups
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID, "trace.jsonl")
}

// TraceWriter writes trace entries to a JSONL file through a buffer. It is
// not safe for concurrent use.
type TraceWriter struct {
	file   *os.File
	writer *bufio.Writer
}

// NewTraceWriter creates (or truncates) the trace file of a run at
// <baseDir>/runs/<runID>/trace.jsonl.
func NewTraceWriter(baseDir, runID string) (*TraceWriter, error) {
	path := tracePath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
	}, nil
}

// Write appends a trace entry. It reaches the file on Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace file of a run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read reads the next trace entry from the file.
// Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}
