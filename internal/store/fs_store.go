package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// FSStore implements the Store interface on the filesystem.
// Runs are stored in a directory structure: <baseDir>/runs/<runID>/
//
// Record writes use temp file + rename, so concurrent readers never see a
// partially written run.json.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string { return fs.baseDir }

// checkID rejects IDs that would escape the runs directory.
func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("run ID cannot be empty")
	}
	if id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("invalid run ID %q", id)
	}
	return nil
}

func (fs *FSStore) runDir(id string) string {
	return filepath.Join(fs.baseDir, "runs", id)
}

func (fs *FSStore) recordPath(id string) string {
	return filepath.Join(fs.runDir(id), "run.json")
}

// SaveRun validates record, writes the trace and then atomically writes
// run.json. A run without run.json is ignored by ListRuns, so a failure
// part way leaves no visible run behind.
func (fs *FSStore) SaveRun(record *RunRecord, trajectories []*trajectory.Trajectory) error {
	if record == nil {
		return fmt.Errorf("run record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if err := checkID(record.ID); err != nil {
		return err
	}

	if err := os.MkdirAll(fs.runDir(record.ID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	tw, err := NewTraceWriter(fs.baseDir, record.ID)
	if err != nil {
		return err
	}
	for _, entry := range Entries(trajectories) {
		if err := tw.Write(entry); err != nil {
			tw.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}

	finalPath := fs.recordPath(record.ID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp run file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename run file: %w", err)
	}

	slog.Debug("Run saved", "run_id", record.ID, "path", finalPath)
	return nil
}

// LoadRun retrieves the record of a saved run.
func (fs *FSStore) LoadRun(id string) (*RunRecord, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	path := fs.recordPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read run file: %w", err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}

	slog.Debug("Run loaded", "run_id", id, "path", path)
	return &record, nil
}

// LoadTrace returns the trace entries of a saved run.
func (fs *FSStore) LoadTrace(id string) ([]TraceEntry, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	tr, err := NewTraceReader(fs.baseDir, id)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}

// ListRuns returns metadata for all saved runs, newest first.
func (fs *FSStore) ListRuns() ([]RunInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []RunInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if _, err := os.Stat(fs.recordPath(id)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadRun(id)
		if err != nil {
			slog.Warn("Failed to load run for listing", "run_id", id, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed runs", "count", len(infos))
	return infos, nil
}

// DeleteRun removes the run directory and all of its files.
func (fs *FSStore) DeleteRun(id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	dir := fs.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return &NotFoundError{RunID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Run deleted", "run_id", id, "path", dir)
	return nil
}
