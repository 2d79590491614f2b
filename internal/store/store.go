package store

import "github.com/cwbudde/minimizeme/internal/trajectory"

// Store defines the interface for run archive persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a run doesn't exist (for Load/Delete)
//   - Return a *ValidationError for records that fail Validate
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRun atomically writes the run record and replaces its trace with
	// the states of trajectories. Records are validated before anything is
	// written.
	SaveRun(record *RunRecord, trajectories []*trajectory.Trajectory) error

	// LoadRun retrieves the record of a saved run.
	// Returns ErrNotFound if no run exists for this ID.
	LoadRun(id string) (*RunRecord, error)

	// LoadTrace returns every trace entry of a saved run in file order.
	LoadTrace(id string) ([]TraceEntry, error)

	// ListRuns returns metadata for all saved runs, newest first.
	// Unreadable runs are skipped.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run directory with all of its files.
	// Returns ErrNotFound if no run exists for this ID.
	DeleteRun(id string) error
}

// ErrNotFound is returned when a requested run does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
