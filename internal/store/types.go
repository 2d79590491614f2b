package store

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// OptimizerResult is the configuration and outcome of one optimizer in a
// saved run.
type OptimizerResult struct {
	Config  opt.Config         `json:"config"`
	Summary trajectory.Summary `json:"summary"`
}

// RunRecord is the persisted copy of one comparison: a function, a start
// point and the optimizers that ran from it. Trajectories are stored next to
// it in trace.jsonl.
type RunRecord struct {
	// ID is the unique identifier of the run
	ID string `json:"id"`

	// Function is the catalog key
	Function string `json:"function"`

	// Expression is the objective as text, so that runs remain readable
	// if the catalog changes
	Expression string `json:"expression"`

	StartX float64 `json:"startX"`
	StartY float64 `json:"startY"`

	Optimizers []OptimizerResult `json:"optimizers"`

	// Timestamp records when the run was saved
	Timestamp time.Time `json:"timestamp"`
}

// RunInfo contains metadata about a run without the per-optimizer details.
type RunInfo struct {
	ID         string     `json:"id"`
	Function   string     `json:"function"`
	Optimizers []opt.Kind `json:"optimizers"`
	// BestValue is the lowest objective value reached by any optimizer,
	// nil when every run failed before producing a finite value
	BestValue *float64  `json:"bestValue,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRunRecord creates a record with a fresh ID from computed trajectories.
func NewRunRecord(function, expression string, x0, y0 float64, trajectories []*trajectory.Trajectory, summaries []trajectory.Summary) *RunRecord {
	results := make([]OptimizerResult, len(trajectories))
	for i, t := range trajectories {
		results[i] = OptimizerResult{Config: t.Config, Summary: summaries[i]}
	}
	return &RunRecord{
		ID:         uuid.New().String(),
		Function:   function,
		Expression: expression,
		StartX:     x0,
		StartY:     y0,
		Optimizers: results,
		Timestamp:  time.Now(),
	}
}

// ToInfo converts a full RunRecord to RunInfo (metadata only).
func (r *RunRecord) ToInfo() RunInfo {
	info := RunInfo{
		ID:        r.ID,
		Function:  r.Function,
		Timestamp: r.Timestamp,
	}
	for _, o := range r.Optimizers {
		info.Optimizers = append(info.Optimizers, o.Config.Kind)
		z := o.Summary.Best.Z
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		if info.BestValue == nil || z < *info.BestValue {
			info.BestValue = &z
		}
	}
	return info
}

// Validate checks if the record has valid data.
// Returns a *ValidationError for the first invalid field.
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Function == "" {
		return &ValidationError{Field: "Function", Reason: "cannot be empty"}
	}
	if r.Expression == "" {
		return &ValidationError{Field: "Expression", Reason: "cannot be empty"}
	}
	if math.IsNaN(r.StartX) || math.IsInf(r.StartX, 0) || math.IsNaN(r.StartY) || math.IsInf(r.StartY, 0) {
		return &ValidationError{Field: "Start", Reason: "must be finite"}
	}
	if len(r.Optimizers) == 0 {
		return &ValidationError{Field: "Optimizers", Reason: "cannot be empty"}
	}
	for _, o := range r.Optimizers {
		if err := o.Config.Validate(); err != nil {
			return &ValidationError{Field: "Optimizers", Reason: err.Error()}
		}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
