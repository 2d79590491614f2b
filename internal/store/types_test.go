package store

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

func validRecord() *RunRecord {
	return &RunRecord{
		ID:         "run-1",
		Function:   "bowl",
		Expression: "x^2 + y^2",
		StartX:     3,
		StartY:     3,
		Optimizers: []OptimizerResult{
			{
				Config:  opt.DefaultConfig(opt.GD),
				Summary: trajectory.Summary{Kind: opt.GD, Best: trajectory.State{Z: 0.5}},
			},
			{
				Config:  opt.DefaultConfig(opt.Adam),
				Summary: trajectory.Summary{Kind: opt.Adam, Best: trajectory.State{Z: 0.25}},
			},
		},
		Timestamp: time.Now(),
	}
}

func TestRunRecordValidate(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("Valid record failed validation: %v", err)
	}

	tests := []struct {
		name   string
		modify func(r *RunRecord)
		field  string
	}{
		{"empty ID", func(r *RunRecord) { r.ID = "" }, "ID"},
		{"empty function", func(r *RunRecord) { r.Function = "" }, "Function"},
		{"empty expression", func(r *RunRecord) { r.Expression = "" }, "Expression"},
		{"NaN start", func(r *RunRecord) { r.StartX = math.NaN() }, "Start"},
		{"infinite start", func(r *RunRecord) { r.StartY = math.Inf(-1) }, "Start"},
		{"no optimizers", func(r *RunRecord) { r.Optimizers = nil }, "Optimizers"},
		{"bad config", func(r *RunRecord) { r.Optimizers[0].Config.LearningRate = -1 }, "Optimizers"},
		{"zero timestamp", func(r *RunRecord) { r.Timestamp = time.Time{} }, "Timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRecord()
			tt.modify(r)

			err := r.Validate()
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, validationErr.Field)
			}
		})
	}
}

func TestToInfo(t *testing.T) {
	r := validRecord()
	info := r.ToInfo()

	if info.ID != r.ID || info.Function != r.Function || !info.Timestamp.Equal(r.Timestamp) {
		t.Errorf("Metadata mismatch: %+v", info)
	}
	if len(info.Optimizers) != 2 || info.Optimizers[0] != opt.GD || info.Optimizers[1] != opt.Adam {
		t.Errorf("Unexpected optimizers %v", info.Optimizers)
	}
	if info.BestValue == nil || *info.BestValue != 0.25 {
		t.Errorf("Expected best value 0.25, got %v", info.BestValue)
	}

	// failed runs have no finite best value
	for i := range r.Optimizers {
		r.Optimizers[i].Summary.Best.Z = math.NaN()
	}
	if info := r.ToInfo(); info.BestValue != nil {
		t.Errorf("Expected nil best value, got %v", *info.BestValue)
	}
}

func TestNewRunRecord(t *testing.T) {
	trajectories := []*trajectory.Trajectory{
		{Kind: opt.GD, Config: opt.DefaultConfig(opt.GD), States: []trajectory.State{{X: 1, Y: 1, Z: 2}}},
	}
	summaries := []trajectory.Summary{{Kind: opt.GD}}

	a := NewRunRecord("bowl", "x^2 + y^2", 1, 1, trajectories, summaries)
	b := NewRunRecord("bowl", "x^2 + y^2", 1, 1, trajectories, summaries)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique non-empty IDs, got %q and %q", a.ID, b.ID)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("New record should be valid: %v", err)
	}
	if a.Optimizers[0].Config.Kind != opt.GD {
		t.Errorf("Config not copied: %+v", a.Optimizers[0])
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{RunID: "abc"}
	if err.Error() != "run not found: abc" {
		t.Errorf("Unexpected message %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
	if ErrNotFound.Error() != "run not found" {
		t.Errorf("Unexpected message %q", ErrNotFound.Error())
	}
}
