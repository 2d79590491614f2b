package trajectory

import (
	"math"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
)

// ConvergenceConfig defines when a run counts as having settled.
type ConvergenceConfig struct {
	// Patience is the number of consecutive steps without significant
	// improvement after which the run is considered converged.
	Patience int

	// Threshold is the minimum improvement required to count as progress.
	// Improvement is relative to the last significant value when that value is
	// larger than 1 in magnitude and absolute otherwise.
	Threshold float64
}

// DefaultConvergenceConfig returns the settings used for summaries.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Patience:  5,
		Threshold: 1e-4,
	}
}

// ConvergenceTracker follows a sequence of objective values and detects when
// they stop improving. It only observes; it never stops a run.
type ConvergenceTracker struct {
	config          ConvergenceConfig
	steps           int
	best            float64
	lastSignificant float64
	staleCount      int
	convergedAt     int
}

// NewConvergenceTracker creates a tracker with the given config.
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	t := &ConvergenceTracker{config: config}
	t.Reset()
	return t
}

// Update records the value of the next step and returns true once
// convergence has been detected.
func (c *ConvergenceTracker) Update(value float64) bool {
	step := c.steps
	c.steps++

	if value < c.best {
		c.best = value
	}
	if step == 0 {
		c.lastSignificant = value
		return false
	}
	if c.convergedAt >= 0 {
		return true
	}

	scale := math.Max(1, math.Abs(c.lastSignificant))
	if (c.lastSignificant-value)/scale >= c.config.Threshold {
		c.lastSignificant = value
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		// the run settled at the last significant improvement
		c.convergedAt = step - c.staleCount
		return true
	}
	return false
}

// ConvergedAt returns the step at which values stopped improving, or -1.
func (c *ConvergenceTracker) ConvergedAt() int { return c.convergedAt }

// Best returns the lowest value seen.
func (c *ConvergenceTracker) Best() float64 { return c.best }

// Reset clears the tracker's state.
func (c *ConvergenceTracker) Reset() {
	c.steps = 0
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
	c.convergedAt = -1
}

// Summary describes the outcome of one run.
type Summary struct {
	Kind  opt.Kind `json:"kind"`
	Steps int      `json:"steps"` // optimizer steps taken
	Final State    `json:"final"`
	Best  State    `json:"best"`
	// DistanceToMin is the distance from the final point to the nearest
	// known minimum, nil when none is known.
	DistanceToMin *float64 `json:"distanceToMin,omitempty"`
	ConvergedAt   int      `json:"convergedAt"` // -1 when the run never settled
	Error         string   `json:"error,omitempty"`
}

// Summarize reports the outcome of t relative to the known minima.
func Summarize(t *Trajectory, minima []catalog.Point, cfg ConvergenceConfig) Summary {
	tracker := NewConvergenceTracker(cfg)
	best := t.States[0]
	for _, s := range t.States {
		tracker.Update(s.Z)
		if s.Z < best.Z {
			best = s
		}
	}

	final := t.Last()
	var distance *float64
	if _, d, ok := catalog.Nearest(minima, catalog.Point{X: final.X, Y: final.Y}); ok {
		distance = &d
	}

	return Summary{
		Kind:          t.Kind,
		Steps:         len(t.States) - 1,
		Final:         final,
		Best:          best,
		DistanceToMin: distance,
		ConvergedAt:   tracker.ConvergedAt(),
		Error:         t.Err,
	}
}
