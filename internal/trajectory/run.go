// Package trajectory runs an optimizer over an objective and records the
// states it visits.
package trajectory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/minimizeme/internal/opt"
)

// Objective is a differentiable function of two variables.
type Objective interface {
	Eval(x, y float64) float64
	Grad(x, y float64) (float64, float64)
}

// State is one visited point and the objective value there.
type State struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MarshalJSON encodes a non-finite Z as null.
func (s State) MarshalJSON() ([]byte, error) {
	var z *float64
	if finite(s.Z) {
		z = &s.Z
	}
	return json.Marshal(struct {
		X float64  `json:"x"`
		Y float64  `json:"y"`
		Z *float64 `json:"z"`
	}{s.X, s.Y, z})
}

// UnmarshalJSON decodes a null Z as NaN.
func (s *State) UnmarshalJSON(data []byte) error {
	var v struct {
		X float64  `json:"x"`
		Y float64  `json:"y"`
		Z *float64 `json:"z"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	s.X, s.Y, s.Z = v.X, v.Y, math.NaN()
	if v.Z != nil {
		s.Z = *v.Z
	}
	return nil
}

// Trajectory is the ordered record of one optimizer run. States[0] is the
// start point. A completed run holds Config.Iterations+1 states; a run that
// hit an evaluation failure holds fewer and Err describes why.
type Trajectory struct {
	Kind   opt.Kind   `json:"kind"`
	Config opt.Config `json:"config"`
	States []State    `json:"states"`
	Err    string     `json:"error,omitempty"`
}

// Completed reports whether the run reached its iteration budget.
func (t *Trajectory) Completed() bool {
	return t.Err == "" && len(t.States) == t.Config.Iterations+1
}

// Last returns the final recorded state.
func (t *Trajectory) Last() State {
	return t.States[len(t.States)-1]
}

// EvalError reports a non-finite value or gradient during a run.
type EvalError struct {
	Step   int
	X, Y   float64
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation failed at step %d (%g, %g): %s", e.Step, e.X, e.Y, e.Reason)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// eval and grad convert panics from the objective into errors so that one
// broken function cannot take the caller down.
func eval(f Objective, x, y float64) (z float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("objective panicked: %v", r)
		}
	}()
	return f.Eval(x, y), nil
}

func grad(f Objective, x, y float64) (gx, gy float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gradient panicked: %v", r)
		}
	}()
	gx, gy = f.Grad(x, y)
	return gx, gy, nil
}

// Run executes cfg.Iterations optimizer steps from (x0, y0). cfg is used as
// given and must pass Validate.
//
// The loop never stops early on convergence. It stops only when the value,
// the gradient or the new point is not finite; the partial trajectory is
// returned together with an *EvalError. Configuration errors are returned
// with a nil trajectory.
func Run(f Objective, x0, y0 float64, cfg opt.Config) (*Trajectory, error) {
	stepper, err := opt.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}

	t := &Trajectory{
		Kind:   cfg.Kind,
		Config: cfg,
		States: make([]State, 0, cfg.Iterations+1),
	}

	fail := func(step int, x, y float64, reason string) (*Trajectory, error) {
		e := &EvalError{Step: step, X: x, Y: y, Reason: reason}
		t.Err = e.Error()
		slog.Debug("Optimizer run stopped", "optimizer", cfg.Kind, "step", step, "reason", reason)
		return t, e
	}

	z, err := eval(f, x0, y0)
	t.States = append(t.States, State{X: x0, Y: y0, Z: z})
	if err != nil {
		return fail(0, x0, y0, err.Error())
	}
	if !finite(z) {
		return fail(0, x0, y0, fmt.Sprintf("f = %g", z))
	}

	p := []float64{x0, y0}
	g := make([]float64, 2)
	for step := 1; step <= cfg.Iterations; step++ {
		x, y := p[0], p[1]

		g[0], g[1], err = grad(f, x, y)
		if err != nil {
			return fail(step, x, y, err.Error())
		}
		if !finite(g...) {
			return fail(step, x, y, fmt.Sprintf("gradient = (%g, %g)", g[0], g[1]))
		}

		stepper.Step(p, g)
		if !finite(p...) {
			return fail(step, x, y, fmt.Sprintf("update produced (%g, %g)", p[0], p[1]))
		}

		z, err = eval(f, p[0], p[1])
		if err != nil {
			return fail(step, p[0], p[1], err.Error())
		}
		if !finite(z) {
			return fail(step, p[0], p[1], fmt.Sprintf("f = %g", z))
		}
		t.States = append(t.States, State{X: p[0], Y: p[1], Z: z})
	}
	return t, nil
}

// RunAll runs every configuration from the same start point. Runs are
// independent: a failure in one is recorded in its Trajectory and does not
// affect the others. The result has one entry per config, in order.
//
// The only error returned is the context's, when it is cancelled before all
// runs have started.
func RunAll(ctx context.Context, f Objective, x0, y0 float64, cfgs []opt.Config) ([]*Trajectory, error) {
	results := make([]*Trajectory, len(cfgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, cfg := range cfgs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := Run(f, x0, y0, cfg)
			if t == nil {
				// configuration error: keep the slot with the start point only
				z, _ := eval(f, x0, y0)
				t = &Trajectory{Kind: cfg.Kind, Config: cfg, States: []State{{X: x0, Y: y0, Z: z}}, Err: err.Error()}
			}
			results[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
