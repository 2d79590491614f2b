// Package session holds the per-visitor state of the interactive page: the
// current selections and the trajectories computed from them.
package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/store"
	"github.com/cwbudde/minimizeme/internal/trajectory"
)

// ErrInvalidSelection wraps every rejected user selection.
var ErrInvalidSelection = errors.New("invalid selection")

// RenderMode selects how the surface is drawn.
type RenderMode string

const (
	Contour RenderMode = "contour"
	Surface RenderMode = "surface"
)

// ParseRenderMode accepts "contour" and "surface"; the empty string means
// Surface.
func ParseRenderMode(s string) (RenderMode, error) {
	switch RenderMode(s) {
	case "", Surface:
		return Surface, nil
	case Contour:
		return Contour, nil
	}
	return "", fmt.Errorf("%w: unknown render mode %q", ErrInvalidSelection, s)
}

// DefaultElevation is the initial camera elevation of the surface plot in
// degrees.
const DefaultElevation = 30.0

// Session is the state of one visitor. Values handed out by Manager are
// copies; mutate them through Manager.Update.
type Session struct {
	ID        string         `json:"id"`
	Function  string         `json:"function"`
	Start     catalog.Point  `json:"start"`
	View      catalog.Bounds `json:"view"`
	Azimuth   float64        `json:"azimuth"`
	Elevation float64        `json:"elevation"`
	Mode      RenderMode     `json:"mode"`

	// Configs holds the hyperparameters of every kind, active or not, so
	// that toggling an optimizer off and on keeps its settings.
	Configs map[opt.Kind]opt.Config `json:"configs"`
	Active  map[opt.Kind]bool       `json:"active"`

	Trajectories []*trajectory.Trajectory `json:"trajectories"`
	Summaries    []trajectory.Summary     `json:"summaries"`

	Created    time.Time `json:"created"`
	LastAccess time.Time `json:"lastAccess"`
}

// Defaults are the selections of a fresh session.
type Defaults struct {
	Function   string
	Iterations int
	Optimizers []opt.Kind
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Function:   catalog.DefaultKey,
		Iterations: opt.DefaultIterations,
		Optimizers: []opt.Kind{opt.GD, opt.Momentum, opt.Adam},
	}
}

func newSession(id string, d Defaults, now time.Time) *Session {
	f, err := catalog.Get(d.Function)
	if err != nil {
		f = catalog.Default()
	}
	s := &Session{
		ID:         id,
		Configs:    make(map[opt.Kind]opt.Config),
		Active:     make(map[opt.Kind]bool),
		Elevation:  DefaultElevation,
		Mode:       Surface,
		Created:    now,
		LastAccess: now,
	}
	s.selectFunction(f)
	for _, k := range opt.Kinds() {
		cfg := opt.DefaultConfig(k)
		if d.Iterations > 0 {
			cfg.Iterations = d.Iterations
		}
		s.Configs[k] = cfg
	}
	for _, k := range d.Optimizers {
		s.Active[k] = true
	}
	return s
}

func (s *Session) selectFunction(f *catalog.Function) {
	s.Function = f.Key
	s.Start = f.Start
	s.View = f.Domain
	s.Azimuth = f.Azimuth
	s.Trajectories = nil
	s.Summaries = nil
}

// clone copies the maps and slices of s. Trajectories are immutable once
// computed and are shared.
func (s *Session) clone() *Session {
	cp := *s
	cp.Configs = maps.Clone(s.Configs)
	cp.Active = maps.Clone(s.Active)
	cp.Trajectories = append([]*trajectory.Trajectory(nil), s.Trajectories...)
	cp.Summaries = append([]trajectory.Summary(nil), s.Summaries...)
	return &cp
}

// Func returns the selected catalog function.
func (s *Session) Func() *catalog.Function {
	f, err := catalog.Get(s.Function)
	if err != nil {
		return catalog.Default()
	}
	return f
}

// ActiveConfigs returns the configurations of the active optimizers in
// display order.
func (s *Session) ActiveConfigs() []opt.Config {
	var cfgs []opt.Config
	for _, k := range opt.Kinds() {
		if s.Active[k] {
			cfgs = append(cfgs, s.Configs[k])
		}
	}
	return cfgs
}

// ActiveKinds returns the active optimizer kinds in display order.
func (s *Session) ActiveKinds() []opt.Kind {
	var kinds []opt.Kind
	for _, k := range opt.Kinds() {
		if s.Active[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Selection is one submission of the control panel. Configs hold complete
// configurations; zero values are taken literally.
type Selection struct {
	Function  string
	Start     catalog.Point
	View      catalog.Bounds
	Azimuth   float64
	Elevation float64
	Mode      RenderMode
	Configs   map[opt.Kind]opt.Config
	Active    []opt.Kind
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks the selection without touching a session.
func (sel Selection) Validate() error {
	if _, err := catalog.Get(sel.Function); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
	}
	if err := sel.View.Validate(); err != nil {
		return fmt.Errorf("%w: view %w", ErrInvalidSelection, err)
	}
	if !finite(sel.Start.X, sel.Start.Y) {
		return fmt.Errorf("%w: start point must be finite", ErrInvalidSelection)
	}
	if !finite(sel.Azimuth) {
		return fmt.Errorf("%w: azimuth must be finite", ErrInvalidSelection)
	}
	if !(sel.Elevation >= 0 && sel.Elevation <= 90) {
		return fmt.Errorf("%w: elevation must be between 0 and 90 degrees, got %g", ErrInvalidSelection, sel.Elevation)
	}
	if _, err := ParseRenderMode(string(sel.Mode)); err != nil {
		return err
	}
	for k, cfg := range sel.Configs {
		cfg.Kind = k
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
		}
	}
	for _, k := range sel.Active {
		if _, err := opt.ParseKind(string(k)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSelection, err)
		}
	}
	return nil
}

// Apply validates sel and writes it into s. Choosing a different function
// resets the start point, view and azimuth to that function's defaults,
// since the submitted values belong to the previous one. Otherwise the start
// point is clamped into the view. Previous trajectories are dropped.
func (sel Selection) Apply(s *Session) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	if sel.Function != s.Function {
		f, _ := catalog.Get(sel.Function)
		s.selectFunction(f)
	} else {
		s.View = sel.View
		s.Start = sel.View.Clamp(sel.Start)
		s.Azimuth = math.Mod(sel.Azimuth, 360)
	}
	s.Elevation = sel.Elevation
	s.Mode, _ = ParseRenderMode(string(sel.Mode))

	for k, cfg := range sel.Configs {
		cfg.Kind = k
		s.Configs[k] = cfg
	}
	s.Active = make(map[opt.Kind]bool, len(sel.Active))
	for _, k := range sel.Active {
		k, _ = opt.ParseKind(string(k))
		s.Active[k] = true
	}

	s.Trajectories = nil
	s.Summaries = nil
	return nil
}

// Recompute runs every active optimizer from the session's start point and
// stores the trajectories with their summaries.
func Recompute(ctx context.Context, s *Session) error {
	f := s.Func()
	trajectories, err := trajectory.RunAll(ctx, f, s.Start.X, s.Start.Y, s.ActiveConfigs())
	if err != nil {
		return fmt.Errorf("failed to compute trajectories: %w", err)
	}

	summaries := make([]trajectory.Summary, len(trajectories))
	for i, t := range trajectories {
		summaries[i] = trajectory.Summarize(t, f.Minima, trajectory.DefaultConvergenceConfig())
	}
	s.Trajectories = trajectories
	s.Summaries = summaries
	return nil
}

// SaveRun archives the session's last computed trajectories.
func SaveRun(st store.Store, s *Session) (*store.RunRecord, error) {
	if len(s.Trajectories) == 0 {
		return nil, fmt.Errorf("%w: nothing to save, no optimizer has run", ErrInvalidSelection)
	}
	f := s.Func()
	record := store.NewRunRecord(f.Key, f.Expression, s.Start.X, s.Start.Y, s.Trajectories, s.Summaries)
	if err := st.SaveRun(record, s.Trajectories); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	return record, nil
}
