package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/cwbudde/minimizeme/internal/catalog"
	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/session"
	"github.com/cwbudde/minimizeme/internal/store"
	"github.com/cwbudde/minimizeme/internal/trajectory"
	"github.com/cwbudde/minimizeme/internal/validate"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// FunctionInfo is the API view of a catalog entry.
type FunctionInfo struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Expression string          `json:"expression"`
	LaTeX      string          `json:"latex"`
	Domain     catalog.Bounds  `json:"domain"`
	Start      catalog.Point   `json:"start"`
	Minima     []catalog.Point `json:"minima"`
	MinValue   *float64        `json:"minValue"` // null when unbounded below
	Symbolic   bool            `json:"symbolicGradient"`
	Note       string          `json:"note,omitempty"`
}

// OptimizerInfo is the API view of one optimizer kind.
type OptimizerInfo struct {
	Kind       opt.Kind    `json:"kind"`
	Name       string      `json:"name"`
	Defaults   opt.Config  `json:"defaults"`
	Params     []opt.Param `json:"params"`
	UpdateRule string      `json:"updateRule"`
	Where      string      `json:"where"`
}

// TrajectoriesRequest is the body of POST /api/v1/trajectories.
type TrajectoriesRequest struct {
	Function   string         `json:"function"`
	Start      *catalog.Point `json:"start,omitempty"` // defaults to the function's start
	Optimizers []opt.Config   `json:"optimizers"`
}

// TrajectoryResult pairs a trajectory with its summary.
type TrajectoryResult struct {
	*trajectory.Trajectory
	Summary trajectory.Summary `json:"summary"`
}

// TrajectoriesResponse is the result of POST /api/v1/trajectories.
type TrajectoriesResponse struct {
	Function     string             `json:"function"`
	Start        catalog.Point      `json:"start"`
	Trajectories []TrajectoryResult `json:"trajectories"`
}

// ValidateRequest is the body of POST /api/v1/validate.
type ValidateRequest struct {
	Expression string          `json:"expression"`
	Minima     []catalog.Point `json:"minima"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func functionInfo(f *catalog.Function) FunctionInfo {
	info := FunctionInfo{
		Key:        f.Key,
		Name:       f.Name,
		Expression: f.Expression,
		LaTeX:      f.LaTeX(),
		Domain:     f.Domain,
		Start:      f.Start,
		Minima:     f.Minima,
		Symbolic:   f.Symbolic(),
		Note:       f.Note,
	}
	if info.Minima == nil {
		info.Minima = []catalog.Point{}
	}
	if !math.IsNaN(f.MinValue) {
		v := f.MinValue
		info.MinValue = &v
	}
	return info
}

// handleListFunctions handles GET /api/v1/functions
func (s *Server) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	fns := catalog.List()
	infos := make([]FunctionInfo, len(fns))
	for i, f := range fns {
		infos[i] = functionInfo(f)
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleListOptimizers handles GET /api/v1/optimizers
func (s *Server) handleListOptimizers(w http.ResponseWriter, r *http.Request) {
	var infos []OptimizerInfo
	for _, k := range opt.Kinds() {
		d, _ := opt.Describe(k)
		infos = append(infos, OptimizerInfo{
			Kind:       k,
			Name:       d.Name,
			Defaults:   opt.DefaultConfig(k),
			Params:     opt.Params(k),
			UpdateRule: d.UpdateRule,
			Where:      d.Where,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleTrajectories handles POST /api/v1/trajectories
func (s *Server) handleTrajectories(w http.ResponseWriter, r *http.Request) {
	var req TrajectoriesRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Function == "" {
		req.Function = catalog.DefaultKey
	}
	f, err := catalog.Get(req.Function)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	start := f.Start
	if req.Start != nil {
		start = *req.Start
	}
	if math.IsNaN(start.X) || math.IsInf(start.X, 0) || math.IsNaN(start.Y) || math.IsInf(start.Y, 0) {
		http.Error(w, "start point must be finite", http.StatusBadRequest)
		return
	}
	if len(req.Optimizers) == 0 {
		http.Error(w, "at least one optimizer is required", http.StatusBadRequest)
		return
	}

	// Reject bad configurations here so the runner only sees valid input
	cfgs := make([]opt.Config, len(req.Optimizers))
	for i, cfg := range req.Optimizers {
		kind, err := opt.ParseKind(string(cfg.Kind))
		if err != nil {
			http.Error(w, fmt.Sprintf("optimizers[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
		cfg.Kind = kind
		if err := cfg.Validate(); err != nil {
			http.Error(w, fmt.Sprintf("optimizers[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
		cfgs[i] = cfg
	}

	trajectories, err := trajectory.RunAll(r.Context(), f, start.X, start.Y, cfgs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("Failed to compute trajectories", "function", f.Key, "error", err)
		http.Error(w, "Failed to compute trajectories", http.StatusInternalServerError)
		return
	}

	resp := TrajectoriesResponse{Function: f.Key, Start: start}
	for _, t := range trajectories {
		resp.Trajectories = append(resp.Trajectories, TrajectoryResult{
			Trajectory: t,
			Summary:    trajectory.Summarize(t, f.Minima, trajectory.DefaultConvergenceConfig()),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleValidate handles POST /api/v1/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	verdict := validate.Expression(req.Expression, req.Minima)
	slog.Debug("Validated expression", "expression", req.Expression, "valid", verdict.Valid, "check", verdict.Check)
	writeJSON(w, http.StatusOK, verdict)
}

// handleGetSession handles GET /api/v1/session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.ensureComputed(r.Context(), s.session(w, r))
	if err != nil {
		http.Error(w, "Failed to compute trajectories", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSaveSession handles POST /api/v1/session/save
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Run archive is disabled", http.StatusServiceUnavailable)
		return
	}
	sess, err := s.ensureComputed(r.Context(), s.session(w, r))
	if err != nil {
		http.Error(w, "Failed to compute trajectories", http.StatusInternalServerError)
		return
	}

	record, err := session.SaveRun(s.store, sess)
	if err != nil {
		if errors.Is(err, session.ErrInvalidSelection) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to save run", "session_id", sess.ID, "error", err)
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	slog.Info("Run saved", "session_id", sess.ID, "run_id", record.ID)
	writeJSON(w, http.StatusCreated, record)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Run archive is disabled", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.RunInfo{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun handles GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "Run archive is disabled", http.StatusServiceUnavailable)
		return
	}
	record, err := s.store.LoadRun(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
