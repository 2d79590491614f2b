package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/cwbudde/minimizeme/internal/plot"
	"github.com/cwbudde/minimizeme/internal/session"
	"github.com/cwbudde/minimizeme/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	current := s.session(w, r)

	sess, err := s.ensureComputed(r.Context(), current)
	if err != nil {
		slog.Error("Failed to compute session", "session_id", current.ID, "error", err)
		http.Error(w, "Failed to compute trajectories", http.StatusInternalServerError)
		return
	}

	data := ui.NewPageData(sess, s.store != nil)
	data.SavedRunID = r.URL.Query().Get("saved")
	s.renderPage(w, r, data, http.StatusOK)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, data ui.PageData, status int) {
	// Render into a buffer so a failed render does not leave half a page
	var buf bytes.Buffer
	if err := ui.Page(data).Render(r.Context(), &buf); err != nil {
		slog.Error("Failed to render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// handleSubmit handles POST /session
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	sel, err := parseSelection(r.PostForm, sess)
	if err == nil {
		_, err = s.sessions.Compute(r.Context(), sess.ID, &sel)
	}
	if err != nil {
		if !errors.Is(err, session.ErrInvalidSelection) {
			slog.Error("Failed to compute session", "session_id", sess.ID, "error", err)
			http.Error(w, "Failed to compute trajectories", http.StatusInternalServerError)
			return
		}
		// Re-render the unchanged session with the error shown
		slog.Debug("Rejected selection", "session_id", sess.ID, "error", err)
		data := ui.NewPageData(sess, s.store != nil)
		data.Error = err.Error()
		s.renderPage(w, r, data, http.StatusBadRequest)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleReset handles POST /session/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSaveForm handles POST /session/save
func (s *Server) handleSaveForm(w http.ResponseWriter, r *http.Request) {
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
			data := ui.NewPageData(sess, true)
			data.Error = err.Error()
			s.renderPage(w, r, data, http.StatusBadRequest)
			return
		}
		slog.Error("Failed to save run", "session_id", sess.ID, "error", err)
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	slog.Info("Run saved", "session_id", sess.ID, "run_id", record.ID)
	http.Redirect(w, r, "/?saved="+url.QueryEscape(record.ID), http.StatusSeeOther)
}

// handlePlot handles GET /plot.png and GET /plot.svg
func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	format := strings.TrimPrefix(path.Ext(r.URL.Path), ".")
	contentType, err := plot.ContentType(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	sess, err := s.ensureComputed(r.Context(), s.session(w, r))
	if err != nil {
		http.Error(w, "Failed to compute trajectories", http.StatusInternalServerError)
		return
	}

	f := sess.Func()
	scene := plot.Scene{
		Title:        f.Name,
		F:            f.Eval,
		View:         sess.View,
		Start:        sess.Start,
		Minima:       f.Minima,
		Trajectories: sess.Trajectories,
	}
	opts := plot.DefaultOptions()
	opts.Mode = plot.Mode(sess.Mode)
	opts.Azimuth = sess.Azimuth
	opts.Elevation = sess.Elevation
	opts.Format = format

	var buf bytes.Buffer
	if err := plot.Render(&buf, scene, opts); err != nil {
		slog.Error("Failed to render plot", "session_id", sess.ID, "error", err)
		http.Error(w, "Failed to render plot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	buf.WriteTo(w)
}
