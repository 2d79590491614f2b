package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/minimizeme/internal/session"
	"github.com/cwbudde/minimizeme/internal/store"
)

// SessionCookie names the cookie carrying the visitor's session ID.
const SessionCookie = "mm_session"

// Server represents the HTTP server
type Server struct {
	sessions *session.Manager
	store    store.Store // nil when archiving is disabled
	addr     string
	server   *http.Server
}

// NewServer creates a new HTTP server. st may be nil, which disables saving
// runs.
func NewServer(addr string, sessions *session.Manager, st store.Store) *Server {
	return &Server{
		sessions: sessions,
		store:    st,
		addr:     addr,
	}
}

// Handler returns the routes wrapped in the server's middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register UI routes
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /session", s.handleSubmit)
	mux.HandleFunc("POST /session/reset", s.handleReset)
	mux.HandleFunc("POST /session/save", s.handleSaveForm)
	mux.HandleFunc("GET /plot.png", s.handlePlot)
	mux.HandleFunc("GET /plot.svg", s.handlePlot)

	// Register API routes
	mux.HandleFunc("GET /api/v1/functions", s.handleListFunctions)
	mux.HandleFunc("GET /api/v1/optimizers", s.handleListOptimizers)
	mux.HandleFunc("POST /api/v1/trajectories", s.handleTrajectories)
	mux.HandleFunc("POST /api/v1/validate", s.handleValidate)
	mux.HandleFunc("GET /api/v1/session", s.handleGetSession)
	mux.HandleFunc("POST /api/v1/session/save", s.handleSaveSession)
	mux.HandleFunc("GET /api/v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleGetRun)

	// Wrap with middleware
	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// session returns the visitor's session, creating one and setting the cookie
// when the request carries no live session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	sess, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// ensureComputed recomputes a session whose trajectories were dropped or
// never computed.
func (s *Server) ensureComputed(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if len(sess.Trajectories) > 0 || len(sess.ActiveKinds()) == 0 {
		return sess, nil
	}
	return s.sessions.Compute(ctx, sess.ID, nil)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
