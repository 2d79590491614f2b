package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/session"
	"github.com/cwbudde/minimizeme/internal/store"
	"github.com/cwbudde/minimizeme/internal/trajectory"
	"github.com/cwbudde/minimizeme/internal/validate"
)

func newTestServer(t *testing.T, withStore bool) *Server {
	t.Helper()
	var st store.Store
	if withStore {
		fs, err := store.NewFSStore(t.TempDir())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		st = fs
	}
	return NewServer(":0", session.NewManager(session.DefaultDefaults(), time.Hour), st)
}

// do sends a request through the full handler, carrying the session cookie
// when one is given.
func do(t *testing.T, h http.Handler, method, target string, body []byte, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, h http.Handler, target string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("Expected a session cookie")
	return nil
}

func TestServer_IndexCreatesSession(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML, got %s", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{"Minimize me.", "Gradient Descent", "<table>", "/plot.png"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected page to contain %q", want)
		}
	}

	c := sessionCookie(t, rec)
	sess, ok := s.sessions.Get(c.Value)
	if !ok {
		t.Fatal("Session from cookie not found")
	}
	if len(sess.Trajectories) != 3 {
		t.Errorf("Expected the default optimizers to be computed, got %d", len(sess.Trajectories))
	}

	// Second visit reuses the session
	rec = do(t, h, http.MethodGet, "/", nil, c)
	for _, cc := range rec.Result().Cookies() {
		if cc.Name == SessionCookie {
			t.Error("Did not expect a new cookie for a live session")
		}
	}
	if s.sessions.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", s.sessions.Len())
	}
}

func TestServer_UnknownPath(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodGet, "/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestServer_SubmitRecomputes(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	c := sessionCookie(t, do(t, h, http.MethodGet, "/", nil, nil))

	form := url.Values{}
	form.Set("function", "bowl")
	form.Set("start_x", "1")
	form.Set("start_y", "-2")
	form.Set("mode", "contour")
	form.Add("active", "gd")
	form.Add("active", "nadam")
	form.Set("gd.lr", "0.2")
	form.Set("gd.iters", "12")

	rec := postForm(t, h, "/session", form, c)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Expected redirect to /, got %s", loc)
	}

	sess, _ := s.sessions.Get(c.Value)
	if sess.Start.X != 1 || sess.Start.Y != -2 {
		t.Errorf("Expected start (1, -2), got %+v", sess.Start)
	}
	if sess.Mode != session.Contour {
		t.Errorf("Expected contour mode, got %s", sess.Mode)
	}
	if len(sess.Trajectories) != 2 {
		t.Fatalf("Expected 2 trajectories, got %d", len(sess.Trajectories))
	}
	gd := sess.Trajectories[0]
	if gd.Kind != opt.GD || gd.Config.LearningRate != 0.2 || len(gd.States) != 13 {
		t.Errorf("Unexpected gd run: kind=%s lr=%g states=%d", gd.Kind, gd.Config.LearningRate, len(gd.States))
	}
	if sess.Trajectories[1].Kind != opt.Nadam {
		t.Errorf("Expected nadam second, got %s", sess.Trajectories[1].Kind)
	}
}

func TestServer_SubmitKeepsZeroCoefficients(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	c := sessionCookie(t, do(t, h, http.MethodGet, "/", nil, nil))

	form := url.Values{}
	form.Set("function", "bowl")
	form.Add("active", "gd")
	form.Add("active", "momentum")
	form.Set("momentum.momentum", "0")

	rec := postForm(t, h, "/session", form, c)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/session", nil, c)
	var sess session.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if m := sess.Configs[opt.Momentum].Momentum; m != 0 {
		t.Errorf("Expected momentum 0 to be kept, got %g", m)
	}
	if len(sess.Trajectories) != 2 {
		t.Fatalf("Expected 2 trajectories, got %d", len(sess.Trajectories))
	}
	gd, heavy := sess.Trajectories[0].States, sess.Trajectories[1].States
	if len(gd) != len(heavy) || gd[len(gd)-1] != heavy[len(heavy)-1] {
		t.Error("Momentum 0 should follow the gradient descent path")
	}
}

func TestServer_SubmitValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		form   url.Values
		errMsg string
	}{
		{
			name:   "unknown function",
			form:   url.Values{"function": {"teapot"}},
			errMsg: "unknown function",
		},
		{
			name:   "not a number",
			form:   url.Values{"start_x": {"three"}},
			errMsg: "is not a number",
		},
		{
			name:   "inverted view",
			form:   url.Values{"x_min": {"2"}, "x_max": {"-2"}},
			errMsg: "x bounds are empty",
		},
		{
			name:   "negative learning rate",
			form:   url.Values{"active": {"gd"}, "gd.lr": {"-1"}},
			errMsg: "learningRate",
		},
		{
			name:   "zero learning rate",
			form:   url.Values{"active": {"gd"}, "gd.lr": {"0"}},
			errMsg: "learningRate",
		},
		{
			name:   "fractional iterations",
			form:   url.Values{"adam.iters": {"2.5"}},
			errMsg: "whole number",
		},
		{
			name:   "unknown optimizer",
			form:   url.Values{"active": {"lbfgs"}},
			errMsg: "unknown optimizer kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, false)
			h := s.Handler()
			c := sessionCookie(t, do(t, h, http.MethodGet, "/", nil, nil))

			rec := postForm(t, h, "/session", tt.form, c)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}
			body := rec.Body.String()
			if !strings.Contains(body, `class="error"`) || !strings.Contains(body, tt.errMsg) {
				t.Errorf("Expected error %q in page", tt.errMsg)
			}

			sess, _ := s.sessions.Get(c.Value)
			if sess.Function != "bowl" || len(sess.Trajectories) != 3 {
				t.Error("Rejected submission must leave the session unchanged")
			}
		})
	}
}

func TestServer_Reset(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()
	c := sessionCookie(t, do(t, h, http.MethodGet, "/", nil, nil))

	rec := do(t, h, http.MethodPost, "/session/reset", nil, c)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d", rec.Code)
	}
	if _, ok := s.sessions.Get(c.Value); ok {
		t.Error("Expected the session to be dropped")
	}
	if cleared := sessionCookie(t, rec); cleared.MaxAge >= 0 {
		t.Error("Expected the cookie to be cleared")
	}
}

func TestServer_Plot(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/plot.png", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Error("Expected image/png content type")
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("Response should be valid PNG: %v", err)
	}

	rec = do(t, h, http.MethodGet, "/plot.svg", nil, sessionCookie(t, rec))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("Unexpected SVG response: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("Expected an SVG document")
	}
}

func TestServer_ListFunctions(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/functions", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var fns []FunctionInfo
	if err := json.NewDecoder(rec.Body).Decode(&fns); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(fns) == 0 {
		t.Fatal("Expected catalog functions")
	}

	byKey := map[string]FunctionInfo{}
	for _, f := range fns {
		byKey[f.Key] = f
	}
	bowl, ok := byKey["bowl"]
	if !ok {
		t.Fatal("Expected bowl in the catalog")
	}
	if bowl.MinValue == nil || *bowl.MinValue != 0 {
		t.Errorf("Expected bowl minimum value 0, got %v", bowl.MinValue)
	}
	if bowl.LaTeX == "" {
		t.Error("Expected a LaTeX rendering")
	}
}

func TestServer_ListOptimizers(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/optimizers", nil, nil)

	var infos []OptimizerInfo
	if err := json.NewDecoder(rec.Body).Decode(&infos); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(infos) != len(opt.Kinds()) {
		t.Fatalf("Expected %d optimizers, got %d", len(opt.Kinds()), len(infos))
	}
	for _, info := range infos {
		if info.UpdateRule == "" || info.Where == "" || len(info.Params) == 0 {
			t.Errorf("%s: incomplete description", info.Kind)
		}
		if info.Defaults.Validate() != nil {
			t.Errorf("%s: invalid defaults", info.Kind)
		}
	}
}

func TestServer_Trajectories(t *testing.T) {
	s := newTestServer(t, false)
	body := []byte(`{"function": "bowl", "optimizers": [
		{"kind": "gd", "learningRate": 0.1, "iterations": 20},
		{"kind": "sgd", "iterations": 5}
	]}`)

	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/trajectories", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Function     string `json:"function"`
		Trajectories []struct {
			Kind    opt.Kind           `json:"kind"`
			States  []trajectory.State `json:"states"`
			Error   string             `json:"error"`
			Summary trajectory.Summary `json:"summary"`
		} `json:"trajectories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Trajectories) != 2 {
		t.Fatalf("Expected 2 trajectories, got %d", len(resp.Trajectories))
	}
	first := resp.Trajectories[0]
	if len(first.States) != 21 {
		t.Errorf("Expected 21 states, got %d", len(first.States))
	}
	if first.States[0].X != 3 || first.States[0].Y != 3 {
		t.Errorf("Expected to start at the bowl's start point, got %+v", first.States[0])
	}
	if first.Summary.Steps != 20 || first.Summary.DistanceToMin == nil {
		t.Errorf("Unexpected summary: %+v", first.Summary)
	}
	if resp.Trajectories[1].Kind != opt.GD || len(resp.Trajectories[1].States) != 6 {
		t.Errorf("Expected the alias to resolve to gd with 6 states")
	}

	// A stateless call leaves no session behind
	if s.sessions.Len() != 0 {
		t.Errorf("Expected no sessions, got %d", s.sessions.Len())
	}
}

func TestServer_TrajectoriesFillsMissingFields(t *testing.T) {
	s := newTestServer(t, false)
	body := []byte(`{"function": "bowl", "optimizers": [{"kind": "momentum", "iterations": 5, "momentum": 0}, {"kind": "adam", "iterations": 5}]}`)

	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/trajectories", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Trajectories []struct {
			Config opt.Config `json:"config"`
		} `json:"trajectories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Trajectories) != 2 {
		t.Fatalf("Expected 2 trajectories, got %d", len(resp.Trajectories))
	}
	momentum := resp.Trajectories[0].Config
	if momentum.Momentum != 0 || momentum.LearningRate != opt.DefaultConfig(opt.Momentum).LearningRate {
		t.Errorf("Expected explicit momentum 0 with the default learning rate, got %+v", momentum)
	}
	want := opt.DefaultConfig(opt.Adam)
	want.Iterations = 5
	if got := resp.Trajectories[1].Config; got != want {
		t.Errorf("Expected Adam defaults for missing fields, got %+v", got)
	}
}

func TestServer_TrajectoriesReportsEvaluationFailure(t *testing.T) {
	s := newTestServer(t, false)
	body := []byte(`{"function": "ackley", "start": {"x": 0, "y": 0}, "optimizers": [{"kind": "momentum", "iterations": 10}]}`)

	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/trajectories", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Trajectories []struct {
			States []trajectory.State `json:"states"`
			Error  string             `json:"error"`
		} `json:"trajectories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	tr := resp.Trajectories[0]
	if tr.Error == "" {
		t.Error("Expected the run to report an evaluation failure")
	}
	if len(tr.States) == 0 || len(tr.States) > 10 {
		t.Errorf("Expected a partial trajectory, got %d states", len(tr.States))
	}
}

func TestServer_TrajectoriesValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown field", `{"function": "bowl", "optimizers": [{"kind": "gd"}], "seed": 1}`},
		{"unknown function", `{"function": "teapot", "optimizers": [{"kind": "gd"}]}`},
		{"no optimizers", `{"function": "bowl", "optimizers": []}`},
		{"unknown kind", `{"function": "bowl", "optimizers": [{"kind": "lbfgs"}]}`},
		{"bad learning rate", `{"function": "bowl", "optimizers": [{"kind": "adam", "learningRate": -0.1}]}`},
		{"zero learning rate", `{"function": "bowl", "optimizers": [{"kind": "gd", "learningRate": 0}]}`},
		{"too many iterations", `{"function": "bowl", "optimizers": [{"kind": "gd", "iterations": 1000000}]}`},
	}

	s := newTestServer(t, false)
	h := s.Handler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/trajectories", []byte(tt.body), nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestServer_Validate(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	tests := []struct {
		body  string
		valid bool
		check validate.Check
	}{
		{`{"expression": "x^2 + y^2", "minima": [{"x": 0, "y": 0}]}`, true, ""},
		{`{"expression": "1/x + y^2"}`, false, validate.Stability},
		{`{"expression": "x +"}`, false, validate.Parse},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, "/api/v1/validate", []byte(tt.body), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", rec.Code)
		}
		var v validate.Verdict
		if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if v.Valid != tt.valid || v.Check != tt.check {
			t.Errorf("%s: got %+v", tt.body, v)
		}
	}
}

func TestServer_GetSession(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/session", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var sess session.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if sess.ID != sessionCookie(t, rec).Value {
		t.Error("Expected the session of the cookie")
	}
	if len(sess.Summaries) != 3 {
		t.Errorf("Expected 3 summaries, got %d", len(sess.Summaries))
	}
}

func TestServer_SaveSession(t *testing.T) {
	s := newTestServer(t, true)
	h := s.Handler()
	c := sessionCookie(t, do(t, h, http.MethodGet, "/", nil, nil))

	rec := do(t, h, http.MethodPost, "/api/v1/session/save", nil, c)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var record store.RunRecord
	if err := json.NewDecoder(rec.Body).Decode(&record); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if record.Function != "bowl" || len(record.Optimizers) != 3 {
		t.Errorf("Unexpected record: %+v", record)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs", nil, nil)
	var runs []store.RunInfo
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != record.ID {
		t.Errorf("Expected the saved run to be listed, got %+v", runs)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+record.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/runs/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}

	// The page form redirects with the new ID
	rec = do(t, h, http.MethodPost, "/session/save", nil, c)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), "/?saved=") {
		t.Errorf("Unexpected save redirect: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestServer_SaveWithoutStore(t *testing.T) {
	s := newTestServer(t, false)
	h := s.Handler()

	for _, target := range []string{"/api/v1/session/save", "/session/save"} {
		rec := do(t, h, http.MethodPost, target, nil, nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503, got %d", target, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/api/v1/runs", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodOptions, "/api/v1/functions", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS headers")
	}
}

func TestServer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := newTestServer(t, true)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Jar: jar}

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Failed to load page: %v", err)
	}
	resp.Body.Close()

	form := url.Values{"function": {"himmelblau"}, "active": {"adam", "rmsprop"}}
	resp, err = client.PostForm(srv.URL+"/session", form)
	if err != nil {
		t.Fatalf("Failed to submit form: %v", err)
	}
	body := new(bytes.Buffer)
	body.ReadFrom(resp.Body)
	resp.Body.Close()

	// The redirect lands on the recomputed page
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 after redirect, got %d", resp.StatusCode)
	}
	if !strings.Contains(body.String(), `<option value="himmelblau" selected>`) {
		t.Error("Expected himmelblau to be selected")
	}
	if !strings.Contains(body.String(), "<h3>RMSprop</h3>") || strings.Contains(body.String(), "<h3>Momentum</h3>") {
		t.Error("Expected the cheatsheet to follow the active optimizers")
	}

	resp, err = client.Get(srv.URL + "/plot.png")
	if err != nil {
		t.Fatalf("Failed to load plot: %v", err)
	}
	defer resp.Body.Close()
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("Plot should be a valid PNG: %v", err)
	}
}
