// Package health provides the HTTP liveness and readiness probes.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 while the process can
//     serve HTTP.
//   - /readyz: readiness probe; returns 200 only when a dictation
//     session could start right now: the selected speech engine resolves
//     to a constructed provider and every other registered [Checker]
//     passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or
// "fail"), the selected engine name when one resolves, and a "checks" map
// containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sussurro/sussurro/pkg/types"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Checker is a named health check function. The Check function should return
// nil when the dependency is healthy and a non-nil error describing the
// failure otherwise.
type Checker struct {
	// Name is a short, human-readable label for this check (e.g. "engine",
	// "history"). It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// EngineReporter is the slice of the engine router the probes need.
type EngineReporter interface {
	// Engine returns the selected speech engine name, or an error when no
	// engine is resolvable.
	Engine() (string, error)
}

// EngineCheck probes that the selected speech engine resolves to a
// constructed provider. Local engines load their model lazily, so a
// passing check means "a session can start", not "the model is resident".
func EngineCheck(rep EngineReporter) Checker {
	return Checker{
		Name: "engine",
		Check: func(context.Context) error {
			_, err := rep.Engine()
			return err
		},
	}
}

// RecentLister is the slice of the history store the probes need.
type RecentLister interface {
	Recent(ctx context.Context, n int) ([]types.SessionRecord, error)
}

// HistoryCheck probes the history store's read path.
func HistoryCheck(store RecentLister) Checker {
	return Checker{
		Name: "history",
		Check: func(ctx context.Context) error {
			_, err := store.Recent(ctx, 1)
			return err
		},
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Engine string            `json:"engine,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the checker list is fixed at construction time.
type Handler struct {
	engine   EngineReporter
	checkers []Checker
}

// New creates a [Handler]. rep supplies the engine name on readiness
// responses and may be nil; the checkers are evaluated sequentially in the
// order provided on each /readyz request.
func New(rep EngineReporter, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{engine: rep, checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Checker] passes. Each checker is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Checks: checks,
	}
	if h.engine != nil {
		if name, err := h.engine.Engine(); err == nil {
			res.Engine = name
		}
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
