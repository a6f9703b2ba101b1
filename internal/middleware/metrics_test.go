package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type observation struct {
	method, route string
	status        int
}

type captureRecorder struct {
	mu  sync.Mutex
	obs []observation
}

func (c *captureRecorder) IncTaskCreated()       {}
func (c *captureRecorder) IncTaskUpdated()       {}
func (c *captureRecorder) IncTaskDeleted()       {}
func (c *captureRecorder) IncUserRegistered()    {}
func (c *captureRecorder) IncAuthFailure(string) {}
func (c *captureRecorder) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = append(c.obs, observation{method, route, status})
}

func TestMetrics_RoutePattern(t *testing.T) {
	t.Parallel()

	recorder := &captureRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(recorder))
	r.Get("/api/todos/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/todos/abc123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if len(recorder.obs) != 2 {
		t.Fatalf("observations = %d, want 2", len(recorder.obs))
	}
	if got := recorder.obs[0]; got.route != "/api/todos/{id}" || got.status != http.StatusNotFound || got.method != http.MethodGet {
		t.Errorf("first observation = %+v", got)
	}
	if got := recorder.obs[1]; got.route != unmatchedRoute {
		t.Errorf("unmatched route label = %q", got.route)
	}
}
