package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"conversation-transcriber/internal/observability/metrics"
)

func TestServer_Probes(t *testing.T) {
	ready := false
	s := NewServer(":0", func() bool { return ready })

	tests := []struct {
		name   string
		path   string
		ready  bool
		status int
	}{
		{"healthz", "/healthz", false, http.StatusOK},
		{"readyz not ready", "/readyz", false, http.StatusServiceUnavailable},
		{"readyz ready", "/readyz", true, http.StatusOK},
		{"metrics", "/metrics", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready = tt.ready
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
			}
		})
	}
}

func TestServer_NilReadyIsReady(t *testing.T) {
	s := NewServer(":0", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHTTPMetrics_LabelsByRoutePattern(t *testing.T) {
	m := metrics.DefaultMetrics

	r := chi.NewRouter()
	r.Use(HTTPMetrics(m))
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	teapot := m.HTTPRequests.WithLabelValues(http.MethodGet, "/things/{id}", "418")
	plain := m.HTTPRequests.WithLabelValues(http.MethodGet, "/plain", "200")
	beforeTeapot := testutil.ToFloat64(teapot)
	beforePlain := testutil.ToFloat64(plain)

	for _, path := range []string{"/things/1", "/things/2", "/plain"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(teapot) - beforeTeapot; got != 2 {
		t.Errorf("expected 2 requests on /things/{id}, got %v", got)
	}
	if got := testutil.ToFloat64(plain) - beforePlain; got != 1 {
		t.Errorf("expected implicit 200 on /plain, got %v", got)
	}
}
