package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		sys: &fakeSystem{},
		cfg: &Config{
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

// counterValue returns the value of the named counter with the given label
// pair, or -1 if the series is absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_AskCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.askRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.askRequestsTotal.WithLabelValues("no_evidence").Inc()
	s.metrics.askRequestsTotal.WithLabelValues("no_evidence").Inc()

	if got := counterValue(t, reg, "raggy_ask_requests_total", "outcome", "ok"); got != 1 {
		t.Errorf("outcome=ok: want counter=1, got %v", got)
	}
	if got := counterValue(t, reg, "raggy_ask_requests_total", "outcome", "no_evidence"); got != 2 {
		t.Errorf("outcome=no_evidence: want counter=2, got %v", got)
	}
}

func Test_Metrics_IngestCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.metrics.ingestTotal.WithLabelValues("ok").Inc()

	if got := counterValue(t, reg, "raggy_ingest_documents_total", "outcome", "ok"); got != 1 {
		t.Errorf("want counter=1, got %v", got)
	}
}

func Test_Metrics_InstrumentRecordsRoutePattern(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := s.metrics.instrument(mux)

	// Two distinct IDs must collapse into one series keyed by the pattern.
	for _, path := range []string{"/api/documents/a", "/api/documents/b"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := counterValue(t, reg, "raggy_http_requests_total", "handler", "GET /api/documents/{id}"); got != 2 {
		t.Errorf("want counter=2 for route pattern, got %v", got)
	}
}

func Test_Metrics_InstrumentCountsUnmatched(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	mux := http.NewServeMux()
	h := s.metrics.instrument(mux)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got := counterValue(t, reg, "raggy_http_requests_total", "handler", "unmatched"); got != 1 {
		t.Errorf("want counter=1 for unmatched, got %v", got)
	}
}
