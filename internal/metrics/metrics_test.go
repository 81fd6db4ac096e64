package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareUsesPattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := m.Middleware(mux)

	for _, path := range []string{"/items/1", "/items/2"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	want := `zaloga_http_requests_total{code="418",method="GET",pattern="GET /items/{id}"} 2`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %q", want)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.Transition("borrow_request", "active")
	m.StockOperation("intake")
	h := m.Middleware(http.NotFoundHandler())
	if h == nil {
		t.Fatal("nil handler")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Transition("clearance_form", "processed")
	m.StockOperation("clearance")

	body := scrape(t, m)
	for _, want := range []string{
		`zaloga_workflow_transitions_total{entity="clearance_form",status="processed"} 1`,
		`zaloga_stock_operations_total{kind="clearance"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
