package observability_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"accessmap/internal/adapters/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	// record one sample so counters are non-zero
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)

	mh := observability.MetricsHandler(reg)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	out := string(body)
	if !strings.Contains(out, "accessmap_http_requests_total") {
		t.Fatalf("expected accessmap_http_requests_total in output")
	}
}

func TestDomainCounters(t *testing.T) {
	reg := observability.InitRegistry()

	observability.ObserveReviewSubmission("ok")
	observability.ObserveReconcile("drift")
	observability.ObserveCache("redis", "miss")

	rr := httptest.NewRecorder()
	observability.MetricsHandler(reg).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	out := rr.Body.String()

	for _, want := range []string{
		`accessmap_review_submissions_total{outcome="ok"}`,
		`accessmap_aggregate_reconciliations_total{result="drift"}`,
		`accessmap_cache_events_total{cache="redis",event="miss"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}

func TestPush_SendsRegistryToGateway(t *testing.T) {
	reg := observability.InitRegistry()
	observability.ObserveReconcile("clean")

	var method, path string
	var body []byte
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	if err := observability.Push(context.Background(), gw.URL, "accessmap_reconciler", reg); err != nil {
		t.Fatalf("push: %v", err)
	}
	if method != http.MethodPut || path != "/metrics/job/accessmap_reconciler" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	if !strings.Contains(string(body), "accessmap_aggregate_reconciliations_total") {
		t.Fatalf("expected reconciliation counter in pushed body")
	}

	if err := observability.Push(context.Background(), "", "job", reg); err != nil {
		t.Fatalf("empty gateway should be a no-op, got %v", err)
	}
}
