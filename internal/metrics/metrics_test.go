package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.ObserveOutcome("scraped")
	m.ObserveOutcome("scraped")
	m.ObserveOutcome("rejected")
	m.ObserveFetch(250 * time.Millisecond)
	m.ObserveMerge(2, 3, 1, 0)

	if got := testutil.ToFloat64(m.LinksProcessed.WithLabelValues("scraped")); got != 2 {
		t.Errorf("scraped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MergeDeleted); got != 3 {
		t.Errorf("deleted = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.MergeFailures.WithLabelValues("commit")); got != 1 {
		t.Errorf("commit failures = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOutcome("error")
	m.ObserveFetch(time.Second)
	m.ObserveMerge(1, 1, 1, 1)
	if m.Handler() == nil {
		t.Error("nil metrics should still serve a handler")
	}
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)
	m.ObserveOutcome("scraped")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), `alma_links_processed_total{outcome="scraped"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
