package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pathcanon/pathcanon/internal/logging"
	"github.com/pathcanon/pathcanon/internal/realpath"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestMetricsObserveTrace(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	metrics.ObserveTrace(logging.Trace{
		Op:         logging.OpRealpath,
		Grammar:    "posix",
		DurationUS: 120,
		Stats: &realpath.Stats{
			Lstats:        5,
			Accesses:      2,
			Readlinks:     2,
			KnownHardHits: 3,
			LinkCacheHits: 1,
			Splices:       3,
		},
	})
	metrics.ObserveTrace(logging.Trace{Op: logging.OpRealpath, Grammar: "posix", Code: "ELOOP"})
	metrics.ObserveTrace(logging.Trace{Op: logging.OpResolve, Grammar: "win32"})
	metrics.ObserveRateLimited()

	if got := counterValue(t, reg, "pathcanon_operations_total", map[string]string{"op": "realpath", "outcome": "ok"}); got != 1 {
		t.Fatalf("ok realpath = %v", got)
	}
	if got := counterValue(t, reg, "pathcanon_operations_total", map[string]string{"op": "realpath", "outcome": "ELOOP"}); got != 1 {
		t.Fatalf("ELOOP realpath = %v", got)
	}
	if got := counterValue(t, reg, "pathcanon_fs_calls_total", map[string]string{"call": "lstat"}); got != 5 {
		t.Fatalf("lstat calls = %v", got)
	}
	if got := counterValue(t, reg, "pathcanon_cache_hits_total", map[string]string{"cache": "link_target"}); got != 1 {
		t.Fatalf("link cache hits = %v", got)
	}
	if got := counterValue(t, reg, "pathcanon_symlink_splices_total", nil); got != 3 {
		t.Fatalf("splices = %v", got)
	}
	if got := counterValue(t, reg, "pathcanon_ratelimit_hits_total", nil); got != 1 {
		t.Fatalf("ratelimit hits = %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveTrace(logging.Trace{Op: logging.OpResolve})
	metrics.ObserveRateLimited()
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	metrics.ObserveTrace(logging.Trace{Op: logging.OpResolve, Grammar: "posix"})

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `pathcanon_operations_total{grammar="posix",op="resolve",outcome="ok"} 1`) {
		t.Fatalf("metrics output missing operation counter:\n%s", body)
	}
}
