package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pathcanon/pathcanon/internal/logging"
)

const outcomeOK = "ok"

type Metrics struct {
	operationsTotal    *prometheus.CounterVec
	fsCallsTotal       *prometheus.CounterVec
	cacheHitsTotal     *prometheus.CounterVec
	splicesTotal       prometheus.Counter
	ratelimitHitsTotal prometheus.Counter
	operationDuration  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pathcanon_operations_total", Help: "Total resolve and realpath operations"},
			[]string{"op", "grammar", "outcome"},
		),
		fsCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pathcanon_fs_calls_total", Help: "Filesystem calls made by realpath walks"},
			[]string{"call"},
		),
		cacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "pathcanon_cache_hits_total", Help: "Known-hard and link-target cache hits"},
			[]string{"cache"},
		),
		splicesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "pathcanon_symlink_splices_total", Help: "Symlinks substituted during realpath walks"},
		),
		ratelimitHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "pathcanon_ratelimit_hits_total", Help: "Total rate limit hits"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pathcanon_operation_duration_seconds",
				Help:    "Operation duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"op"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.operationsTotal,
		m.fsCallsTotal,
		m.cacheHitsTotal,
		m.splicesTotal,
		m.ratelimitHitsTotal,
		m.operationDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ObserveTrace records one finished operation.
func (m *Metrics) ObserveTrace(trace logging.Trace) {
	if m == nil {
		return
	}

	outcome := outcomeOK
	if trace.Code != "" {
		outcome = trace.Code
	}
	m.operationsTotal.WithLabelValues(trace.Op, trace.Grammar, outcome).Inc()
	m.operationDuration.WithLabelValues(trace.Op).Observe((time.Duration(trace.DurationUS) * time.Microsecond).Seconds())

	if s := trace.Stats; s != nil {
		m.fsCallsTotal.WithLabelValues("lstat").Add(float64(s.Lstats))
		m.fsCallsTotal.WithLabelValues("access").Add(float64(s.Accesses))
		m.fsCallsTotal.WithLabelValues("readlink").Add(float64(s.Readlinks))
		m.cacheHitsTotal.WithLabelValues("known_hard").Add(float64(s.KnownHardHits))
		m.cacheHitsTotal.WithLabelValues("link_target").Add(float64(s.LinkCacheHits))
		m.splicesTotal.Add(float64(s.Splices))
	}
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.ratelimitHitsTotal.Inc()
}
