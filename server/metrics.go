package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/go-session-auth/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricNamespace = "session_auth"
	httpSubsystem   = "http"
	authSubsystem   = "auth"

	labelMethod    = "method"
	labelPath      = "path"
	labelCode      = "code"
	labelOperation = "operation"
	labelOutcome   = "outcome"

	outcomeSuccess = "success"
	methodOther    = "other"
)

// Metrics holds the collectors for one Server on a private registry, so
// several servers can coexist in one process (as they do in tests).
type Metrics struct {
	registry *prometheus.Registry

	// httpRequestLatency measures how long each API request took to answer
	httpRequestLatency *prometheus.HistogramVec
	// httpRequests counts API requests by route and status code
	httpRequests *prometheus.CounterVec
	// authOutcomes counts issuer and refresher results by kind
	authOutcomes *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "Histogram of latencies for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{labelMethod, labelPath},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Count of HTTP requests by route and status code.",
			},
			[]string{labelMethod, labelPath, labelCode},
		),
		authOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Subsystem: authSubsystem,
				Name:      "outcomes_total",
				Help:      "Count of session operations by outcome.",
			},
			[]string{labelOperation, labelOutcome},
		),
	}
	m.registry.MustRegister(
		m.httpRequestLatency,
		m.httpRequests,
		m.authOutcomes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentMiddleware records latency and status for route. The route
// constant is used as the label, never the raw request path.
func (m *Metrics) InstrumentMiddleware(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := recordStatus(w)
			next(rec, r)

			method := methodLabel(r.Method)
			m.httpRequestLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.Status())).Inc()
		}
	}
}

// methodLabel folds anything outside the standard methods into one label
// value so clients cannot grow the series count.
func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return method
	}
	return methodOther
}

// ObserveResult counts a boundary result under operation
func (m *Metrics) ObserveResult(operation string, result api.Result) {
	outcome := outcomeSuccess
	if !result.Success {
		outcome = string(result.Kind)
	}
	m.authOutcomes.WithLabelValues(operation, outcome).Inc()
}
