// Package metrics exposes Prometheus instrumentation for the money service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the service exports.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	Transactions       *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	Rollbacks          prometheus.Counter
	ExpiredPending     prometheus.Counter
	ActiveSessions     prometheus.GaugeFunc
}

// NewRegistry builds the collector set. sessionCount feeds the active
// sessions gauge and may be nil.
func NewRegistry(sessionCount func() int) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moneyserver",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method endpoint and status code.",
		}, []string{"method", "endpoint", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moneyserver",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moneyserver",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Transactions by type and final status.",
		}, []string{"type", "status"}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "moneyserver",
			Subsystem: "ledger",
			Name:      "settlement_duration_seconds",
			Help:      "Time from transaction creation to settlement.",
			Buckets:   prometheus.DefBuckets,
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moneyserver",
			Subsystem: "ledger",
			Name:      "rollbacks_total",
			Help:      "Settled transfers reversed after delivery failure.",
		}),
		ExpiredPending: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moneyserver",
			Subsystem: "ledger",
			Name:      "expired_pending_total",
			Help:      "Pending transactions failed by the expiry sweep.",
		}),
	}

	if sessionCount != nil {
		r.ActiveSessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "moneyserver",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Currently registered grid sessions.",
		}, func() float64 { return float64(sessionCount()) })
		reg.MustRegister(r.ActiveSessions)
	}

	reg.MustRegister(r.HTTPRequests, r.HTTPDuration, r.Transactions,
		r.SettlementDuration, r.Rollbacks, r.ExpiredPending)
	return r
}

// Handler serves the /metrics scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// InstrumentHandler wraps an endpoint with request counting and latency
// observation.
func (r *Registry) InstrumentHandler(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, req)
		r.HTTPDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		r.HTTPRequests.WithLabelValues(req.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}
