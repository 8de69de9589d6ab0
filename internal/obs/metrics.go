package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by all handlers.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Downstream resilience and synchronization metrics.
var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Circuit breaker state per downstream (0=closed, 1=open, 2=half-open).",
		},
		[]string{"name"},
	)

	breakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_failures_total",
			Help: "Primary call failures observed by the circuit breaker.",
		},
		[]string{"name"},
	)

	syncEventsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_events_sent_total",
		Help: "Training update events successfully forwarded downstream.",
	})

	syncEventsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_events_failed_total",
		Help: "Training update events that could not be forwarded.",
	})

	loginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_failures_total",
		Help: "Rejected login attempts (bad credentials or locked account).",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		breakerState, breakerFailures,
		syncEventsSent, syncEventsFailed,
		loginFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBreakerState records the current breaker state for a downstream.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// IncBreakerFailure counts a failed primary call.
func IncBreakerFailure(name string) {
	breakerFailures.WithLabelValues(name).Inc()
}

// IncSyncSent counts one successfully forwarded sync event.
func IncSyncSent() { syncEventsSent.Inc() }

// IncSyncFailed counts one dropped sync event.
func IncSyncFailed() { syncEventsFailed.Inc() }

// IncLoginFailure counts one rejected login.
func IncLoginFailure() { loginFailures.Inc() }

// Instrument wraps next with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
