// Package metrics provides Prometheus instrumentation for the valuation
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ValuationsTotal counts valuation runs, partitioned by result
	// ("ok", "not_found", "error").
	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfolio_valuations_total",
		Help: "Total number of mark-to-market valuations",
	}, []string{"result"})

	// ValuationDuration tracks end-to-end valuation latency.
	ValuationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyfolio_valuation_duration_seconds",
		Help:    "Mark-to-market valuation latency in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})

	// DegradedValuations counts valuations that fell back to seed or
	// stale prices for at least one position.
	DegradedValuations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyfolio_degraded_valuations_total",
		Help: "Valuations that used fallback prices for one or more positions",
	})

	// CappedSellsTotal counts sell trades whose quantity exceeded the
	// held position and was capped during replay.
	CappedSellsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyfolio_capped_sells_total",
		Help: "Sell trades capped to the held quantity during ledger replay",
	})

	// TradesRecorded counts trades accepted through the recording API,
	// partitioned by side.
	TradesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfolio_trades_recorded_total",
		Help: "Trades recorded through the API",
	}, []string{"side"})

	// CacheHits counts Redis read-through hits by object kind.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfolio_cache_hits_total",
		Help: "Read-through cache hits",
	}, []string{"object"})

	// CacheMisses counts Redis read-through misses by object kind.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfolio_cache_misses_total",
		Help: "Read-through cache misses",
	}, []string{"object"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label to avoid a chi dependency here;
		// the API surface is small enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
