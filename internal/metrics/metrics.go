package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freshloop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freshloop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freshloop_ai_requests_total",
			Help: "Text-generation calls by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freshloop_ai_request_duration_seconds",
			Help:    "Text-generation call duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 60},
		},
		[]string{"backend", "operation"},
	)

	ParseOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freshloop_parse_outcomes_total",
			Help: "Model reply parse results by stage and kind",
		},
		[]string{"stage", "kind"},
	)
	MatchesReturnedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freshloop_matches_returned_total",
			Help: "Matches returned to callers by mode",
		},
		[]string{"mode"},
	)
	MatchesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freshloop_matches_dropped_total",
			Help: "Model-proposed matches discarded during assembly, by reason",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call
// more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			ParseOutcomesTotal,
			MatchesReturnedTotal,
			MatchesDroppedTotal,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveAIRequest records one text-generation call. outcome is "ok", "error"
// or "timeout".
func ObserveAIRequest(backend, operation, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(backend, operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(backend, operation).Observe(d.Seconds())
}

func ObserveParse(stage, kind string) {
	ParseOutcomesTotal.WithLabelValues(stage, kind).Inc()
}

func AddMatchesReturned(mode string, n int) {
	if n > 0 {
		MatchesReturnedTotal.WithLabelValues(mode).Add(float64(n))
	}
}

func AddMatchesDropped(reason string, n int) {
	if n > 0 {
		MatchesDroppedTotal.WithLabelValues(reason).Add(float64(n))
	}
}
