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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minbar_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minbar_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minbar_delivery_attempts_total",
			Help: "Provider delivery attempts by provider, country, and outcome",
		},
		[]string{"provider", "country", "outcome"},
	)

	deliveryCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minbar_delivery_cost_usd_total",
			Help: "Accumulated delivery cost in USD per provider and country",
		},
		[]string{"provider", "country"},
	)

	fallbackDepth = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minbar_fallback_depth",
			Help:    "Providers attempted per delivery chain",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"comm_type"},
	)

	chainsExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minbar_chains_exhausted_total",
			Help: "Delivery chains where every candidate provider failed",
		},
		[]string{"comm_type", "country"},
	)

	voiceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minbar_voice_events_total",
			Help: "Voice call completion events received, by final status",
		},
		[]string{"status"},
	)

	voiceSessionLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minbar_voice_session_lookups_total",
			Help: "Voice session lookups by the status webhook",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDeliveryAttempt records one provider attempt outcome.
func RecordDeliveryAttempt(provider, country string, success bool, cost float64) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	deliveryAttempts.WithLabelValues(provider, country, outcome).Inc()
	if success && cost > 0 {
		deliveryCost.WithLabelValues(provider, country).Add(cost)
	}
}

// RecordFallbackDepth records how many providers a chain tried.
func RecordFallbackDepth(commType string, attempts int) {
	fallbackDepth.WithLabelValues(commType).Observe(float64(attempts))
}

// RecordChainExhausted records a chain where every provider failed.
func RecordChainExhausted(commType, country string) {
	chainsExhausted.WithLabelValues(commType, country).Inc()
}

// RecordVoiceEvent records a call-completion callback by final status.
func RecordVoiceEvent(status string) {
	voiceEvents.WithLabelValues(status).Inc()
}

// RecordVoiceSessionLookup records a webhook session lookup outcome ("hit" or "miss").
func RecordVoiceSessionLookup(outcome string) {
	voiceSessionLookups.WithLabelValues(outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
