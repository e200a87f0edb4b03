// Package metrics registers Prometheus collectors for the HTTP API and the
// realtime stream.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	streamConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stream_active_connections",
		Help: "Currently subscribed realtime connections.",
	})

	streamEventsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_events_delivered_total",
		Help: "Realtime events enqueued to subscribers.",
	})

	streamEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_events_dropped_total",
		Help: "Realtime events discarded because a subscriber overflowed.",
	})
)

func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		streamConnections,
		streamEventsDelivered,
		streamEventsDropped,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ConnectionOpened() { streamConnections.Inc() }
func ConnectionClosed() { streamConnections.Dec() }
func EventDelivered()   { streamEventsDelivered.Inc() }
func EventDropped()     { streamEventsDropped.Inc() }

// Instrument measures request rate, latency and in-flight count.
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

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
