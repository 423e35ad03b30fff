package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	tokenExchanges  *prometheus.CounterVec
	libraryFetches  *prometheus.CounterVec
	libraryRestarts prometheus.Counter
	libraryAlbums   prometheus.Histogram
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumwall_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "albumwall_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		tokenExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumwall_token_exchanges_total",
			Help: "Token endpoint calls by grant type and result.",
		}, []string{"grant", "result"}),
		libraryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "albumwall_library_fetches_total",
			Help: "Library aggregations by result.",
		}, []string{"result"}),
		libraryRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "albumwall_library_restarts_total",
			Help: "Pagination restarts caused by a rejected access token.",
		}),
		libraryAlbums: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "albumwall_library_albums",
			Help:    "Albums returned per library fetch.",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.tokenExchanges,
		m.libraryFetches,
		m.libraryRestarts,
		m.libraryAlbums,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware counts requests and observes their latency.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// TokenExchange records one token endpoint call.
func (m *Metrics) TokenExchange(grant string, err error) {
	m.tokenExchanges.WithLabelValues(grant, result(err)).Inc()
}

// LibraryFetch records one library aggregation.
func (m *Metrics) LibraryFetch(albums int, err error) {
	m.libraryFetches.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.libraryAlbums.Observe(float64(albums))
	}
}

// LibraryRestart records a pagination restart.
func (m *Metrics) LibraryRestart(int) {
	m.libraryRestarts.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
