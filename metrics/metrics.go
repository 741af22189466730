// Package metrics exposes Prometheus instrumentation for the API, the config
// cache and the scheduler jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Provider interface {
	IncRequestsTotal(route string, status int)
	ObserveRequestDuration(route string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObserveJob(job string, duration time.Duration, err error)
	AddLotsGenerated(n int)
	AddLotsExpired(n int)
	Handler() http.Handler
}

type Prometheus struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	lotsGenerated   prometheus.Counter
	lotsExpired     prometheus.Counter
}

// New returns a Prometheus provider on its own registry, or a no-op when
// disabled.
func New(enabled bool) Provider {
	if !enabled {
		return Noop{}
	}
	reg := prometheus.NewRegistry()
	m := &Prometheus{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yukyu_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yukyu_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yukyu_config_cache_hits_total",
			Help: "Total number of config cache hits",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yukyu_config_cache_misses_total",
			Help: "Total number of config cache misses",
		}),

		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yukyu_job_runs_total",
			Help: "Scheduler job runs by outcome",
		}, []string{"job", "outcome"}),

		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yukyu_job_duration_seconds",
			Help:    "Scheduler job duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),

		lotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yukyu_lots_generated_total",
			Help: "Grant lots created by generation runs",
		}),

		lotsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yukyu_lots_expired_total",
			Help: "Grant lots zeroed by the expiry sweep",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.cacheHits, m.cacheMisses,
		m.jobRuns, m.jobDuration, m.lotsGenerated, m.lotsExpired)
	return m
}

func (m *Prometheus) IncRequestsTotal(route string, status int) {
	m.requestsTotal.WithLabelValues(route, httpStatusBucket(status)).Inc()
}

func (m *Prometheus) ObserveRequestDuration(route string, duration time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Prometheus) IncCacheHits()   { m.cacheHits.Inc() }
func (m *Prometheus) IncCacheMisses() { m.cacheMisses.Inc() }

func (m *Prometheus) ObserveJob(job string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *Prometheus) AddLotsGenerated(n int) { m.lotsGenerated.Add(float64(n)) }
func (m *Prometheus) AddLotsExpired(n int)   { m.lotsExpired.Add(float64(n)) }

func (m *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Noop is used when metrics are disabled.
type Noop struct{}

func (Noop) IncRequestsTotal(string, int)                 {}
func (Noop) ObserveRequestDuration(string, time.Duration) {}
func (Noop) IncCacheHits()                                {}
func (Noop) IncCacheMisses()                              {}
func (Noop) ObserveJob(string, time.Duration, error)      {}
func (Noop) AddLotsGenerated(int)                         {}
func (Noop) AddLotsExpired(int)                           {}

func (Noop) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "metrics disabled", http.StatusNotFound)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware records count and latency per chi route pattern, falling back
// to the raw path outside a chi router.
func Middleware(m Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			m.IncRequestsTotal(route, sw.status)
			m.ObserveRequestDuration(route, time.Since(start))
		})
	}
}
