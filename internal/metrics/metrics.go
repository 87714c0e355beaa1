package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shopfloor"

// Metrics holds the shopfloor collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	JobCardUpdates *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	RunningTimers  prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
	m.JobCardUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_card_updates_total",
			Help:      "Accepted job card updates by resulting status",
		},
		[]string{"status"},
	)
	m.Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_card_transitions_total",
			Help:      "Operator transitions by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	m.RunningTimers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_timers",
			Help:      "Job cards whose duration clock is running",
		},
	)

	registry.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration, m.JobCardUpdates, m.Transitions, m.RunningTimers)
	return m
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordJobCardUpdate counts an accepted job card update.
func (m *Metrics) RecordJobCardUpdate(status string) {
	m.JobCardUpdates.WithLabelValues(status).Inc()
}

// ObserveTransition implements jobcard.Recorder.
func (m *Metrics) ObserveTransition(action, outcome string) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

// SetRunningTimers reports how many duration clocks are running.
func (m *Metrics) SetRunningTimers(n int) {
	m.RunningTimers.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
