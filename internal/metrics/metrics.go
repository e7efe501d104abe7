package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for content jobs on a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	jobsTotal     *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	retriesTotal  *prometheus.CounterVec
	jobsInFlight  prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "img_jobs_total",
		Help: "Content jobs finished, by final state",
	}, []string{"state"})
	failuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "img_job_failures_total",
		Help: "Failed content jobs, by failing stage and error kind",
	}, []string{"stage", "kind"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "img_stage_duration_seconds",
		Help:    "Time spent in each pipeline transition",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})
	retriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "img_external_retries_total",
		Help: "Retried calls to external services",
	}, []string{"service"})
	jobsInFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "img_jobs_in_flight",
		Help: "Content jobs currently running",
	})

	registry.MustRegister(jobsTotal, failuresTotal, stageDuration, retriesTotal, jobsInFlight)

	return &Metrics{
		registry:      registry,
		jobsTotal:     jobsTotal,
		failuresTotal: failuresTotal,
		stageDuration: stageDuration,
		retriesTotal:  retriesTotal,
		jobsInFlight:  jobsInFlight,
	}
}

func (m *Metrics) JobStarted() { m.jobsInFlight.Inc() }

// JobFinished records the final state; stage and kind are empty on success.
func (m *Metrics) JobFinished(state, stage, kind string) {
	m.jobsInFlight.Dec()
	m.jobsTotal.WithLabelValues(state).Inc()
	if kind != "" {
		m.failuresTotal.WithLabelValues(stage, kind).Inc()
	}
}

func (m *Metrics) StageDone(stage string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) Retried(service string) {
	m.retriesTotal.WithLabelValues(service).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
