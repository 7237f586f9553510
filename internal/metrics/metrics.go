// Package metrics exposes scheduler activity to Prometheus: a job.Listener
// counting runs, and a collector reading registry and engine snapshots at
// scrape time.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"jobsched/internal/job"
)

const Namespace = "jobsched"

type PrometheusMetrics struct {
	registry    prometheus.Registerer
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	running     *prometheus.GaugeVec
	progress    *prometheus.CounterVec
	pauses      *prometheus.CounterVec
}

var _ job.Listener = (*PrometheusMetrics)(nil)

func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		registry: reg,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Finished job runs by outcome",
			},
			[]string{"category", "type", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_run_duration_seconds",
				Help:      "Duration of job runs",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"category", "type"},
		),
		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_runs_in_flight",
				Help:      "Job runs currently executing",
			},
			[]string{"category", "type"},
		),
		progress: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_progress_messages_total",
				Help:      "Progress messages emitted by running jobs",
			},
			[]string{"category", "type"},
		),
		pauses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_pause_events_total",
				Help:      "Pause and resume notifications",
			},
			[]string{"action"},
		),
	}

	reg.MustRegister(m.runsTotal, m.runDuration, m.running, m.progress, m.pauses)
	return m
}

func (m *PrometheusMetrics) OnJobStart(r job.Run) {
	m.running.WithLabelValues(r.Key.Category, r.Key.Type).Inc()
}

func (m *PrometheusMetrics) OnJobProgress(r job.Run, _ string) {
	m.progress.WithLabelValues(r.Key.Category, r.Key.Type).Inc()
}

func (m *PrometheusMetrics) OnJobComplete(r job.Run, took time.Duration) {
	m.record(r, "success", took)
}

func (m *PrometheusMetrics) OnJobError(r job.Run, _ error, took time.Duration) {
	m.record(r, "failure", took)
}

func (m *PrometheusMetrics) OnJobPaused(job.Key)  { m.pauses.WithLabelValues("pause").Inc() }
func (m *PrometheusMetrics) OnJobResumed(job.Key) { m.pauses.WithLabelValues("resume").Inc() }

func (m *PrometheusMetrics) record(r job.Run, status string, took time.Duration) {
	m.running.WithLabelValues(r.Key.Category, r.Key.Type).Dec()
	m.runsTotal.WithLabelValues(r.Key.Category, r.Key.Type, status).Inc()
	m.runDuration.WithLabelValues(r.Key.Category, r.Key.Type).Observe(took.Seconds())
}
