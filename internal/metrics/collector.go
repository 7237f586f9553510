package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"jobsched/internal/job"
	"jobsched/internal/job/engine"
)

// StatusSource is satisfied by *scheduler.Service.
type StatusSource interface {
	JobStatuses() []job.Status
	Paused() bool
}

// EngineSource is satisfied by *engine.Service.
type EngineSource interface {
	Snapshot() engine.Snapshot
}

// Collector reports registry state at scrape time.
type Collector struct {
	statuses StatusSource
	engine   EngineSource

	registered *prometheus.Desc
	paused     *prometheus.Desc
	errorCount *prometheus.Desc
	lastRun    *prometheus.Desc
	nextRun    *prometheus.Desc
	global     *prometheus.Desc

	queueLen *prometheus.Desc
	queueCap *prometheus.Desc
	inFlight *prometheus.Desc
	dropped  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds the collector. eng may be nil.
func NewCollector(namespace string, statuses StatusSource, eng EngineSource) *Collector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		statuses:   statuses,
		engine:     eng,
		registered: d("jobs_registered", "Registered jobs by category", "category"),
		paused:     d("jobs_paused", "Registered jobs currently paused at any level", "category"),
		errorCount: d("job_consecutive_errors", "Consecutive failures of a job", "job"),
		lastRun:    d("job_last_run_timestamp_seconds", "Start time of the last finished run", "job"),
		nextRun:    d("job_next_run_timestamp_seconds", "Next scheduled tick", "job"),
		global:     d("scheduler_paused", "1 when the scheduler is globally paused"),
		queueLen:   d("engine_queue_length", "Runs waiting for a worker"),
		queueCap:   d("engine_queue_capacity", "Capacity of the run queue"),
		inFlight:   d("engine_in_flight", "Runs executing on workers"),
		dropped:    d("engine_dropped_total", "Runs rejected because the queue was full"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.registered, c.paused, c.errorCount, c.lastRun, c.nextRun, c.global, c.queueLen, c.queueCap, c.inFlight, c.dropped} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	registered := map[string]float64{}
	paused := map[string]float64{}
	for _, st := range c.statuses.JobStatuses() {
		cat := st.Key.Category
		registered[cat]++
		if st.Paused {
			paused[cat]++
		} else if _, ok := paused[cat]; !ok {
			paused[cat] = 0
		}
		key := st.Key.String()
		ch <- prometheus.MustNewConstMetric(c.errorCount, prometheus.GaugeValue, float64(st.LastErrorCount), key)
		if !st.LastRunAt.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.lastRun, prometheus.GaugeValue, float64(st.LastRunAt.UnixNano())/1e9, key)
		}
		if !st.NextRun.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.nextRun, prometheus.GaugeValue, float64(st.NextRun.UnixNano())/1e9, key)
		}
	}
	for cat, n := range registered {
		ch <- prometheus.MustNewConstMetric(c.registered, prometheus.GaugeValue, n, cat)
		ch <- prometheus.MustNewConstMetric(c.paused, prometheus.GaugeValue, paused[cat], cat)
	}
	g := 0.0
	if c.statuses.Paused() {
		g = 1
	}
	ch <- prometheus.MustNewConstMetric(c.global, prometheus.GaugeValue, g)

	if c.engine == nil {
		return
	}
	snap := c.engine.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.queueLen, prometheus.GaugeValue, float64(snap.QueueLen))
	ch <- prometheus.MustNewConstMetric(c.queueCap, prometheus.GaugeValue, float64(snap.QueueCap))
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(snap.InFlight))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(snap.DroppedQueueFull))
}
