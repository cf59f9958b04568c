// Package metrics exposes engine state to Prometheus. The collector
// reads live snapshots at scrape time instead of maintaining counters
// alongside the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gregoryb/recordscrape/internal/pool"
	"github.com/gregoryb/recordscrape/internal/task"
)

var (
	poolSessionsDesc = prometheus.NewDesc(
		"recordscrape_pool_sessions",
		"Browser sessions in the pool by state.",
		[]string{"state"}, nil,
	)
	tasksDesc = prometheus.NewDesc(
		"recordscrape_tasks",
		"Tasks known to the engine by status.",
		[]string{"status"}, nil,
	)
)

// Collector implements prometheus.Collector over the task engine.
type Collector struct {
	poolStats func() pool.Stats
	tasks     func() []task.Record
}

// NewCollector builds a Collector from snapshot functions so the
// metrics package needs no reference to the manager itself.
func NewCollector(poolStats func() pool.Stats, tasks func() []task.Record) *Collector {
	return &Collector{poolStats: poolStats, tasks: tasks}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolSessionsDesc
	ch <- tasksDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.poolStats()
	ch <- prometheus.MustNewConstMetric(poolSessionsDesc, prometheus.GaugeValue, float64(stats.Busy), "busy")
	ch <- prometheus.MustNewConstMetric(poolSessionsDesc, prometheus.GaugeValue, float64(stats.Idle), "idle")

	counts := make(map[task.Status]int)
	for _, rec := range c.tasks() {
		counts[rec.Status]++
	}
	// Emit every status so series do not flap in and out of existence.
	for _, status := range []task.Status{
		task.StatusCreated,
		task.StatusPending,
		task.StatusRunning,
		task.StatusStopping,
		task.StatusCompleted,
		task.StatusFailed,
		task.StatusCanceled,
	} {
		ch <- prometheus.MustNewConstMetric(tasksDesc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
