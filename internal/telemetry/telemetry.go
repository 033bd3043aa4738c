// Package telemetry exposes HeapPulse's own operational health as
// Prometheus metrics, the same custom-Collector style
// talyz-systemd_exporter's systemd.Collector uses (prometheus.NewDesc
// at construction time, prometheus.MustNewConstMetric at Collect time)
// rather than promauto's package-global registration, so a caller can
// hold multiple independently-scoped Collectors (useful in tests).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is the subset of internal/scheduler.Scheduler's public
// surface telemetry needs; declared as an interface here so tests can
// supply a fake without constructing a real Scheduler.
type StatsSource interface {
	Stats() (intervalsRun, faultsDropped uint64)
	IsInInterval() bool
}

// DropsSource is the subset of internal/registry.Store's public surface
// telemetry needs.
type DropsSource interface {
	Drops() (siteDrops, recordDrops uint64)
}

// Collector adapts a running HeapPulse instance's scheduler and
// registry into a prometheus.Collector.
type Collector struct {
	sched StatsSource
	store DropsSource

	intervalsTotal     *prometheus.Desc
	faultsDroppedTotal *prometheus.Desc
	registryDropsTotal *prometheus.Desc
	inIntervalDesc     *prometheus.Desc
}

// NewCollector builds a Collector reading live stats from sched and store.
func NewCollector(sched StatsSource, store DropsSource) *Collector {
	return &Collector{
		sched: sched,
		store: store,
		intervalsTotal: prometheus.NewDesc(
			"heappulse_intervals_total",
			"Number of measurement intervals the scheduler has completed.",
			nil, nil,
		),
		faultsDroppedTotal: prometheus.NewDesc(
			"heappulse_faults_dropped_total",
			"Number of page-fault signal records dropped because the fault set was full.",
			nil, nil,
		),
		registryDropsTotal: prometheus.NewDesc(
			"heappulse_registry_capacity_drops_total",
			"Number of allocation records or new allocation sites dropped because a fixed-capacity registry map was full.",
			nil, nil,
		),
		inIntervalDesc: prometheus.NewDesc(
			"heappulse_in_interval",
			"1 if a measurement interval is currently running, 0 otherwise.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.intervalsTotal
	ch <- c.faultsDroppedTotal
	ch <- c.registryDropsTotal
	ch <- c.inIntervalDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	intervalsRun, faultsDropped := c.sched.Stats()

	ch <- prometheus.MustNewConstMetric(c.intervalsTotal, prometheus.CounterValue, float64(intervalsRun))
	ch <- prometheus.MustNewConstMetric(c.faultsDroppedTotal, prometheus.CounterValue, float64(faultsDropped))

	if c.store != nil {
		siteDrops, recordDrops := c.store.Drops()
		ch <- prometheus.MustNewConstMetric(c.registryDropsTotal, prometheus.CounterValue, float64(siteDrops+recordDrops))
	}

	inIntervalVal := 0.0
	if c.sched.IsInInterval() {
		inIntervalVal = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.inIntervalDesc, prometheus.GaugeValue, inIntervalVal)
}
