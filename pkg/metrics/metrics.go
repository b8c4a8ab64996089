// Package metrics exposes backend registry state to Prometheus. The
// collector walks the live factory instances on every scrape, so numbers
// are read straight from the drivers instead of being pushed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xuejiangtao/rrd4j/pkg/backend"
)

const namespace = "rrd"

// RegistryCollector implements prometheus.Collector over a backend
// registry. It reports the lifecycle state of every built factory and
// whatever driver statistics each one exposes.
type RegistryCollector struct {
	reg *backend.Registry

	stateDesc *prometheus.Desc
	statDesc  *prometheus.Desc
}

// NewRegistryCollector returns a collector for reg. Register it with a
// prometheus.Registerer to activate it.
func NewRegistryCollector(reg *backend.Registry) *RegistryCollector {
	return &RegistryCollector{
		reg: reg,
		stateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "backend", "factory_state"),
			"Lifecycle state of a backend factory instance (0=NEW through 5=FAILED)",
			[]string{"factory"}, nil,
		),
		statDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "backend", "driver_stat"),
			"Driver statistic reported by a backend factory",
			[]string{"factory", "stat"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.statDesc
}

// Collect implements prometheus.Collector.
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	for _, f := range c.reg.Built() {
		ch <- prometheus.MustNewConstMetric(
			c.stateDesc, prometheus.GaugeValue, float64(f.State()), f.Name(),
		)
		for stat, value := range f.Stats() {
			ch <- prometheus.MustNewConstMetric(
				c.statDesc, prometheus.GaugeValue, value, f.Name(), stat,
			)
		}
	}
}
