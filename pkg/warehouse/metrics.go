package warehouse

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector exposes database/sql pool statistics as Prometheus metrics.
// Stats are read from the pool on each scrape.
type PoolStatsCollector struct {
	db *sql.DB

	openConns    *prometheus.Desc
	inUseConns   *prometheus.Desc
	idleConns    *prometheus.Desc
	maxOpenConns *prometheus.Desc
	waitCount    *prometheus.Desc
	waitSeconds  *prometheus.Desc
}

// NewPoolStatsCollector creates a new collector for the given pool.
func NewPoolStatsCollector(db *sql.DB, namespace, serviceName string) *PoolStatsCollector {
	constLabels := prometheus.Labels{"service": serviceName}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "warehouse_pool", name), help, nil, constLabels)
	}

	return &PoolStatsCollector{
		db:           db,
		openConns:    desc("open_conns", "Number of established warehouse connections"),
		inUseConns:   desc("in_use_conns", "Number of warehouse connections currently in use"),
		idleConns:    desc("idle_conns", "Number of idle warehouse connections"),
		maxOpenConns: desc("max_open_conns", "Maximum number of open warehouse connections"),
		waitCount:    desc("wait_count_total", "Total number of connections waited for"),
		waitSeconds:  desc("wait_seconds_total", "Total time blocked waiting for a connection"),
	}
}

// Describe sends all metric descriptors to the channel.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openConns
	ch <- c.inUseConns
	ch <- c.idleConns
	ch <- c.maxOpenConns
	ch <- c.waitCount
	ch <- c.waitSeconds
}

// Collect gathers current pool statistics and sends them as metrics.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil {
		return
	}

	stats := c.db.Stats()

	ch <- prometheus.MustNewConstMetric(c.openConns, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUseConns, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.maxOpenConns, prometheus.GaugeValue, float64(stats.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitSeconds, prometheus.CounterValue, stats.WaitDuration.Seconds())
}

// RegisterPoolStatsCollector creates and registers a pool stats collector with reg.
// An already registered collector is not an error.
func RegisterPoolStatsCollector(db *sql.DB, namespace, serviceName string, reg prometheus.Registerer) (*PoolStatsCollector, error) {
	collector := NewPoolStatsCollector(db, namespace, serviceName)
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}
	return collector, nil
}
