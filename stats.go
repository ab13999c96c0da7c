package lb

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats counts the frame bytes seen on the VIP path. Both counters only
// grow and wrap at 2^64.
type Stats struct {
	totalBits atomic.Uint64
	localBits atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalBits uint64
	LocalBits uint64
}

func (s *Stats) addTotal(n int) {
	s.totalBits.Add(uint64(n))
}

func (s *Stats) addLocal(n int) {
	s.localBits.Add(uint64(n))
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalBits: s.totalBits.Load(),
		LocalBits: s.localBits.Load(),
	}
}

// StatsCollector exports a Stats as prometheus counters.
type StatsCollector struct {
	stats     *Stats
	totalDesc *prometheus.Desc
	localDesc *prometheus.Desc
}

func NewStatsCollector(stats *Stats) *StatsCollector {
	return &StatsCollector{
		stats: stats,
		totalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(MetricsNamespace, "", "total_bits"),
			"Frame bytes received for the VIP", nil, nil),
		localDesc: prometheus.NewDesc(
			prometheus.BuildFQName(MetricsNamespace, "", "local_bits"),
			"Frame bytes for the VIP served by this host", nil, nil),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.localDesc
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.CounterValue, float64(snap.TotalBits))
	ch <- prometheus.MustNewConstMetric(c.localDesc, prometheus.CounterValue, float64(snap.LocalBits))
}
