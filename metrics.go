package lb

import (
	"github.com/prometheus/client_golang/prometheus"
)

const MetricsNamespace = "slb"

var (
	// verdicts counts processed frames by outcome.
	verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "verdicts_total",
		Help:      "Frames processed, by verdict",
	}, []string{"verdict"})

	// fibResults counts route lookups by result class.
	fibResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "fib_lookups_total",
		Help:      "Route lookups done to forward a frame, by result",
	}, []string{"result"})

	connEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: "conntrack",
		Name:      "evictions_total",
		Help:      "Connection entries forgotten because the table was full",
	})

	// releaseEvictions counts connection entries invalidated by socket
	// release, labelled by mode.
	releaseEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: "conntrack",
		Name:      "release_evictions_total",
		Help:      "Connection entries invalidated after a socket release",
	}, []string{"mode"})

	eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "eviction_events_dropped_total",
		Help:      "Eviction events dropped because the event queue was full",
	})
)

func init() {
	prometheus.MustRegister(verdicts)
	prometheus.MustRegister(fibResults)
	prometheus.MustRegister(connEvictions)
	prometheus.MustRegister(releaseEvictions)
	prometheus.MustRegister(eventsDropped)
}

// RecordVerdict increments the verdict counter.
func RecordVerdict(v Verdict) {
	verdicts.WithLabelValues(v.String()).Inc()
}

// RecordFibResult increments the route lookup counter.
func RecordFibResult(c FibCode) {
	fibResults.WithLabelValues(c.String()).Inc()
}

// RecordConnEviction increments the capacity eviction counter.
func RecordConnEviction() {
	connEvictions.Inc()
}

// RecordReleaseEviction increments the release eviction counter.
func RecordReleaseEviction(mode EvictionMode) {
	releaseEvictions.WithLabelValues(mode.String()).Inc()
}

// RecordEventDropped increments the dropped event counter.
func RecordEventDropped() {
	eventsDropped.Inc()
}
