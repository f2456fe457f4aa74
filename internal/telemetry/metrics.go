package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "treenet"

var (
	Registry = prometheus.NewRegistry()

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound messages by type.",
		},
		[]string{"type"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of outbound messages by type and result.",
		},
		[]string{"type", "result"},
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time spent connecting and writing one message.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"type"},
	)

	Admissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Number of nodes admitted as direct children.",
		},
	)

	Delegations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Number of join requests forwarded to a child.",
		},
	)

	ProbeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Number of failed parent liveness probes.",
		},
	)

	Children = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "children",
			Help:      "Current number of children.",
		},
		[]string{"node"},
	)

	Siblings = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "siblings",
			Help:      "Current number of known siblings.",
		},
		[]string{"node"},
	)

	TopologyDigest = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_digest",
			Help:      "Low 53 bits of the hash of the local view of the tree.",
		},
		[]string{"node"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesReceived,
		MessagesSent,
		SendDuration,
		Admissions,
		Delegations,
		ProbeFailures,
		Children,
		Siblings,
		TopologyDigest,
		uptime,
	)
}

// MetricsHandler exposes the registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// digestMask keeps the part of a digest a float64 gauge holds exactly.
const digestMask = 1<<53 - 1

// SetTopology publishes the size and the digest of a node's view.
func SetTopology(node string, children, siblings int, digest uint64) {
	Children.WithLabelValues(node).Set(float64(children))
	Siblings.WithLabelValues(node).Set(float64(siblings))
	TopologyDigest.WithLabelValues(node).Set(float64(digest & digestMask))
}

// ObserveSend records the outcome of one outbound message.
func ObserveSend(msgType string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	MessagesSent.WithLabelValues(msgType, result).Inc()
	SendDuration.WithLabelValues(msgType).Observe(time.Since(start).Seconds())
}
