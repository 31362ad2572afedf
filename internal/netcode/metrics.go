package netcode

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors a Connection updates as it sends,
// receives, and drops packets, plus the round-trip-time histogram a client
// session observes from its send/ServerTick timing. It is constructed once
// per process and shared by every Connection that process owns; nothing
// here is a package-level global, so tests can register an independent
// Metrics against a throwaway registry.
type Metrics struct {
	packetsSent     prometheus.Counter
	packetsReceived prometheus.Counter
	packetsDropped  prometheus.Counter
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
	roundTripTime   prometheus.Histogram
}

// NewMetrics registers the connection-level collectors against reg under the
// given role label ("server" or "client") and returns a Metrics ready to
// pass to NewConnection.
func NewMetrics(reg prometheus.Registerer, role string) *Metrics {
	labels := prometheus.Labels{"role": role}

	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tanknet_packets_sent_total",
		Help: "Datagrams sent by this connection.",
	}, []string{"role"})
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tanknet_packets_received_total",
		Help: "Datagrams successfully ingested by this connection.",
	}, []string{"role"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tanknet_packets_dropped_total",
		Help: "Datagrams dropped by this connection for failing header parsing.",
	}, []string{"role"})

	m := &Metrics{
		packetsSent:     sent.WithLabelValues(role),
		packetsReceived: received.WithLabelValues(role),
		packetsDropped:  dropped.WithLabelValues(role),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tanknet_bytes_sent_total",
			Help:        "Bytes sent by this connection, including the header.",
			ConstLabels: labels,
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tanknet_bytes_received_total",
			Help:        "Bytes ingested by this connection, including the header.",
			ConstLabels: labels,
		}),
		roundTripTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "tanknet_round_trip_seconds",
			Help:        "Round-trip time between an outgoing send and the next received ServerTick.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(sent, received, dropped, m.bytesSent, m.bytesReceived, m.roundTripTime)
	return m
}

// ObserveRoundTrip records one round-trip-time sample.
func (m *Metrics) ObserveRoundTrip(d time.Duration) {
	m.roundTripTime.Observe(d.Seconds())
}
