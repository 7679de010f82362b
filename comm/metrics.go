package comm

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haloex",
			Subsystem: "comm",
			Name:      "messages_total",
			Help:      "Messages moved through an endpoint.",
		},
		[]string{"transport", "direction"},
	)
	payloadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "haloex",
			Subsystem: "comm",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes moved through an endpoint.",
		},
		[]string{"transport", "direction"},
	)
	payloadSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "haloex",
			Subsystem: "comm",
			Name:      "payload_size_bytes",
			Help:      "Sent payload size distribution.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"transport"},
	)
)

// RegisterMetrics registers the comm collectors with the default
// registry. Safe to call from every transport.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesTotal, payloadBytes, payloadSize)
	})
}

func recordMessage(transport, direction string, n int) {
	RegisterMetrics()
	messagesTotal.WithLabelValues(transport, direction).Inc()
	payloadBytes.WithLabelValues(transport, direction).Add(float64(n))
	if direction == "send" {
		payloadSize.WithLabelValues(transport).Observe(float64(n))
	}
}
