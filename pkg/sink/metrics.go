package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SinkWrites tracks successful catalog writes by sink
	SinkWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucsb_sink_writes_total",
			Help: "Total number of successful catalog writes",
		},
		[]string{"sink"}, // "file", "redis", "object", "postgres"
	)

	// SinkErrors tracks failed catalog writes by sink
	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ucsb_sink_errors_total",
			Help: "Total number of failed catalog writes",
		},
		[]string{"sink"},
	)

	// SinkBytes tracks the encoded size of the last write by sink
	SinkBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ucsb_sink_bytes",
			Help: "Encoded size in bytes of the last catalog write",
		},
		[]string{"sink"},
	)
)
