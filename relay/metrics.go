package relay

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	relayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radio_relay_requests_total",
			Help: "Stream relay requests by outcome",
		},
		[]string{"result"},
	)

	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "radio_relay_active_streams",
			Help: "Streams currently being relayed to listeners",
		},
	)

	bytesRelayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_relay_bytes_total",
			Help: "Audio bytes relayed from upstream to listeners",
		},
	)

	stallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "radio_relay_stalls_total",
			Help: "Relayed streams that went silent for longer than the stall threshold",
		},
	)
)

func init() {
	prometheus.MustRegister(relayRequestsTotal)
	prometheus.MustRegister(activeStreams)
	prometheus.MustRegister(bytesRelayed)
	prometheus.MustRegister(stallsTotal)
}

const (
	resultStreaming   = "streaming"
	resultUnavailable = "unavailable"
	resultTimeout     = "timeout"
	resultUpstreamErr = "upstream_error"
	resultAborted     = "aborted"
)

func resultLabel(err error) string {
	switch {
	case err == nil:
		return resultStreaming
	case errors.Is(err, ErrClientAbort):
		return resultAborted
	case errors.Is(err, ErrUpstreamTimeout):
		return resultTimeout
	case errors.Is(err, ErrUpstreamUnavailable):
		return resultUnavailable
	default:
		return resultUpstreamErr
	}
}
