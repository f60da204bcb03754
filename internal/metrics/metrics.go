// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vaultgate"

// Operation outcomes.
const (
	OutcomeCommitted = "committed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

var (
	// operations counts write operations by kind and outcome.
	// Labels: operation (create, append, patch, delete), outcome
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vault",
		Name:      "operations_total",
		Help:      "Vault write operations by kind and outcome",
	}, []string{"operation", "outcome"})

	// upstreamLatency measures vault store calls.
	// Labels: method (get, put, delete, list, search, ping), status (ok, error)
	upstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency of vault store requests in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "status"})

	historyEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "entries",
		Help:      "Entries currently held in the history ring",
	})

	sseClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sse",
		Name:      "clients",
		Help:      "Connected event stream clients",
	})
)

// RecordOperation counts a finished write operation.
func RecordOperation(op, outcome string) {
	operations.WithLabelValues(op, outcome).Inc()
}

// ObserveUpstream records the latency of one vault store call.
func ObserveUpstream(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	upstreamLatency.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}

// SetHistoryEntries publishes the current ring occupancy.
func SetHistoryEntries(n int) {
	historyEntries.Set(float64(n))
}

// SetSSEClients publishes the current number of event stream clients.
func SetSSEClients(n int) {
	sseClients.Set(float64(n))
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
