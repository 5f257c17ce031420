package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "confidentialbid",
	Name:      "operations_total",
	Help:      "Total number of auction operations, by operation and result code.",
}, []string{"op", "result"})

var ComputeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "confidentialbid",
	Name:      "compute_calls_total",
	Help:      "Total number of confidential compute calls, by operation and result.",
}, []string{"op", "result"})

var EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "confidentialbid",
	Name:      "events_published_total",
	Help:      "Total number of notifications handed to sinks.",
}, []string{"sink", "event", "result"})

var EnclaveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "confidentialbid",
	Name:      "enclave_requests_total",
	Help:      "Total number of coprocessor requests, by type and result.",
}, []string{"type", "result"})

var EscrowRevertFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "confidentialbid",
	Name:      "escrow_revert_failures_total",
	Help:      "Escrow transfers that could not be undone after their transaction failed.",
})

var AuctionsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "confidentialbid",
	Name:      "auctions",
	Help:      "Number of known auctions, by lifecycle status.",
}, []string{"status"})

var opWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "confidentialbid",
	Name:      "op_wait_seconds",
	Help:      "Time spent waiting to enter a critical section, by operation.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
}, []string{"op"})

// OpWait records how long op waited before it could start.
func OpWait(op string, took time.Duration) {
	opWaitSeconds.WithLabelValues(op).Observe(took.Seconds())
}

// Result renders an error as a metric label value.
func Result(err error) string {
	if err == nil {
		return "success"
	}
	return "error"
}
