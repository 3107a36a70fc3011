package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bereka",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bereka",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	ledgerTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bereka",
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Ledger transfers written, by reference kind.",
		},
		[]string{"reference_kind"},
	)

	ledgerSats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bereka",
			Subsystem: "ledger",
			Name:      "transferred_sats_total",
			Help:      "Sats moved by ledger transfers, by reference kind.",
		},
		[]string{"reference_kind"},
	)

	escrowOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bereka",
			Subsystem: "escrow",
			Name:      "operations_total",
			Help:      "Escrow operations by name and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	deposits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bereka",
			Subsystem: "deposits",
			Name:      "processed_total",
			Help:      "Inbound payment processing results, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bereka",
			Subsystem: "lightning",
			Name:      "calls_total",
			Help:      "Calls to the Lightning provider, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

func init() {
	Registry.MustRegister(httpRequests, httpDuration, ledgerTransfers, ledgerSats, escrowOps, deposits, providerCalls)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordTransfer counts a written ledger entry.
func RecordTransfer(referenceKind string, amount int64) {
	ledgerTransfers.WithLabelValues(referenceKind).Inc()
	ledgerSats.WithLabelValues(referenceKind).Add(float64(amount))
}

// RecordEscrow counts an escrow operation outcome ("ok" or an error class).
func RecordEscrow(operation, outcome string) {
	escrowOps.WithLabelValues(operation, outcome).Inc()
}

// RecordDeposit counts an inbound payment outcome.
func RecordDeposit(provider, outcome string) {
	deposits.WithLabelValues(provider, outcome).Inc()
}

// RecordProviderCall counts a Lightning provider call outcome.
func RecordProviderCall(operation, outcome string) {
	providerCalls.WithLabelValues(operation, outcome).Inc()
}
