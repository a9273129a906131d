// Package metrics exposes the service's prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors used across the service.
type Metrics struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	inFlight          prometheus.Gauge
	transfers         *prometheus.CounterVec
	deposits          prometheus.Counter
	withdrawals       prometheus.Counter
	faucetGrants      prometheus.Counter
	orphanedTransfers prometheus.Gauge
}

// New creates and registers the service collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_http_requests_total",
			Help: "HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coffee_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coffee_http_in_flight_requests",
			Help: "HTTP requests currently being served.",
		}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coffee_transfers_total",
			Help: "Value transfers by kind and outcome.",
		}, []string{"kind", "outcome"}),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coffee_deposits_total",
			Help: "Committed donation deposits.",
		}),
		withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coffee_withdrawals_total",
			Help: "Committed owner withdrawals.",
		}),
		faucetGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coffee_faucet_grants_total",
			Help: "Successful faucet top-ups.",
		}),
		orphanedTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coffee_orphaned_transfers",
			Help: "Transfers that committed without a record write, awaiting reconciliation.",
		}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.inFlight,
		m.transfers, m.deposits, m.withdrawals, m.faucetGrants,
		m.orphanedTransfers,
	)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementInFlight marks an HTTP request as started.
func (m *Metrics) IncrementInFlight() { m.inFlight.Inc() }

// DecrementInFlight marks an HTTP request as finished.
func (m *Metrics) DecrementInFlight() { m.inFlight.Dec() }

// RecordTransfer records one transfer attempt.
func (m *Metrics) RecordTransfer(kind string, succeeded bool) {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.transfers.WithLabelValues(kind, outcome).Inc()
}

// RecordDeposit records one committed deposit.
func (m *Metrics) RecordDeposit() { m.deposits.Inc() }

// RecordWithdrawal records one committed withdrawal.
func (m *Metrics) RecordWithdrawal() { m.withdrawals.Inc() }

// RecordFaucetGrant records one successful faucet top-up.
func (m *Metrics) RecordFaucetGrant() { m.faucetGrants.Inc() }

// SetOrphanedTransfers reports the current reconciliation backlog.
func (m *Metrics) SetOrphanedTransfers(n int) { m.orphanedTransfers.Set(float64(n)) }
