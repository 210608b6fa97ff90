// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LoginOutcomes counts login attempts by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "loginguard_login_outcomes_total",
		Help: "Total number of login attempts by outcome",
	},
	[]string{"outcome"},
)

// FailedAttempts mirrors the attempt tracker's current counter.
var FailedAttempts = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "loginguard_failed_attempts",
		Help: "Current number of consecutive failed login attempts",
	},
)

// RegisterMetrics registers auth metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginOutcomes)
	reg.MustRegister(FailedAttempts)
}

// RecordLoginOutcome increments the outcome counter.
func RecordLoginOutcome(outcome Outcome) {
	LoginOutcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveFailedAttempts updates the gauge. It is meant to be passed to
// attempt.NewTrackerWithObserver.
func ObserveFailedAttempts(failed int) {
	FailedAttempts.Set(float64(failed))
}
