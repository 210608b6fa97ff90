// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

package captcha

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for verification metrics.
const (
	ResultAccepted    = "accepted"
	ResultRejected    = "rejected"
	ResultUnavailable = "unavailable"
)

// Verifications counts provider verifications by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var Verifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "loginguard_captcha_verifications_total",
		Help: "Total number of captcha verifications by result",
	},
	[]string{"result"},
)

// VerifyDuration observes how long provider calls take, retries included.
var VerifyDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "loginguard_captcha_verify_duration_seconds",
		Help:    "Captcha provider verification duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// RegisterMetrics registers captcha metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Verifications)
	reg.MustRegister(VerifyDuration)
}

func recordVerification(result string, d time.Duration) {
	Verifications.WithLabelValues(result).Inc()
	if d > 0 {
		VerifyDuration.Observe(d.Seconds())
	}
}
