package mfa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationsTotal counts verification attempts by method and outcome
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfa_verifications_total",
			Help: "Total MFA verification attempts",
		},
		[]string{"method", "outcome"},
	)

	// EnrollmentsTotal counts enrollment lifecycle operations
	EnrollmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfa_enrollments_total",
			Help: "Total MFA enrollment operations",
		},
		[]string{"operation"},
	)

	// LockoutsTriggeredTotal counts lockout activations
	LockoutsTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mfa_lockouts_triggered_total",
			Help: "Total lockouts triggered by repeated failures",
		},
	)

	// VerificationLatencySeconds measures end-to-end verification latency
	VerificationLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mfa_verification_latency_seconds",
			Help:    "MFA verification latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// EventsDroppedTotal counts Record calls rejected by backpressure
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mfa_security_events_rejected_total",
			Help: "Total security events rejected because the buffer was saturated",
		},
	)
)

// RecordVerification records one verification attempt
func RecordVerification(method, outcome string, seconds float64) {
	VerificationsTotal.WithLabelValues(method, outcome).Inc()
	VerificationLatencySeconds.WithLabelValues(method).Observe(seconds)
}

// RecordEnrollmentOp records an enrollment lifecycle operation
func RecordEnrollmentOp(operation string) {
	EnrollmentsTotal.WithLabelValues(operation).Inc()
}

// RecordLockoutTriggered increments the lockout counter
func RecordLockoutTriggered() {
	LockoutsTriggeredTotal.Inc()
}

// RecordEventRejected increments the backpressure rejection counter
func RecordEventRejected() {
	EventsDroppedTotal.Inc()
}
