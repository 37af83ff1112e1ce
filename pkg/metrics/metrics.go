package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// activeSessionsSource holds a func() float64 queried on each scrape so
// the gauge survives restarts and never drifts from the session store.
var activeSessionsSource atomic.Value

// SetActiveSessionsSource installs the callback backing the
// whisperbox_active_sessions gauge. Passing nil resets it to zero.
func SetActiveSessionsSource(source func() float64) {
	if source == nil {
		source = func() float64 { return 0 }
	}
	activeSessionsSource.Store(source)
}

var (
	// AuthAttempts records authentication attempts by result
	// (success|failure|unverified|error).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisperbox_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// Registrations counts registration attempts and their outcome
	// (success|invalid|duplicate|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisperbox_registrations_total",
			Help: "Total number of registration attempts",
		},
		[]string{"result"},
	)

	// Verifications counts email verification attempts by outcome
	// (verified|expired|invalid|missing|error).
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisperbox_verifications_total",
			Help: "Total number of email verification attempts",
		},
		[]string{"result"},
	)

	// VerificationEmails counts dispatched verification emails by result
	// (sent|error).
	VerificationEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisperbox_verification_emails_total",
			Help: "Total number of verification emails dispatched",
		},
		[]string{"result"},
	)

	// ActiveSessions reports sessions that are neither expired nor
	// revoked, counted live from the installed source.
	ActiveSessions = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "whisperbox_active_sessions",
			Help: "Number of active sessions",
		},
		func() float64 {
			if source, ok := activeSessionsSource.Load().(func() float64); ok {
				return source()
			}
			return 0
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whisperbox_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
