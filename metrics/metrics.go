// Package metrics declares the domain counters exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_logins_total",
			Help: "Login attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	registrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_registrations_total",
			Help: "Registration attempts by flow and outcome",
		},
		[]string{"flow", "outcome"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_verifications_total",
			Help: "Verification token redemptions by outcome",
		},
		[]string{"outcome"},
	)

	verificationMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_verification_messages_total",
			Help: "Verification direct messages sent by outcome",
		},
		[]string{"outcome"},
	)

	sessionRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_session_refreshes_total",
			Help: "Portal session refreshes against the account API by outcome",
		},
		[]string{"outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func ObserveLogin(method string, err error) {
	loginsTotal.WithLabelValues(method, outcome(err)).Inc()
}

func ObserveRegistration(flow string, err error) {
	registrationsTotal.WithLabelValues(flow, outcome(err)).Inc()
}

func ObserveVerification(err error) {
	verificationsTotal.WithLabelValues(outcome(err)).Inc()
}

func ObserveVerificationMessage(err error) {
	verificationMessagesTotal.WithLabelValues(outcome(err)).Inc()
}

func ObserveSessionRefresh(err error) {
	sessionRefreshesTotal.WithLabelValues(outcome(err)).Inc()
}
