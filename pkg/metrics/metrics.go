package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionTotal counts admission-control decisions by outcome
	// (allowed, rate_limited, attack_detected).
	AdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "admission_total",
		Help:      "Admission control decisions by outcome",
	}, []string{"outcome"})

	// PhaseTransitionsTotal counts transfer state machine transitions.
	PhaseTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "phase_transitions_total",
		Help:      "Transfer phase transitions",
	}, []string{"phase"})

	// RateLimitChecksTotal counts rate limiter checks by result.
	RateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "rate_limit_checks_total",
		Help:      "Rate limiter checks by result",
	}, []string{"result"})

	// AdapterCallsTotal counts outbound chain adapter calls by chain and result.
	AdapterCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "adapter_calls_total",
		Help:      "Chain adapter calls by chain and result",
	}, []string{"chain", "result"})

	// AttacksDetectedTotal counts transfers blocked by the flash-loan detector.
	AttacksDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge",
		Name:      "attacks_detected_total",
		Help:      "Transfers blocked by the flash-loan detector",
	})
)
