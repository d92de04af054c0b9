// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for gatekeeper metrics.
const (
	ResultSuccess     = "success"
	ResultDenied      = "denied"
	ResultInvalid     = "invalid_credentials"
	ResultRateLimited = "rate_limited"
	ResultUnknown     = "not_registered"
	ResultWeak        = "weak_password"
	ResultDuplicate   = "already_registered"
	ResultError       = "error"
)

// Metrics holds the gatekeeper's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Admissions     *prometheus.CounterVec
	LoginAttempts  *prometheus.CounterVec
	Registrations  *prometheus.CounterVec
	Denials        *prometheus.CounterVec
	PremiumLookups *prometheus.CounterVec
	Sessions       *prometheus.GaugeVec
}

// NewMetrics creates and registers the gatekeeper metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_admissions_total",
				Help: "Total number of network-level admission decisions by account kind and result",
			},
			[]string{"kind", "result"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_login_attempts_total",
				Help: "Total number of /login attempts by result",
			},
			[]string{"result"},
		),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_registrations_total",
				Help: "Total number of /register attempts by result",
			},
			[]string{"result"},
		),
		Denials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_denials_total",
				Help: "Total number of commands, chat messages and routes blocked for unauthenticated players",
			},
			[]string{"type"},
		),
		PremiumLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authgate_premium_lookups_total",
				Help: "Total number of premium name lookups by classification",
			},
			[]string{"classification"},
		),
		Sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "authgate_sessions",
				Help: "Current number of connected players by state",
			},
			[]string{"state"},
		),
	}

	reg.MustRegister(m.Admissions)
	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.Registrations)
	reg.MustRegister(m.Denials)
	reg.MustRegister(m.PremiumLookups)
	reg.MustRegister(m.Sessions)

	return m
}

func (m *Metrics) admission(kind, result string) {
	if m != nil {
		m.Admissions.WithLabelValues(kind, result).Inc()
	}
}

func (m *Metrics) login(result string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) registration(result string) {
	if m != nil {
		m.Registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) denial(kind string) {
	if m != nil {
		m.Denials.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) premiumLookup(c Classification) {
	if m != nil {
		m.PremiumLookups.WithLabelValues(c.String()).Inc()
	}
}

func (m *Metrics) sessions(total, authenticated int) {
	if m != nil {
		m.Sessions.WithLabelValues("authenticated").Set(float64(authenticated))
		m.Sessions.WithLabelValues("pending").Set(float64(total - authenticated))
	}
}
