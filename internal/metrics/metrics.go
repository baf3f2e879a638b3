// Package metrics exposes Prometheus counters for the authentication flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess            = "success"
	ResultMissingField       = "missing_field"
	ResultInvalidCredentials = "invalid_credentials"
	ResultPasswordMismatch   = "password_mismatch"
	ResultAlreadyExists      = "already_exists"
	ResultInvalidPassword    = "invalid_password"
	// ResultError counts store and hashing failures, never user input.
	ResultError = "error"
)

// Metrics holds the application's collectors. A nil *Metrics is valid and
// records nothing, so services can be built without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	LoginsTotal        *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	LogoutsTotal       prometheus.Counter
}

// New creates a private registry with Go and process collectors plus the
// application counters. activeSessions, if non-nil, backs the
// user_auth_sessions_active gauge.
func New(activeSessions func() int) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "user_auth_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "user_auth_registrations_total",
				Help: "Total number of registration attempts by result",
			},
			[]string{"result"},
		),
		LogoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "user_auth_logouts_total",
			Help: "Total number of logouts",
		}),
	}

	registry.MustRegister(m.LoginsTotal, m.RegistrationsTotal, m.LogoutsTotal)

	if activeSessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "user_auth_sessions_active",
				Help: "Number of sessions in the session table",
			},
			func() float64 { return float64(activeSessions()) },
		))
	}

	return m
}

// ObserveLogin counts a login attempt.
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// ObserveRegistration counts a registration attempt.
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

// ObserveLogout counts a logout.
func (m *Metrics) ObserveLogout() {
	if m == nil {
		return
	}
	m.LogoutsTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
