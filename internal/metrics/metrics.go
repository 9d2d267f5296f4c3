// Package metrics holds the Prometheus collectors for auth outcomes, guard
// decisions and identity refreshes. A nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	authRequests    *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	identityRefresh *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		authRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_requests_total",
			Help:      "Auth API requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),

		guardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help:      "Route guard decisions by guard and decision",
		}, []string{"guard", "decision"}),

		identityRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_refresh_total",
			Help:      "Client store identity refreshes by result",
		}, []string{"result"}),
	}
}

// AuthRequest counts one handled auth request. outcome is e.g. "ok",
// "unauthenticated", "rejected", "misconfigured" or "error".
func (m *Metrics) AuthRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.authRequests.WithLabelValues(endpoint, outcome).Inc()
}

// GuardDecision counts one guard verdict, "allow" or "redirect".
func (m *Metrics) GuardDecision(guard, decision string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(guard, decision).Inc()
}

// IdentityRefresh counts one completed store refresh.
func (m *Metrics) IdentityRefresh(result string) {
	if m == nil {
		return
	}
	m.identityRefresh.WithLabelValues(result).Inc()
}
