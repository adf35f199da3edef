package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service counters. Each instance owns its registry so
// tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	PaymentTransitions *prometheus.CounterVec
	WebhookEvents      *prometheus.CounterVec
	ReconcileRuns      prometheus.Counter
	ReconcileItems     *prometheus.CounterVec
	ProviderCalls      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PaymentTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "payment_transitions_total",
			Help:      "Payment status transitions by source.",
		}, []string{"from", "to", "source"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "webhook_events_total",
			Help:      "Provider webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation passes started.",
		}),
		ReconcileItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "reconcile_items_total",
			Help:      "Payments handled by reconciliation by result.",
		}, []string{"result"}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "provider_calls_total",
			Help:      "Payment provider API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
	}
	m.registry.MustRegister(
		m.PaymentTransitions,
		m.WebhookEvents,
		m.ReconcileRuns,
		m.ReconcileItems,
		m.ProviderCalls,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome returns "ok" or "error" for a call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
