package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.PaymentTransitions.WithLabelValues("pending", "success", "webhook").Inc()
	m.ReconcileRuns.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `storefront_payment_transitions_total{from="pending",source="webhook",to="success"} 1`)
	assert.Contains(t, body, "storefront_reconcile_runs_total 1")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
