// Package provider wraps the external payment provider. Amounts cross this
// boundary in major units and are converted to minor units here.
package provider

import (
	"context"
	"strings"

	"github.com/example/storefront/pkg/models"
	"github.com/shopspring/decimal"
)

type IntentRequest struct {
	OrderID     string
	Amount      float64
	CustomerID  string
	Currency    string
	Description string
}

type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	CustomerID   string
	OrderID      string
	// FailureMessage carries the provider's last payment error, if any.
	FailureMessage string
}

// Event is a verified webhook notification. Intent is set for
// payment_intent.* events.
type Event struct {
	ID     string
	Type   string
	Intent *Intent
}

// Webhook event types handled by the service.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventIntentCanceled  = "payment_intent.canceled"
)

type Provider interface {
	CreateOrRetrieveCustomer(ctx context.Context, email, name string) (string, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (Intent, error)
	// ConstructEvent verifies the signature header against the webhook
	// secret and decodes the payload.
	ConstructEvent(payload []byte, sigHeader string) (Event, error)
	WebhookConfigured() bool
}

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a major-unit amount to cents, rounding half away
// from zero. 10.015 becomes 1002 rather than truncating to 1001.
func ToMinorUnits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(cents int64) float64 {
	f, _ := decimal.New(cents, -2).Float64()
	return f
}

// MapIntentStatus translates a provider intent status into a local payment
// status and, for failures, the reason to record. known is false for
// statuses this service does not recognize; those map to pending.
func MapIntentStatus(status string) (mapped models.PaymentStatus, reason string, known bool) {
	switch {
	case status == "succeeded":
		return models.PaymentStatusSuccess, "", true
	case status == "processing", strings.HasPrefix(status, "requires_"):
		return models.PaymentStatusPending, "", true
	case status == "canceled":
		return models.PaymentStatusFailed, models.FailureCanceled, true
	case status == "payment_failed":
		return models.PaymentStatusFailed, models.FailureProviderFailed, true
	default:
		return models.PaymentStatusPending, "", false
	}
}
