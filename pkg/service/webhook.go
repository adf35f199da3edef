package service

import (
	"context"
	"errors"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/provider"
	"go.uber.org/zap"
)

// Webhook outcomes.
const (
	OutcomeApplied        = "applied"
	OutcomeUnchanged      = "unchanged"
	OutcomeIgnored        = "ignored"
	OutcomeUnknownPayment = "unknown_payment"
	OutcomeRejected       = "rejected"
)

type WebhookResult struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
}

type WebhookService struct {
	payments *PaymentService
	provider provider.Provider
	logger   *zap.Logger
}

func NewWebhookService(payments *PaymentService, p provider.Provider) *WebhookService {
	return &WebhookService{
		payments: payments,
		provider: p,
		logger:   payments.Logger.Named("webhook"),
	}
}

var eventStatus = map[string]struct {
	status models.PaymentStatus
	reason string
}{
	provider.EventIntentSucceeded: {models.PaymentStatusSuccess, ""},
	provider.EventIntentFailed:    {models.PaymentStatusFailed, models.FailureProviderFailed},
	provider.EventIntentCanceled:  {models.PaymentStatusFailed, models.FailureCanceled},
}

// HandleWebhook verifies and applies a provider event. Unknown event types
// and events for payments this service never stored are acknowledged
// without error so the provider stops redelivering them.
func (w *WebhookService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (*WebhookResult, error) {
	if !w.provider.WebhookConfigured() {
		w.logger.Error("Webhook received but no webhook secret is configured")
		return nil, apperr.ErrWebhookNotConfigured
	}

	event, err := w.provider.ConstructEvent(payload, sigHeader)
	if err != nil {
		w.logger.Warn("Rejected webhook", zap.Error(err))
		w.observe("unknown", OutcomeRejected)
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, Type: event.Type}
	mapping, ok := eventStatus[event.Type]
	if !ok || event.Intent == nil {
		w.logger.Info("Ignoring webhook event", zap.String("event_id", event.ID), zap.String("type", event.Type))
		result.Outcome = OutcomeIgnored
		w.observe(event.Type, result.Outcome)
		return result, nil
	}

	t, err := w.payments.ApplyProviderStatus(ctx, event.Intent.ID, mapping.status, mapping.reason, SourceWebhook)
	switch {
	case errors.Is(err, apperr.ErrPaymentNotFound):
		w.logger.Warn("No payment for webhook intent",
			zap.String("event_id", event.ID),
			zap.String("intent_id", event.Intent.ID))
		result.Outcome = OutcomeUnknownPayment
	case err != nil:
		w.logger.Error("Failed to apply webhook event",
			zap.String("event_id", event.ID),
			zap.String("intent_id", event.Intent.ID),
			zap.Error(err))
		w.observe(event.Type, "error")
		return nil, err
	case t.Applied:
		result.Outcome = OutcomeApplied
	default:
		result.Outcome = OutcomeUnchanged
	}

	w.observe(event.Type, result.Outcome)
	return result, nil
}

func (w *WebhookService) observe(eventType, outcome string) {
	w.payments.Metrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
