package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

type StripeProvider struct {
	api           *client.API
	currency      string
	webhookSecret string
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

type StripeOption func(*stripeOptions)

type stripeOptions struct {
	baseURL string
}

// WithBaseURL points the API client at another endpoint, e.g. stripe-mock.
func WithBaseURL(url string) StripeOption {
	return func(o *stripeOptions) { o.baseURL = url }
}

func NewStripeProvider(cfg *config.StripeConfig, m *metrics.Metrics, logger *zap.Logger, opts ...StripeOption) *StripeProvider {
	var o stripeOptions
	for _, opt := range opts {
		opt(&o)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backendConfig := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if o.baseURL != "" {
		backendConfig.URL = stripe.String(o.baseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}

	return &StripeProvider{
		api:           api,
		currency:      currency,
		webhookSecret: cfg.WebhookSecret,
		metrics:       m,
		logger:        logger.Named("stripe"),
	}
}

func (s *StripeProvider) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ProviderCalls.WithLabelValues(op, metrics.Outcome(err)).Inc()
	}
}

func providerError(err error, msg string) error {
	return apperr.Wrap(apperr.KindProviderFailure, err, msg)
}

// CreateOrRetrieveCustomer reuses the first customer with this email, or
// creates one.
func (s *StripeProvider) CreateOrRetrieveCustomer(ctx context.Context, email, name string) (id string, err error) {
	defer func() { s.observe("customer", err) }()

	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := s.api.Customers.List(listParams)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", providerError(err, "failed to look up customer")
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	customer, err := s.api.Customers.New(params)
	if err != nil {
		return "", providerError(err, "failed to create customer")
	}
	s.logger.Info("Created customer", zap.String("customer_id", customer.ID))
	return customer.ID, nil
}

func (s *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (intent Intent, err error) {
	defer func() { s.observe("create_intent", err) }()

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.currency
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Payment for order #%s", req.OrderID)
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount)),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	params.Context = ctx
	params.AddMetadata("orderId", req.OrderID)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, providerError(err, "failed to create payment intent")
	}
	s.logger.Info("Created payment intent",
		zap.String("intent_id", pi.ID),
		zap.String("order_id", req.OrderID),
		zap.Int64("amount", pi.Amount))
	return toIntent(pi), nil
}

func (s *StripeProvider) RetrievePaymentIntent(ctx context.Context, id string) (intent Intent, err error) {
	defer func() { s.observe("retrieve_intent", err) }()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return Intent{}, providerError(err, "failed to retrieve payment intent")
	}
	return toIntent(pi), nil
}

func (s *StripeProvider) WebhookConfigured() bool {
	return s.webhookSecret != ""
}

func (s *StripeProvider) ConstructEvent(payload []byte, sigHeader string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, apperr.ErrWebhookNotConfigured
	}
	return constructEvent(payload, sigHeader, s.webhookSecret)
}

func constructEvent(payload []byte, sigHeader, secret string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", apperr.ErrInvalidSignature, err)
	}

	event := Event{ID: ev.ID, Type: string(ev.Type)}
	if strings.HasPrefix(event.Type, "payment_intent.") && ev.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, apperr.Wrap(apperr.KindInvalidInput, err, "malformed payment intent payload")
		}
		intent := toIntent(&pi)
		event.Intent = &intent
	}
	return event, nil
}

func toIntent(pi *stripe.PaymentIntent) Intent {
	intent := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		OrderID:      pi.Metadata["orderId"],
	}
	if pi.Customer != nil {
		intent.CustomerID = pi.Customer.ID
	}
	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent
}
