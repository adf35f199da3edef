package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/provider"
	"github.com/example/storefront/pkg/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sources of a status change.
const (
	SourceWebhook   = "webhook"
	SourceReconcile = "reconcile"
	SourceExpiry    = "expiry"
)

var amountTolerance = decimal.New(1, -2)

type PaymentService struct {
	Deps
	provider       provider.Provider
	currency       string
	publishableKey string
	logger         *zap.Logger
}

type PaymentConfig struct {
	Currency       string
	PublishableKey string
}

func NewPaymentService(deps Deps, p provider.Provider, cfg PaymentConfig) *PaymentService {
	deps = deps.normalize()
	currency := strings.ToLower(cfg.Currency)
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		Deps:           deps,
		provider:       p,
		currency:       currency,
		publishableKey: cfg.PublishableKey,
		logger:         deps.Logger.Named("payment"),
	}
}

func (s *PaymentService) PublishableKey() string {
	return s.publishableKey
}

type PaymentIntentInput struct {
	OrderID     string
	Amount      float64
	Currency    string
	Description string
	Method      models.PaymentMethod
}

type PaymentIntentResult struct {
	PaymentID    string               `json:"paymentId"`
	OrderID      string               `json:"orderId"`
	Amount       float64              `json:"amount"`
	Currency     string               `json:"currency"`
	Status       models.PaymentStatus `json:"status"`
	ClientSecret string               `json:"clientSecret"`
	IntentID     string               `json:"paymentIntentId"`
	CustomerID   string               `json:"customerId"`
}

// CreatePaymentIntent validates the order and amount, opens a provider intent
// and records a pending payment for it. Provider failures are returned as
// they are, without retry.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, email string, in PaymentIntentInput) (*PaymentIntentResult, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	order, err := s.Store.GetUserOrder(ctx, user.ID, in.OrderID)
	if err != nil {
		return nil, err
	}

	if in.Amount <= 0 {
		return nil, apperr.ErrInvalidAmount
	}
	diff := decimal.NewFromFloat(in.Amount).Sub(decimal.NewFromFloat(order.TotalAmount)).Abs()
	if diff.GreaterThan(amountTolerance) {
		s.logger.Warn("Payment amount does not match order total",
			zap.String("order_id", order.ID),
			zap.Float64("amount", in.Amount),
			zap.Float64("total_amount", order.TotalAmount))
		return nil, apperr.ErrInvalidAmount
	}

	paid, err := s.Store.HasSuccessfulPayment(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, apperr.ErrAlreadyProcessed
	}

	method := in.Method
	if method == "" {
		method = models.PaymentMethodCreditCard
	}
	if !method.Valid() {
		return nil, apperr.New(apperr.KindInvalidInput, "unknown payment method")
	}
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.currency
	}

	customerID, err := s.provider.CreateOrRetrieveCustomer(ctx, user.Email, user.Name)
	if err != nil {
		return nil, err
	}
	intent, err := s.provider.CreatePaymentIntent(ctx, provider.IntentRequest{
		OrderID:     order.ID,
		Amount:      in.Amount,
		CustomerID:  customerID,
		Currency:    currency,
		Description: in.Description,
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:       order.ID,
		Amount:        in.Amount,
		Currency:      currency,
		Method:        method,
		Status:        models.PaymentStatusPending,
		TransactionID: intent.ID,
	}
	if err := s.Store.CreatePayment(ctx, payment); err != nil {
		// the intent exists at the provider but has no local row; it will
		// simply never be captured by reconciliation
		s.logger.Error("Failed to persist payment for created intent",
			zap.String("intent_id", intent.ID),
			zap.String("order_id", order.ID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", order.ID),
		zap.String("intent_id", intent.ID))
	s.record(ctx, audit.ActionPaymentIntentCreated, payment.ID, email, map[string]interface{}{
		"order_id":  order.ID,
		"intent_id": intent.ID,
		"amount":    in.Amount,
		"currency":  currency,
	})
	s.publish(ctx, events.Event{
		Type:     events.PaymentCreated,
		EntityID: payment.ID,
		Data:     map[string]interface{}{"order_id": order.ID, "amount": in.Amount, "currency": currency},
	})

	return &PaymentIntentResult{
		PaymentID:    payment.ID,
		OrderID:      order.ID,
		Amount:       in.Amount,
		Currency:     currency,
		Status:       payment.Status,
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		CustomerID:   customerID,
	}, nil
}

// CreatePayment starts a payment for the full order total.
func (s *PaymentService) CreatePayment(ctx context.Context, email, orderID string, method models.PaymentMethod) (*PaymentIntentResult, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	order, err := s.Store.GetUserOrder(ctx, user.ID, orderID)
	if err != nil {
		return nil, err
	}
	return s.CreatePaymentIntent(ctx, email, PaymentIntentInput{
		OrderID: order.ID,
		Amount:  order.TotalAmount,
		Method:  method,
	})
}

// GetPayment returns a payment whose order belongs to the user.
func (s *PaymentService) GetPayment(ctx context.Context, email, paymentID string) (*models.Payment, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return cache.Load(ctx, s.Cache, cache.PaymentKey(email, paymentID), func(ctx context.Context) (*models.Payment, error) {
		payment, err := s.Store.GetPayment(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if _, err := s.Store.GetUserOrder(ctx, user.ID, payment.OrderID); err != nil {
			if errors.Is(err, apperr.ErrOrderNotFound) {
				return nil, apperr.ErrPaymentNotFound
			}
			return nil, err
		}
		return payment, nil
	})
}

// Transition reports what ApplyProviderStatus did.
type Transition struct {
	PaymentID      string               `json:"payment_id"`
	OrderID        string               `json:"order_id"`
	From           models.PaymentStatus `json:"from"`
	To             models.PaymentStatus `json:"to"`
	Applied        bool                 `json:"applied"`
	OrderConfirmed bool                 `json:"order_confirmed"`
	// Skipped names the rule that prevented the change, if any.
	Skipped string `json:"skipped,omitempty"`
}

// Reasons a status change is not applied.
const (
	SkipUnchanged = "unchanged"
	SkipSucceeded = "already_succeeded"
	SkipExpired   = "expired"
	SkipRegress   = "terminal"
	SkipStale     = "stale"
)

// checkTransition decides whether a payment may move from its current state
// to the target status.
func checkTransition(p *models.Payment, to models.PaymentStatus) string {
	switch {
	case p.Status == to:
		return SkipUnchanged
	case p.Status == models.PaymentStatusSuccess:
		return SkipSucceeded
	case p.Status == models.PaymentStatusFailed && p.FailureReason == models.FailureExpired:
		return SkipExpired
	case p.Status.Terminal() && to == models.PaymentStatusPending:
		return SkipRegress
	}
	return ""
}

// ApplyProviderStatus moves the payment identified by the provider intent id
// to status. A payment that becomes successful confirms its pending order in
// the same transaction. Updates are serialized in-process and guarded in the
// database against concurrent writers.
func (s *PaymentService) ApplyProviderStatus(ctx context.Context, intentID string, status models.PaymentStatus, reason, source string) (*Transition, error) {
	var result *Transition
	err := s.Executor.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.applyProviderStatus(ctx, intentID, status, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !result.Applied {
		s.logger.Info("Payment status not changed",
			zap.String("payment_id", result.PaymentID),
			zap.String("current", string(result.From)),
			zap.String("reported", string(status)),
			zap.String("rule", result.Skipped),
			zap.String("source", source))
		return result, nil
	}

	s.afterTransition(ctx, result, source)
	return result, nil
}

func (s *PaymentService) applyProviderStatus(ctx context.Context, intentID string, to models.PaymentStatus, reason string) (*Transition, error) {
	if to != models.PaymentStatusFailed {
		reason = ""
	} else if reason == "" {
		reason = models.FailureProviderFailed
	}

	var result *Transition
	err := s.Store.WithTx(ctx, func(tx *repository.Store) error {
		payment, err := tx.GetPaymentByTransactionID(ctx, intentID)
		if err != nil {
			return err
		}
		result = &Transition{PaymentID: payment.ID, OrderID: payment.OrderID, From: payment.Status, To: to}

		if skip := checkTransition(payment, to); skip != "" {
			result.Skipped = skip
			return nil
		}

		t := repository.PaymentTransition{From: payment.Status, To: to, FailureReason: reason}
		if to == models.PaymentStatusSuccess {
			paidAt := s.now()
			t.PaymentDate = &paidAt
		}
		changed, err := tx.TransitionPaymentStatus(ctx, payment.ID, t)
		if err != nil {
			return err
		}
		if !changed {
			// another process moved it first
			current, err := tx.GetPayment(ctx, payment.ID)
			if err != nil {
				return err
			}
			result.From = current.Status
			result.Skipped = SkipStale
			return nil
		}
		result.Applied = true

		if to == models.PaymentStatusSuccess {
			confirmed, err := tx.TransitionOrderStatus(ctx, payment.OrderID, models.OrderStatusPending, models.OrderStatusConfirmed)
			if err != nil {
				return err
			}
			result.OrderConfirmed = confirmed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// afterTransition runs once the status change has committed.
func (s *PaymentService) afterTransition(ctx context.Context, t *Transition, source string) {
	s.evictPaymentViews(ctx, t.PaymentID, t.OrderID)
	s.Metrics.PaymentTransitions.WithLabelValues(string(t.From), string(t.To), source).Inc()

	s.logger.Info("Payment status updated",
		zap.String("payment_id", t.PaymentID),
		zap.String("order_id", t.OrderID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("source", source),
		zap.Bool("order_confirmed", t.OrderConfirmed))

	s.record(ctx, audit.ActionPaymentStatusChanged, t.PaymentID, source, map[string]interface{}{
		"order_id": t.OrderID,
		"from":     string(t.From),
		"to":       string(t.To),
	})
	s.publish(ctx, events.Event{
		Type:     events.PaymentStatusChanged,
		EntityID: t.PaymentID,
		Data:     map[string]interface{}{"order_id": t.OrderID, "from": string(t.From), "to": string(t.To)},
	})
	if t.OrderConfirmed {
		s.publish(ctx, events.Event{
			Type:     events.OrderConfirmed,
			EntityID: t.OrderID,
			Data:     map[string]interface{}{"payment_id": t.PaymentID},
		})
	}
}

func (s *PaymentService) evictPaymentViews(ctx context.Context, paymentID, orderID string) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("Cannot resolve order owner, dropping all payment and order views",
			zap.String("order_id", orderID), zap.Error(err))
		s.Cache.EvictPrefix(ctx, cache.AllPaymentsPrefix)
		s.Cache.EvictPrefix(ctx, cache.AllOrdersPrefix)
		return
	}
	user, err := s.Store.GetUser(ctx, order.UserID)
	if err != nil {
		s.logger.Warn("Cannot resolve order owner, dropping all payment and order views",
			zap.String("order_id", orderID), zap.Error(err))
		s.Cache.EvictPrefix(ctx, cache.AllPaymentsPrefix)
		s.Cache.EvictPrefix(ctx, cache.AllOrdersPrefix)
		return
	}
	s.Cache.Evict(ctx, cache.PaymentKey(user.Email, paymentID), cache.OrderKey(user.Email, orderID))
	s.Cache.EvictPrefix(ctx, cache.OrdersKey(user.Email))
}

// SyncPaymentStatus asks the provider for the intent's current status and
// applies it when it differs from the stored one.
func (s *PaymentService) SyncPaymentStatus(ctx context.Context, intentID string) (*Transition, error) {
	payment, err := s.Store.GetPaymentByTransactionID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	intent, err := s.provider.RetrievePaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	status, reason, known := provider.MapIntentStatus(intent.Status)
	if !known {
		s.logger.Warn("Unknown payment intent status, treating as pending",
			zap.String("intent_id", intentID),
			zap.String("status", intent.Status))
	}
	if status == payment.Status {
		return &Transition{
			PaymentID: payment.ID,
			OrderID:   payment.OrderID,
			From:      payment.Status,
			To:        status,
			Skipped:   SkipUnchanged,
		}, nil
	}
	return s.ApplyProviderStatus(ctx, intentID, status, reason, SourceReconcile)
}

// ExpireStalePendingPayments fails every pending payment created strictly
// before cutoff in one write and returns how many rows changed.
func (s *PaymentService) ExpireStalePendingPayments(ctx context.Context, cutoff time.Time) (int64, error) {
	var expired int64
	err := s.Executor.Do(ctx, func(ctx context.Context) error {
		return s.Store.WithTx(ctx, func(tx *repository.Store) error {
			stale, err := tx.FindPendingCreatedBefore(ctx, cutoff)
			if err != nil {
				return err
			}
			if len(stale) == 0 {
				return nil
			}
			ids := make([]string, len(stale))
			for i, p := range stale {
				ids[i] = p.ID
			}
			expired, err = tx.ExpirePayments(ctx, ids)
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	if expired == 0 {
		return 0, nil
	}

	s.Cache.EvictPrefix(ctx, cache.AllPaymentsPrefix)
	s.Metrics.PaymentTransitions.WithLabelValues(string(models.PaymentStatusPending), string(models.PaymentStatusFailed), SourceExpiry).Add(float64(expired))
	s.logger.Info("Expired stale pending payments", zap.Int64("count", expired), zap.Time("cutoff", cutoff))
	s.record(ctx, audit.ActionPaymentsExpired, "", SourceExpiry, map[string]interface{}{
		"count":  expired,
		"cutoff": cutoff.UTC(),
	})
	return expired, nil
}

// FindPendingForSync lists pending payments untouched since cutoff, oldest
// first.
func (s *PaymentService) FindPendingForSync(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	return s.Store.FindPendingNotUpdatedSince(ctx, cutoff, limit)
}
