package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/provider"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/repository/repotest"
	"go.uber.org/zap"
)

const validSignature = "t=1,v1=valid"

type fakeProvider struct {
	mu            sync.Mutex
	customers     map[string]string
	intents       map[string]provider.Intent
	createErr     error
	retrieveErr   error
	customerCalls int
	webhookSecret string
	seq           int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customers:     map[string]string{},
		intents:       map[string]provider.Intent{},
		webhookSecret: "whsec_test",
	}
}

func (f *fakeProvider) CreateOrRetrieveCustomer(_ context.Context, email, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls++
	if id, ok := f.customers[email]; ok {
		return id, nil
	}
	f.seq++
	id := fmt.Sprintf("cus_%d", f.seq)
	f.customers[email] = id
	return id, nil
}

func (f *fakeProvider) CreatePaymentIntent(_ context.Context, req provider.IntentRequest) (provider.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return provider.Intent{}, apperr.Wrap(apperr.KindProviderFailure, f.createErr, "failed to create payment intent")
	}
	f.seq++
	intent := provider.Intent{
		ID:           fmt.Sprintf("pi_%d", f.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", f.seq),
		Status:       "requires_payment_method",
		Amount:       provider.ToMinorUnits(req.Amount),
		Currency:     req.Currency,
		CustomerID:   req.CustomerID,
		OrderID:      req.OrderID,
	}
	f.intents[intent.ID] = intent
	return intent, nil
}

func (f *fakeProvider) RetrievePaymentIntent(_ context.Context, id string) (provider.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.retrieveErr != nil {
		return provider.Intent{}, apperr.Wrap(apperr.KindProviderFailure, f.retrieveErr, "failed to retrieve payment intent")
	}
	intent, ok := f.intents[id]
	if !ok {
		return provider.Intent{}, apperr.New(apperr.KindProviderFailure, "no such payment intent")
	}
	return intent, nil
}

func (f *fakeProvider) setIntentStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	intent := f.intents[id]
	intent.ID = id
	intent.Status = status
	f.intents[id] = intent
}

func (f *fakeProvider) WebhookConfigured() bool {
	return f.webhookSecret != ""
}

type fakeEnvelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
}

// ConstructEvent accepts only validSignature and decodes a fakeEnvelope.
func (f *fakeProvider) ConstructEvent(payload []byte, sigHeader string) (provider.Event, error) {
	if sigHeader != validSignature {
		return provider.Event{}, fmt.Errorf("%w: bad signature", apperr.ErrInvalidSignature)
	}
	var env fakeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return provider.Event{}, err
	}
	ev := provider.Event{ID: env.ID, Type: env.Type}
	if env.IntentID != "" {
		ev.Intent = &provider.Intent{ID: env.IntentID}
	}
	return ev, nil
}

func webhookPayload(eventID, eventType, intentID string) []byte {
	b, _ := json.Marshal(fakeEnvelope{ID: eventID, Type: eventType, IntentID: intentID})
	return b
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) History(context.Context, string, int64) ([]*audit.Entry, error) {
	return nil, nil
}

type harness struct {
	store    *repository.Store
	cache    *cache.MemoryCache
	provider *fakeProvider
	events   *recordingPublisher
	audit    *recordingAudit
	metrics  *metrics.Metrics
	now      time.Time

	orders   *OrderService
	payments *PaymentService
	webhooks *WebhookService
	carts    *CartService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    repotest.NewStore(t),
		cache:    cache.NewMemoryCache(),
		provider: newFakeProvider(),
		events:   &recordingPublisher{},
		audit:    &recordingAudit{},
		metrics:  metrics.New(),
		now:      time.Now().UTC(),
	}
	deps := Deps{
		Store:   h.store,
		Cache:   cache.NewLoader(h.cache, time.Minute, zap.NewNop()),
		Audit:   h.audit,
		Events:  h.events,
		Metrics: h.metrics,
		Logger:  zap.NewNop(),
		Now:     func() time.Time { return h.now },
	}
	h.orders = NewOrderService(deps)
	h.payments = NewPaymentService(deps, h.provider, PaymentConfig{Currency: "usd", PublishableKey: "pk_test"})
	h.webhooks = NewWebhookService(h.payments, h.provider)
	h.carts = NewCartService(deps)
	return h
}
