// Package service holds the storefront workflows: checkout, payment
// initiation, provider status application and the supporting catalog, cart
// and account operations.
package service

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/actor"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

const serviceName = "storefront"

// Deps are the collaborators shared by the services. Zero-valued optional
// fields are replaced with no-op implementations by normalize.
type Deps struct {
	Store    *repository.Store
	Cache    *cache.Loader
	Audit    audit.Recorder
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Executor actor.Executor
	Logger   *zap.Logger
	Now      func() time.Time
}

func (d Deps) normalize() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Cache == nil {
		d.Cache = cache.NewLoader(cache.NewMemoryCache(), 10*time.Minute, d.Logger)
	}
	if d.Audit == nil {
		d.Audit = audit.NopRecorder{}
	}
	if d.Events == nil {
		d.Events = events.NopPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Executor == nil {
		d.Executor = actor.Inline{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) now() time.Time {
	return d.Now().UTC()
}

// publish sends an event; failures are logged only.
func (d Deps) publish(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.now()
	}
	if err := d.Events.Publish(ctx, event); err != nil {
		d.Logger.Warn("Failed to publish event",
			zap.String("type", event.Type),
			zap.String("entity_id", event.EntityID),
			zap.Error(err))
	}
}

func (d Deps) record(ctx context.Context, action, entityID, by string, data map[string]interface{}) {
	d.Audit.Record(ctx, audit.Entry{
		Service:  serviceName,
		Action:   action,
		EntityID: entityID,
		Actor:    by,
		Data:     data,
	})
}
