package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/actor"
	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/cache"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/logger"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/provider"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/service"
	"go.uber.org/zap"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *repository.Store
	cache   cache.Cache
	audit   audit.Recorder
	events  events.Publisher
	metrics *metrics.Metrics
	serial  *actor.Serializer

	stripe   *provider.StripeProvider
	payments *service.PaymentService

	closers []func() error
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}

// newApp connects to the database and every optional backend that is
// configured. Missing optional backends fall back to in-process versions.
func newApp() (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, metrics: metrics.New()}

	db, err := repository.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.store = repository.NewStore(db)
	a.onClose(func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if cfg.Redis.Enabled {
		rc := cache.NewRedisCache(&cfg.Redis)
		a.cache = rc
		a.onClose(rc.Close)
	} else {
		a.cache = cache.NewMemoryCache()
		log.Info("Redis disabled, using in-process cache")
	}

	a.audit = audit.NopRecorder{}
	if cfg.MongoDB.URI != "" {
		rec, err := audit.NewMongoRecorder(&cfg.MongoDB, cfg.Server.Name, log)
		if err != nil {
			log.Warn("Failed to connect to MongoDB, continuing without audit log", zap.Error(err))
		} else {
			a.audit = rec
			a.onClose(func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return rec.Close(ctx)
			})
		}
	}

	a.events = events.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		pub, err := events.Dial(&cfg.RabbitMQ, log)
		if err != nil {
			log.Warn("Failed to connect to RabbitMQ, continuing without events", zap.Error(err))
		} else {
			a.events = pub
			a.onClose(pub.Close)
		}
	}

	a.serial, err = actor.NewSerializer("payment-status", actor.DefaultTimeout, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(a.serial.Stop)

	if cfg.Stripe.SecretKey == "" {
		log.Warn("Stripe secret key is not configured, payment calls will fail")
	}
	a.stripe = provider.NewStripeProvider(&cfg.Stripe, a.metrics, log)
	a.payments = service.NewPaymentService(a.deps(), a.stripe, service.PaymentConfig{
		Currency:       cfg.Stripe.Currency,
		PublishableKey: cfg.Stripe.PublishableKey,
	})
	return a, nil
}

func (a *app) deps() service.Deps {
	return service.Deps{
		Store:    a.store,
		Cache:    cache.NewLoader(a.cache, a.cfg.Cache.TTL, a.logger),
		Audit:    a.audit,
		Events:   a.events,
		Metrics:  a.metrics,
		Executor: a.serial,
		Logger:   a.logger,
	}
}

func (a *app) tokens() (*auth.TokenManager, error) {
	if a.cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret must be set")
	}
	return auth.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL), nil
}

// checks are the dependency probes shared by /health and the gRPC health
// service.
func (a *app) checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"database": a.store.Ping,
		"cache":    a.cache.Ping,
	}
	if rec, ok := a.audit.(*audit.MongoRecorder); ok {
		checks["audit"] = rec.Ping
	}
	return checks
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
