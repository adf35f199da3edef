package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Loader implements cache-aside reads. Cache failures are logged and the
// value is fetched from the source instead.
type Loader struct {
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

func NewLoader(c Cache, ttl time.Duration, logger *zap.Logger) *Loader {
	return &Loader{cache: c, ttl: ttl, logger: logger.Named("cache")}
}

func (l *Loader) Cache() Cache {
	return l.cache
}

// Evict deletes keys, logging instead of failing.
func (l *Loader) Evict(ctx context.Context, keys ...string) {
	if err := l.cache.Delete(ctx, keys...); err != nil {
		l.logger.Warn("Cache evict failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// EvictPrefix deletes every key under prefix, logging instead of failing.
func (l *Loader) EvictPrefix(ctx context.Context, prefix string) {
	if err := l.cache.DeletePrefix(ctx, prefix); err != nil {
		l.logger.Warn("Cache evict failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

// Load returns the cached value for key, or calls fetch and caches its
// result. Concurrent misses for the same key share one fetch.
func Load[T any](ctx context.Context, l *Loader, key string, fetch func(context.Context) (T, error)) (T, error) {
	var cached T
	ok, err := l.cache.Get(ctx, key, &cached)
	if err != nil {
		l.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		fresh, err := fetch(ctx)
		if err != nil {
			return fresh, err
		}
		if err := l.cache.Set(ctx, key, fresh, l.ttl); err != nil {
			l.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		}
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
