package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type entry struct {
	ID string `json:"id"`
}

func TestRedisCache_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db)
	ctx := context.Background()

	mock.ExpectGet("product:1").SetVal(`{"id":"1"}`)
	mock.ExpectGet("product:2").RedisNil()
	mock.ExpectGet("product:3").SetErr(errors.New("connection refused"))

	var got entry
	ok, err := c.Get(ctx, "product:1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", got.ID)

	ok, err = c.Get(ctx, "product:2", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Get(ctx, "product:3", &got)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_DeletePrefix(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db)

	mock.ExpectScan(0, "order:a@example.com:*", scanBatch).SetVal([]string{"order:a@example.com:1"}, 7)
	mock.ExpectDel("order:a@example.com:1").SetVal(1)
	mock.ExpectScan(7, "order:a@example.com:*", scanBatch).SetVal([]string{}, 0)

	require.NoError(t, c.DeletePrefix(context.Background(), OrderPrefix("a@example.com")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db)

	mock.ExpectDel("cart:a@example.com", "orders:a@example.com").SetVal(2)
	require.NoError(t, c.Delete(context.Background(), CartKey("a@example.com"), OrdersKey("a@example.com")))
	require.NoError(t, c.Delete(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "order:a:1", entry{ID: "1"}, time.Minute))
	require.NoError(t, c.Set(ctx, "order:a:2", entry{ID: "2"}, 0))
	require.NoError(t, c.Set(ctx, "orders:a", []entry{{ID: "1"}}, 0))

	var got entry
	ok, err := c.Get(ctx, "order:a:1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", got.ID)

	now = now.Add(time.Minute)
	ok, _ = c.Get(ctx, "order:a:1", &got)
	assert.False(t, ok, "entry should expire at its ttl")

	require.NoError(t, c.DeletePrefix(ctx, OrderPrefix("a")))
	ok, _ = c.Get(ctx, "order:a:2", &got)
	assert.False(t, ok)

	var list []entry
	ok, _ = c.Get(ctx, "orders:a", &list)
	assert.True(t, ok, "list view is outside the single-order prefix")
}

func TestMemoryCache_ExpiredReadKeepsConcurrentSet(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "product:1", entry{ID: "stale"}, time.Second))

	now = now.Add(time.Minute)
	refreshed := false
	c.now = func() time.Time {
		// another writer stores a fresh value between the expiry check
		// and the delete
		if !refreshed {
			refreshed = true
			require.NoError(t, c.Set(ctx, "product:1", entry{ID: "fresh"}, time.Hour))
		}
		return now
	}

	var got entry
	ok, err := c.Get(ctx, "product:1", &got)
	require.NoError(t, err)
	require.True(t, refreshed)
	assert.True(t, ok)
	assert.Equal(t, "fresh", got.ID)

	got = entry{}
	ok, _ = c.Get(ctx, "product:1", &got)
	assert.True(t, ok)
	assert.Equal(t, "fresh", got.ID)
}

type brokenCache struct{ *MemoryCache }

func (brokenCache) Get(context.Context, string, interface{}) (bool, error) {
	return false, errors.New("down")
}

func (brokenCache) Set(context.Context, string, interface{}, time.Duration) error {
	return errors.New("down")
}

func TestLoad_CollapsesConcurrentMisses(t *testing.T) {
	l := NewLoader(NewMemoryCache(), time.Minute, zap.NewNop())
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (entry, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return entry{ID: "42"}, nil
	}

	var wg sync.WaitGroup
	results := make([]entry, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Load(ctx, l, "product:42", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	for _, r := range results {
		assert.Equal(t, "42", r.ID)
	}

	// served from cache now
	v, err := Load(ctx, l, "product:42", func(context.Context) (entry, error) {
		return entry{}, errors.New("should not be called")
	})
	require.NoError(t, err)
	assert.Equal(t, "42", v.ID)
}

func TestLoad_CacheFailureFallsThrough(t *testing.T) {
	l := NewLoader(brokenCache{MemoryCache: NewMemoryCache()}, time.Minute, zap.NewNop())

	v, err := Load(context.Background(), l, "cart:a", func(context.Context) (entry, error) {
		return entry{ID: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v.ID)

	_, err = Load(context.Background(), l, "cart:b", func(context.Context) (entry, error) {
		return entry{}, errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
}
