package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryCache in-process кеш поверх ristretto. Стоимость элемента: его размер в байтах.
type MemoryCache struct {
	store  *ristretto.Cache
	closed atomic.Bool

	requests int64
	hits     int64
	misses   int64
}

// DefaultMemoryBytes размер кеша по умолчанию
const DefaultMemoryBytes = 64 << 20

// NewMemoryCache создаёт кеш на maxBytes байт (<= 0: DefaultMemoryBytes)
func NewMemoryCache(maxBytes int64) (*MemoryCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMemoryBytes
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{store: store}, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	atomic.AddInt64(&c.requests, 1)

	if v, ok := c.store.Get(key); ok {
		atomic.AddInt64(&c.hits, 1)
		src := v.([]byte)
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	}

	atomic.AddInt64(&c.misses, 1)
	return nil, ErrCacheMiss
}

// Set сохраняет копию значения. Запись применяется синхронно (Wait),
// чтобы следующий Get её видел.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if c.closed.Load() {
		return ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	cost := int64(len(stored))
	if cost == 0 {
		cost = 1
	}
	if ttl < 0 {
		ttl = 0
	}
	c.store.SetWithTTL(key, stored, cost, ttl)
	c.store.Wait()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.store.Del(key)
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	_, ok := c.store.Get(key)
	return ok, nil
}

func (c *MemoryCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.store.Close()
	}
	return nil
}

func (c *MemoryCache) GetMetrics() *CacheMetrics {
	m := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&c.requests),
		CacheHits:     atomic.LoadInt64(&c.hits),
		CacheMisses:   atomic.LoadInt64(&c.misses),
		LastUpdate:    time.Now(),
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(m.TotalRequests)
	}
	if !c.closed.Load() && c.store.Metrics != nil {
		m.TotalKeys = int64(c.store.Metrics.KeysAdded() - c.store.Metrics.KeysEvicted())
	}
	return m
}
