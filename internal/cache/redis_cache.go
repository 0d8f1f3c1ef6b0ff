package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxelgen/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisOptions параметры подключения к Redis.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	MaxTTL      time.Duration
	PromoteTTL  time.Duration // TTL для значений, поднятых из Cold Storage
}

func (o *RedisOptions) withDefaults() {
	if o.PoolSize == 0 {
		o.PoolSize = 10
	}
	if o.DialTimeout == 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.MaxTTL == 0 {
		o.MaxTTL = time.Hour
	}
	if o.PromoteTTL == 0 {
		o.PromoteTTL = 5 * time.Minute
	}
}

// RedisCache общий кеш мешей для нескольких процессов.
// При промахе читает из Cold Storage (Read-Through) и поднимает значение в Redis.
// Set пишет и в Redis, и в Cold Storage синхронно.
type RedisCache struct {
	client      *redis.Client
	opts        RedisOptions
	coldStorage ColdStorage

	requests int64
	hits     int64
	misses   int64

	latencyMu  sync.Mutex
	latencySum time.Duration
	latencyN   int64
	latencyMax time.Duration
}

// NewRedisCache подключается к Redis и проверяет соединение.
//
// Параметры:
//
//	opts - адрес и настройки пула
//	coldStorage - опциональное постоянное хранилище (может быть nil)
func NewRedisCache(opts RedisOptions, coldStorage ColdStorage) (*RedisCache, error) {
	opts.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("Redis mesh cache initialized: %s (cold storage: %v)", opts.Addr, coldStorage != nil)
	return &RedisCache{client: rdb, opts: opts, coldStorage: coldStorage}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.requests, 1)

	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		atomic.AddInt64(&r.hits, 1)
		return val, nil
	}
	if !errors.Is(err, redis.Nil) {
		atomic.AddInt64(&r.misses, 1)
		logging.Error("Redis Get error for key %s: %v", key, err)
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	if r.coldStorage != nil {
		val, err := r.coldStorage.Load(ctx, key)
		if err == nil {
			atomic.AddInt64(&r.hits, 1)
			if err := r.client.Set(ctx, key, val, r.opts.PromoteTTL).Err(); err != nil {
				logging.Warn("Redis promote failed for key %s: %v", key, err)
			}
			return val, nil
		}
		if !IsCacheMiss(err) {
			logging.Debug("Cold storage load failed for key %s: %v", key, err)
		}
	}

	atomic.AddInt64(&r.misses, 1)
	return nil, ErrCacheMiss
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	defer r.recordLatency(start)

	if ttl > r.opts.MaxTTL {
		ttl = r.opts.MaxTTL
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logging.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}

	if r.coldStorage != nil {
		if err := r.coldStorage.Store(ctx, key, value); err != nil {
			return fmt.Errorf("cold storage store: %w", err)
		}
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer r.recordLatency(start)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		logging.Error("Redis Delete error for key %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer r.recordLatency(start)

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return count > 0, nil
}

// Close закрывает соединение с Redis. Cold Storage закрывает его владелец.
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}
	logging.Info("Redis mesh cache closed")
	return nil
}

func (r *RedisCache) GetMetrics() *CacheMetrics {
	m := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&r.requests),
		CacheHits:     atomic.LoadInt64(&r.hits),
		CacheMisses:   atomic.LoadInt64(&r.misses),
		LastUpdate:    time.Now(),
	}
	if total := m.CacheHits + m.CacheMisses; total > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(total)
	}

	r.latencyMu.Lock()
	if r.latencyN > 0 {
		m.AvgLatencyMs = float64(r.latencySum) / float64(r.latencyN) / 1e6
	}
	m.MaxLatencyMs = float64(r.latencyMax) / 1e6
	r.latencyMu.Unlock()

	if n, err := r.client.DBSize(context.Background()).Result(); err == nil {
		m.TotalKeys = n
	}
	return m
}

func (r *RedisCache) recordLatency(start time.Time) {
	d := time.Since(start)
	r.latencyMu.Lock()
	r.latencySum += d
	r.latencyN++
	if d > r.latencyMax {
		r.latencyMax = d
	}
	r.latencyMu.Unlock()
}
