package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CacheRepo определяет интерфейс для кеширования собранных мешей.
// Поддерживает двухуровневую архитектуру: Hot Cache (память/Redis) + Cold Storage (BadgerDB).
//
// Использование:
//
//	cache := NewMemoryCache(1024)
//	data, err := cache.Get(ctx, "key")
//	err = cache.Set(ctx, "key", data, 30*time.Second)
type CacheRepo interface {
	// Get получает значение по ключу из кеша.
	// Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с указанным TTL.
	// TTL = 0 означает отсутствие истечения.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ из кеша.
	Delete(ctx context.Context, key string) error

	// Exists проверяет существование ключа в кеше.
	Exists(ctx context.Context, key string) (bool, error)

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// ColdStorage определяет интерфейс для постоянного хранения данных.
// Используется как fallback когда данные отсутствуют в Hot Cache.
type ColdStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Close() error
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	TotalKeys int64 `json:"total_keys"`

	LastUpdate time.Time `json:"last_update"`
}

// Ошибки кеша
var (
	ErrCacheMiss  = errors.New("cache miss")
	ErrInvalidKey = errors.New("invalid key")
	ErrClosed     = errors.New("cache closed")
)

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// MeshKey ключ меша: режим мешера, координаты чанка и отпечаток вокселей.
// Изменение вокселей меняет отпечаток, поэтому устаревшие меши не находятся.
func MeshKey(mode string, x, y, z int, fingerprint uint64) string {
	return fmt.Sprintf("mesh:%s:%d:%d:%d:%016x", mode, x, y, z, fingerprint)
}
