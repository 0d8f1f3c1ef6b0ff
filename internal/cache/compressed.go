package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

// CompressedCache сжимает значения zstd перед записью во внутренний кеш.
// Меши из повторяющихся граней сжимаются в несколько раз.
type CompressedCache struct {
	inner CacheRepo
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewCompressedCache оборачивает inner. Close закрывает и inner.
func NewCompressedCache(inner CacheRepo) (*CompressedCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &CompressedCache{inner: inner, enc: enc, dec: dec}, nil
}

func (c *CompressedCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	out, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode %s: %w", key, err)
	}
	return out, nil
}

func (c *CompressedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, key, c.enc.EncodeAll(value, nil), ttl)
}

func (c *CompressedCache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, key)
}

func (c *CompressedCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.inner.Exists(ctx, key)
}

func (c *CompressedCache) Close() error {
	c.dec.Close()
	encErr := c.enc.Close()
	if err := c.inner.Close(); err != nil {
		return err
	}
	return encErr
}

func (c *CompressedCache) GetMetrics() *CacheMetrics {
	return c.inner.GetMetrics()
}
