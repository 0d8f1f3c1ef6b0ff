package storage

import (
	"context"
	"fmt"

	"github.com/annel0/voxelgen/internal/cache"
	"github.com/annel0/voxelgen/internal/config"
)

// OpenDeltaRepo создаёт хранилище правок по конфигурации.
// Для backend "none" возвращает nil без ошибки: правки не сохраняются.
func OpenDeltaRepo(ctx context.Context, cfg config.DeltaConfig) (DeltaRepo, error) {
	var (
		repo DeltaRepo
		err  error
	)
	switch cfg.Backend {
	case "", config.DeltasNone:
		return nil, nil
	case config.DeltasMemory:
		return NewMemoryDeltaRepo(), nil
	case config.DeltasBadger:
		repo, err = NewBadgerStore(cfg.Path)
	case config.DeltasRedis:
		repo, err = NewRedisDeltaRepo(ctx, cfg.DSN, "")
	case config.DeltasMySQL:
		repo, err = NewMariaDeltaRepo(cfg.DSN)
	case config.DeltasMongo:
		repo, err = NewMongoDeltaRepo(MongoConfig{URI: cfg.DSN, Database: cfg.Database})
	default:
		return nil, fmt.Errorf("неизвестный backend правок %q", cfg.Backend)
	}
	// конструкторы возвращают типизированный nil, который нельзя отдавать как интерфейс
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// OpenMeshCache создаёт кеш мешей по конфигурации. Для backend "none" возвращает nil.
// Для redis с заданным path BadgerDB подключается как cold storage.
func OpenMeshCache(cfg config.CacheConfig) (cache.CacheRepo, error) {
	var repo cache.CacheRepo
	switch cfg.Backend {
	case "", config.CacheNone:
		return nil, nil
	case config.CacheMemory:
		mc, err := cache.NewMemoryCache(cfg.MaxBytes)
		if err != nil {
			return nil, err
		}
		repo = mc
	case config.CacheBadger:
		bs, err := NewBadgerStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		repo = bs
	case config.CacheRedis:
		var cold *BadgerStore
		if cfg.Path != "" {
			var err error
			if cold, err = NewBadgerStore(cfg.Path); err != nil {
				return nil, err
			}
		}
		var coldStorage cache.ColdStorage
		if cold != nil {
			coldStorage = cold
		}
		rc, err := cache.NewRedisCache(cache.RedisOptions{Addr: cfg.RedisURL, MaxTTL: cfg.TTL}, coldStorage)
		if err != nil {
			if cold != nil {
				_ = cold.Close()
			}
			return nil, err
		}
		repo = rc
		if cold != nil {
			repo = &layeredCache{CacheRepo: rc, cold: cold}
		}
	default:
		return nil, fmt.Errorf("неизвестный backend кеша %q", cfg.Backend)
	}

	if cfg.Compress {
		cc, err := cache.NewCompressedCache(repo)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		return cc, nil
	}
	return repo, nil
}

// layeredCache закрывает cold storage вместе с hot cache
type layeredCache struct {
	cache.CacheRepo
	cold cache.ColdStorage
}

func (l *layeredCache) Close() error {
	err := l.CacheRepo.Close()
	if cerr := l.cold.Close(); err == nil {
		err = cerr
	}
	return err
}
