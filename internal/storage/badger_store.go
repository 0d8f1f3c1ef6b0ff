package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxelgen/internal/cache"
	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/dgraph-io/badger/v3"
)

const (
	meshPrefix  = "mesh/"
	deltaPrefix = "delta/"
)

// BadgerStore локальное хранилище на BadgerDB.
// Хранит закодированные меши (cache.CacheRepo и cache.ColdStorage) и правки ландшафта (DeltaRepo).
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool

	requests int64
	hits     int64
	misses   int64
}

// NewBadgerStore открывает хранилище в dataPath/voxels.
// Пустой dataPath открывает БД в памяти (для тестов).
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	var opts badger.Options
	dbPath := ""
	if dataPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath = filepath.Join(dataPath, "voxels")
		opts = badger.DefaultOptions(dbPath)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	logging.Info("BadgerDB открыта: %q", dbPath)
	return &BadgerStore{db: db, dbPath: dbPath, isReady: true}, nil
}

// Close закрывает хранилище. Повторный вызов ничего не делает.
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}
	s.isReady = false
	return s.db.Close()
}

// view/update выполняют транзакцию, если хранилище открыто
func (s *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func (s *BadgerStore) getRaw(key []byte) ([]byte, error) {
	var data []byte
	err := s.view(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// --- меши ---

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	atomic.AddInt64(&s.requests, 1)

	data, err := s.getRaw([]byte(meshPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		atomic.AddInt64(&s.misses, 1)
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		atomic.AddInt64(&s.misses, 1)
		return nil, fmt.Errorf("ошибка чтения меша %s: %w", key, err)
	}
	atomic.AddInt64(&s.hits, 1)
	return data, nil
}

// Set сохраняет меш; ttl > 0 задаёт срок жизни записи.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return cache.ErrInvalidKey
	}
	return s.update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(meshPrefix+key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(meshPrefix + key))
	})
}

func (s *BadgerStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.getRaw([]byte(meshPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Load реализует cache.ColdStorage
func (s *BadgerStore) Load(ctx context.Context, key string) ([]byte, error) {
	return s.Get(ctx, key)
}

// Store реализует cache.ColdStorage: запись без срока жизни
func (s *BadgerStore) Store(ctx context.Context, key string, value []byte) error {
	return s.Set(ctx, key, value, 0)
}

func (s *BadgerStore) GetMetrics() *cache.CacheMetrics {
	m := &cache.CacheMetrics{
		TotalRequests: atomic.LoadInt64(&s.requests),
		CacheHits:     atomic.LoadInt64(&s.hits),
		CacheMisses:   atomic.LoadInt64(&s.misses),
		LastUpdate:    time.Now(),
	}
	if m.TotalRequests > 0 {
		m.HitRatio = float64(m.CacheHits) / float64(m.TotalRequests)
	}
	_ = s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(meshPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			m.TotalKeys++
		}
		return nil
	})
	return m
}

// --- правки ---

func deltaChunkPrefix(chunk vec.Vec3) string {
	return fmt.Sprintf("%s%d/%d/%d/", deltaPrefix, chunk.X, chunk.Y, chunk.Z)
}

func deltaKey(d VoxelDelta) []byte {
	return []byte(fmt.Sprintf("%s%d/%d/%d", deltaChunkPrefix(d.Chunk), d.Local.X, d.Local.Y, d.Local.Z))
}

func (s *BadgerStore) Save(ctx context.Context, d VoxelDelta) error {
	if err := validateDelta(d); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("ошибка сериализации правки: %w", err)
	}
	if err := s.update(func(txn *badger.Txn) error {
		return txn.Set(deltaKey(d), data)
	}); err != nil {
		return fmt.Errorf("ошибка сохранения правки в BadgerDB: %w", err)
	}
	return nil
}

func (s *BadgerStore) scanDeltas(prefix string) ([]VoxelDelta, error) {
	out := make([]VoxelDelta, 0)
	err := s.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var d VoxelDelta
				if err := json.Unmarshal(val, &d); err != nil {
					return fmt.Errorf("ошибка десериализации правки %s: %w", item.Key(), err)
				}
				out = append(out, d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// ключи упорядочены лексикографически, а не по числам
	sortDeltas(out)
	return out, nil
}

func (s *BadgerStore) LoadChunk(ctx context.Context, chunk vec.Vec3) ([]VoxelDelta, error) {
	return s.scanDeltas(deltaChunkPrefix(chunk))
}

func (s *BadgerStore) LoadAll(ctx context.Context) ([]VoxelDelta, error) {
	return s.scanDeltas(deltaPrefix)
}

func (s *BadgerStore) DeleteChunk(ctx context.Context, chunk vec.Vec3) error {
	prefix := []byte(deltaChunkPrefix(chunk))
	var keys [][]byte
	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
