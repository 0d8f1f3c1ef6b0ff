package storage

import (
	"context"
	"sync"

	"github.com/annel0/voxelgen/internal/vec"
)

// MemoryDeltaRepo реализует DeltaRepo в памяти.
// Используется по умолчанию и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске процесса!
type MemoryDeltaRepo struct {
	mu     sync.RWMutex
	chunks map[vec.Vec3]map[vec.Vec3]VoxelDelta
	closed bool
}

func NewMemoryDeltaRepo() *MemoryDeltaRepo {
	return &MemoryDeltaRepo{chunks: make(map[vec.Vec3]map[vec.Vec3]VoxelDelta)}
}

func (r *MemoryDeltaRepo) Save(ctx context.Context, d VoxelDelta) error {
	if err := validateDelta(d); err != nil {
		return err
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStoreClosed
	}

	chunk, ok := r.chunks[d.Chunk]
	if !ok {
		chunk = make(map[vec.Vec3]VoxelDelta)
		r.chunks[d.Chunk] = chunk
	}
	chunk[d.Local] = d
	return nil
}

func (r *MemoryDeltaRepo) LoadChunk(ctx context.Context, coords vec.Vec3) ([]VoxelDelta, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrStoreClosed
	}

	out := make([]VoxelDelta, 0, len(r.chunks[coords]))
	for _, d := range r.chunks[coords] {
		out = append(out, d)
	}
	sortDeltas(out)
	return out, nil
}

func (r *MemoryDeltaRepo) LoadAll(ctx context.Context) ([]VoxelDelta, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrStoreClosed
	}

	var out []VoxelDelta
	for _, chunk := range r.chunks {
		for _, d := range chunk {
			out = append(out, d)
		}
	}
	sortDeltas(out)
	return out, nil
}

func (r *MemoryDeltaRepo) DeleteChunk(ctx context.Context, coords vec.Vec3) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStoreClosed
	}
	delete(r.chunks, coords)
	return nil
}

// Count возвращает общее число сохранённых правок (для отладки).
func (r *MemoryDeltaRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, chunk := range r.chunks {
		n += len(chunk)
	}
	return n
}

func (r *MemoryDeltaRepo) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
