package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// PoolStats статистика пула
type PoolStats struct {
	Live     int    `json:"live"`
	Installs uint64 `json:"installs"`
	Releases uint64 `json:"releases"`
}

// MemoryPool хранит установленные меши в памяти процесса.
// Используется как безголовый рендер и как тестовый двойник.
type MemoryPool struct {
	mu       sync.RWMutex
	meshes   map[Handle]Mesh
	ready    bool
	installs uint64
	releases uint64
}

// NewMemoryPool создаёт готовый к работе пул
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		meshes: make(map[Handle]Mesh),
		ready:  true,
	}
}

func (p *MemoryPool) Install(ctx context.Context, m Mesh) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return NilHandle, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return NilHandle, ErrNotReady
	}

	h := Handle(uuid.New())
	p.meshes[h] = m
	p.installs++
	return h, nil
}

func (p *MemoryPool) Release(ctx context.Context, h Handle) error {
	if h.IsZero() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.meshes[h]; !ok {
		return fmt.Errorf("release %s: %w", h, ErrUnknownHandle)
	}
	delete(p.meshes, h)
	p.releases++
	return nil
}

func (p *MemoryPool) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// SetReady переключает доступность цели рендера
func (p *MemoryPool) SetReady(ready bool) {
	p.mu.Lock()
	p.ready = ready
	p.mu.Unlock()
}

// Get возвращает установленный меш
func (p *MemoryPool) Get(h Handle) (Mesh, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.meshes[h]
	return m, ok
}

// Live количество установленных и ещё не освобождённых мешей
func (p *MemoryPool) Live() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.meshes)
}

func (p *MemoryPool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PoolStats{Live: len(p.meshes), Installs: p.installs, Releases: p.releases}
}
