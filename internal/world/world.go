package world

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
)

// WorldIndex единственный владелец чанков и источник истины о том, какие чанки существуют.
type WorldIndex struct {
	dims   Dimensions
	chunks map[vec.Vec3]*Chunk
	mu     sync.RWMutex
	log    *logging.Logger
}

// ChunkSummary сводка по чанку для API и диагностики
type ChunkSummary struct {
	Coords     vec.Vec3 `json:"coords"`
	Origin     vec.Vec3 `json:"origin"`
	Dirty      bool     `json:"dirty"`
	Solid      int      `json:"solid"`
	Version    uint64   `json:"version"`
	HasMesh    bool     `json:"has_mesh"`
	MeshHandle string   `json:"mesh_handle,omitempty"`
}

// NewWorldIndex создаёт пустой мир с заданными размерами чанков
func NewWorldIndex(dims Dimensions) (*WorldIndex, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &WorldIndex{
		dims:   dims,
		chunks: make(map[vec.Vec3]*Chunk),
		log:    logging.GetWorldLogger(),
	}, nil
}

// Dimensions размеры чанков мира
func (w *WorldIndex) Dimensions() Dimensions {
	return w.dims
}

// Insert добавляет чанк. Дубликат координаты: ошибка, перезапись не выполняется.
func (w *WorldIndex) Insert(c *Chunk) error {
	if c.Dimensions() != w.dims {
		return fmt.Errorf("%w: chunk %s", ErrDimensionMismatch, c.Coords)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.chunks[c.Coords]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChunk, c.Coords)
	}
	w.chunks[c.Coords] = c
	return nil
}

// Get возвращает чанк по координате
func (w *WorldIndex) Get(coords vec.Vec3) (*Chunk, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.chunks[coords]
	return c, ok
}

// Len количество загруженных чанков
func (w *WorldIndex) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.chunks)
}

// Coords отсортированный список координат всех чанков
func (w *WorldIndex) Coords() []vec.Vec3 {
	return w.collect(func(*Chunk) bool { return true })
}

// DirtyCoords отсортированный список координат чанков, ожидающих пересборки
func (w *WorldIndex) DirtyCoords() []vec.Vec3 {
	return w.collect(func(c *Chunk) bool { return c.IsDirty() })
}

func (w *WorldIndex) collect(keep func(*Chunk) bool) []vec.Vec3 {
	w.mu.RLock()
	out := make([]vec.Vec3, 0, len(w.chunks))
	for coords, c := range w.chunks {
		if keep(c) {
			out = append(out, coords)
		}
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// SetVoxel правка ландшафта: меняет воксель и помечает чанк dirty
func (w *WorldIndex) SetVoxel(coords, local vec.Vec3, v Voxel) error {
	c, ok := w.Get(coords)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, coords)
	}
	return c.SetVoxel(local, v)
}

// MarkDirty принудительно ставит чанк в очередь пересборки
func (w *WorldIndex) MarkDirty(coords vec.Vec3) error {
	c, ok := w.Get(coords)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, coords)
	}
	c.MarkDirty()
	return nil
}

// InstallMesh подменяет меш чанка новым handle и возвращает старый.
// clean == false означает, что воксели изменились после снятия снимка и чанк остался dirty.
func (w *WorldIndex) InstallMesh(coords vec.Vec3, h render.Handle, version uint64) (old render.Handle, clean bool, err error) {
	c, ok := w.Get(coords)
	if !ok {
		return render.NilHandle, false, fmt.Errorf("%w: %s", ErrChunkNotFound, coords)
	}
	old, clean = c.installMesh(h, version)
	return old, clean, nil
}

// Remove выгружает чанк и освобождает его меш.
// Если освободить меш не удалось, чанк остаётся в мире.
func (w *WorldIndex) Remove(ctx context.Context, coords vec.Vec3, rel render.Releaser) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	c, ok := w.chunks[coords]
	if !ok {
		return fmt.Errorf("%w: %s", ErrChunkNotFound, coords)
	}

	if h, has := c.MeshHandle(); has {
		if err := rel.Release(ctx, h); err != nil {
			return fmt.Errorf("release mesh of chunk %s: %w", coords, err)
		}
		c.detachMesh()
	}

	delete(w.chunks, coords)
	w.log.Debug("Chunk %s unloaded", coords)
	return nil
}

// Summaries сводки по всем чанкам в детерминированном порядке
func (w *WorldIndex) Summaries() []ChunkSummary {
	coords := w.Coords()
	out := make([]ChunkSummary, 0, len(coords))
	for _, cc := range coords {
		if s, ok := w.Summary(cc); ok {
			out = append(out, s)
		}
	}
	return out
}

// Summary сводка по одному чанку
func (w *WorldIndex) Summary(coords vec.Vec3) (ChunkSummary, bool) {
	c, ok := w.Get(coords)
	if !ok {
		return ChunkSummary{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := ChunkSummary{
		Coords:  c.Coords,
		Origin:  c.Coords.Mul(c.voxels.dims.Vec3()),
		Dirty:   c.dirty,
		Solid:   c.voxels.SolidCount(),
		Version: c.version,
		HasMesh: !c.mesh.IsZero(),
	}
	if s.HasMesh {
		s.MeshHandle = c.mesh.String()
	}
	return s, true
}

// Extent включающий диапазон координат чанков
type Extent struct {
	Min vec.Vec3
	Max vec.Vec3
}

// SingleChunk диапазон из одного чанка
func SingleChunk(coords vec.Vec3) Extent {
	return Extent{Min: coords, Max: coords}
}

// Count количество координат в диапазоне; 0 для перевёрнутого диапазона
func (e Extent) Count() int {
	dx, dy, dz := e.Max.X-e.Min.X+1, e.Max.Y-e.Min.Y+1, e.Max.Z-e.Min.Z+1
	if dx <= 0 || dy <= 0 || dz <= 0 {
		return 0
	}
	return dx * dy * dz
}

// Each обходит координаты диапазона в порядке x -> y -> z
func (e Extent) Each(fn func(vec.Vec3) error) error {
	for x := e.Min.X; x <= e.Max.X; x++ {
		for y := e.Min.Y; y <= e.Max.Y; y++ {
			for z := e.Min.Z; z <= e.Max.Z; z++ {
				if err := fn(vec.Vec3{X: x, Y: y, Z: z}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// GenerateWorld вызывает генератор по одному разу на каждую координату диапазона
// и вставляет чанки в новый мир. Каждый чанк ожидает пересборки.
func GenerateWorld(extent Extent, dims Dimensions, gen Generator) (*WorldIndex, error) {
	w, err := NewWorldIndex(dims)
	if err != nil {
		return nil, err
	}

	err = extent.Each(func(coords vec.Vec3) error {
		return w.generateInto(coords, gen)
	})
	if err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}

	w.log.Info("🌍 World generated: %d chunks of %dx%dx%d", w.Len(), dims.Width, dims.Height, dims.Depth)
	return w, nil
}

// GenerateChunk догенерирует один чанк в существующий мир
func (w *WorldIndex) GenerateChunk(coords vec.Vec3, gen Generator) error {
	return w.generateInto(coords, gen)
}

func (w *WorldIndex) generateInto(coords vec.Vec3, gen Generator) error {
	chunk, err := gen.Generate(coords, w.dims)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", coords, err)
	}
	if chunk.Coords != coords {
		return fmt.Errorf("generator returned chunk %s for %s", chunk.Coords, coords)
	}
	chunk.MarkDirty()
	return w.Insert(chunk)
}
