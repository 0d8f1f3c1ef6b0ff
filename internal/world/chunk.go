package world

import (
	"sync"

	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
)

// Chunk размещает VoxelGrid в мировом пространстве, хранит флаг dirty
// и handle текущего меша в рендере.
type Chunk struct {
	Coords vec.Vec3 // Координаты чанка в сетке чанков

	voxels *VoxelGrid
	dirty  bool
	// version увеличивается на каждое изменение вокселей
	version uint64
	mesh    render.Handle
	// builtVersion версия вокселей, из которой собран текущий меш
	builtVersion uint64

	mu sync.RWMutex
}

// Snapshot согласованная копия вокселей чанка для сборки меша
type Snapshot struct {
	Coords  vec.Vec3
	Origin  vec.Vec3
	Voxels  *VoxelGrid
	Version uint64
}

// NewChunk создаёт пустой чанк. Новый чанк всегда dirty и без меша.
func NewChunk(coords vec.Vec3, dims Dimensions) (*Chunk, error) {
	grid, err := NewVoxelGrid(dims)
	if err != nil {
		return nil, err
	}
	return &Chunk{
		Coords:  coords,
		voxels:  grid,
		dirty:   true,
		version: 1,
	}, nil
}

// Dimensions размеры чанка
func (c *Chunk) Dimensions() Dimensions {
	return c.voxels.Dimensions()
}

// Origin мировая позиция локальной координаты (0,0,0): Coords * Dimensions
func (c *Chunk) Origin() vec.Vec3 {
	return c.Coords.Mul(c.voxels.Dimensions().Vec3())
}

// Voxel возвращает воксель по локальной координате
func (c *Chunk) Voxel(local vec.Vec3) (Voxel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voxels.At(local)
}

// SetVoxel изменяет воксель и помечает чанк для пересборки
func (c *Chunk) SetVoxel(local vec.Vec3, v Voxel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.voxels.At(local)
	if err := c.voxels.Set(local, v); err != nil {
		return err
	}
	if ok && old == v {
		return nil
	}
	c.version++
	c.dirty = true
	return nil
}

// fill заполняет все воксели функцией f; используется генератором до вставки в мир
func (c *Chunk) fill(f func(local vec.Vec3) Voxel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := 0
	dims := c.voxels.dims
	for y := 0; y < dims.Height; y++ {
		for z := 0; z < dims.Depth; z++ {
			for x := 0; x < dims.Width; x++ {
				c.voxels.voxels[i] = f(vec.Vec3{X: x, Y: y, Z: z})
				i++
			}
		}
	}
	c.version++
	c.dirty = true
}

// MarkDirty помечает чанк для пересборки
func (c *Chunk) MarkDirty() {
	c.mu.Lock()
	c.dirty = true
	c.mu.Unlock()
}

// IsDirty возвращает true, если меш устарел относительно вокселей
func (c *Chunk) IsDirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Version текущая версия вокселей
func (c *Chunk) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// MeshHandle возвращает handle текущего меша; false если меш ещё не собран
func (c *Chunk) MeshHandle() (render.Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mesh, !c.mesh.IsZero()
}

// SolidCount количество твёрдых вокселей
func (c *Chunk) SolidCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voxels.SolidCount()
}

// Fingerprint отпечаток текущего содержимого вокселей
func (c *Chunk) Fingerprint() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voxels.Fingerprint()
}

// Snapshot копирует воксели под блокировкой чтения
func (c *Chunk) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Coords:  c.Coords,
		Origin:  c.Coords.Mul(c.voxels.dims.Vec3()),
		Voxels:  c.voxels.Clone(),
		Version: c.version,
	}
}

// installMesh подменяет меш целиком и возвращает старый handle.
// Флаг dirty снимается, только если меш собран из текущей версии вокселей.
func (c *Chunk) installMesh(h render.Handle, version uint64) (old render.Handle, clean bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old = c.mesh
	c.mesh = h
	c.builtVersion = version
	if version == c.version {
		c.dirty = false
	}
	return old, !c.dirty
}

// detachMesh отвязывает меш от чанка (при выгрузке)
func (c *Chunk) detachMesh() render.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.mesh
	c.mesh = render.NilHandle
	return h
}
