package world

import (
	"encoding/binary"
	"fmt"

	"github.com/annel0/voxelgen/internal/vec"
	"github.com/cespare/xxhash/v2"
)

// Dimensions размеры чанка в вокселях
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Depth  int `json:"depth"`
}

// Validate проверяет, что все размеры положительные
func (d Dimensions) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 {
		return fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimensions, d.Width, d.Height, d.Depth)
	}
	return nil
}

// Volume количество вокселей в чанке
func (d Dimensions) Volume() int {
	return d.Width * d.Height * d.Depth
}

// Contains проверяет, что локальная координата лежит в [0,W)x[0,H)x[0,D)
func (d Dimensions) Contains(local vec.Vec3) bool {
	return local.X >= 0 && local.X < d.Width &&
		local.Y >= 0 && local.Y < d.Height &&
		local.Z >= 0 && local.Z < d.Depth
}

// Vec3 размеры в виде вектора
func (d Dimensions) Vec3() vec.Vec3 {
	return vec.Vec3{X: d.Width, Y: d.Height, Z: d.Depth}
}

// MaterialID идентификатор материала вокселя (точка расширения; сейчас используется только Solid)
type MaterialID uint16

// Voxel одна ячейка сетки
type Voxel struct {
	Solid    bool       `json:"solid"`
	Material MaterialID `json:"material"`
}

// Air пустой воксель
var Air = Voxel{}

// SolidVoxel твёрдый воксель с материалом по умолчанию
var SolidVoxel = Voxel{Solid: true}

// VoxelGrid плотный массив вокселей одного чанка.
// Индекс: x + W*(z + D*y), поэтому обход y -> z -> x идёт по памяти подряд.
type VoxelGrid struct {
	dims   Dimensions
	voxels []Voxel
}

// NewVoxelGrid создаёт сетку, заполненную воздухом
func NewVoxelGrid(dims Dimensions) (*VoxelGrid, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &VoxelGrid{
		dims:   dims,
		voxels: make([]Voxel, dims.Volume()),
	}, nil
}

func (g *VoxelGrid) index(local vec.Vec3) int {
	return local.X + g.dims.Width*(local.Z+g.dims.Depth*local.Y)
}

// Dimensions размеры сетки
func (g *VoxelGrid) Dimensions() Dimensions {
	return g.dims
}

// At возвращает воксель; false для координаты вне сетки
func (g *VoxelGrid) At(local vec.Vec3) (Voxel, bool) {
	if !g.dims.Contains(local) {
		return Voxel{}, false
	}
	return g.voxels[g.index(local)], true
}

// Set записывает воксель
func (g *VoxelGrid) Set(local vec.Vec3, v Voxel) error {
	if !g.dims.Contains(local) {
		return fmt.Errorf("%w: %s in %dx%dx%d", ErrOutOfBounds, local, g.dims.Width, g.dims.Height, g.dims.Depth)
	}
	g.voxels[g.index(local)] = v
	return nil
}

// IsSolid true, если координата внутри сетки и воксель твёрдый
func (g *VoxelGrid) IsSolid(local vec.Vec3) bool {
	v, ok := g.At(local)
	return ok && v.Solid
}

// ForEach обходит каждую координату ровно один раз в порядке y -> z -> x
func (g *VoxelGrid) ForEach(fn func(local vec.Vec3, v Voxel)) {
	i := 0
	for y := 0; y < g.dims.Height; y++ {
		for z := 0; z < g.dims.Depth; z++ {
			for x := 0; x < g.dims.Width; x++ {
				fn(vec.Vec3{X: x, Y: y, Z: z}, g.voxels[i])
				i++
			}
		}
	}
}

// SolidCount количество твёрдых вокселей
func (g *VoxelGrid) SolidCount() int {
	n := 0
	for _, v := range g.voxels {
		if v.Solid {
			n++
		}
	}
	return n
}

// Clone глубокая копия сетки
func (g *VoxelGrid) Clone() *VoxelGrid {
	voxels := make([]Voxel, len(g.voxels))
	copy(voxels, g.voxels)
	return &VoxelGrid{dims: g.dims, voxels: voxels}
}

// Fingerprint хэш содержимого сетки; одинаковые сетки дают одинаковый отпечаток
func (g *VoxelGrid) Fingerprint() uint64 {
	d := xxhash.New()
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(g.dims.Width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(g.dims.Height))
	binary.LittleEndian.PutUint32(buf[8:], uint32(g.dims.Depth))
	_, _ = d.Write(buf[:])

	cell := make([]byte, 3*len(g.voxels))
	for i, v := range g.voxels {
		if v.Solid {
			cell[3*i] = 1
		}
		binary.LittleEndian.PutUint16(cell[3*i+1:], uint16(v.Material))
	}
	_, _ = d.Write(cell)
	return d.Sum64()
}
