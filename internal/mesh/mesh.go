// Package mesh строит геометрию поверхности чанка из его вокселей.
//
// Все построители детерминированы: одинаковое содержимое вокселей даёт
// побайтно одинаковый результат Encode (порядок вершин, обход треугольников).
package mesh

import (
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/cespare/xxhash/v2"
)

// VoxelSource источник вокселей чанка.
// At возвращает false для ячейки, которой нет в хранилище: такая ячейка пропускается.
type VoxelSource interface {
	Dimensions() world.Dimensions
	At(local vec.Vec3) (world.Voxel, bool)
}

// Primitive назначение материала одному твёрдому вокселю
type Primitive struct {
	Position vec.Vec3 // мировая позиция вокселя
	Material render.Material
}

// Mesh геометрия чанка: треугольники в мировых координатах
type Mesh struct {
	Positions  [][3]float32
	Normals    [][3]float32
	Indices    []uint32
	Primitives []Primitive
}

func (m *Mesh) VertexCount() int    { return len(m.Positions) }
func (m *Mesh) PrimitiveCount() int { return len(m.Primitives) }
func (m *Mesh) TriangleCount() int  { return len(m.Indices) / 3 }

// Fingerprint хэш закодированного меша
func (m *Mesh) Fingerprint() uint64 {
	return xxhash.Sum64(m.Encode())
}

// Result результат сборки
type Result struct {
	Mesh *Mesh
	// Missing локальные координаты, пропущенные из-за отсутствия вокселя в хранилище
	Missing []vec.Vec3
}

// Builder построитель меша чанка
type Builder interface {
	Build(src VoxelSource, origin vec.Vec3) Result
	Mode() string
}

// MaterialFor выбирает материал вокселя
func MaterialFor(v world.Voxel) render.Material {
	if v.Solid {
		return render.Green
	}
	return render.Red
}

// face грань единичного куба. corners перечислены против часовой стрелки,
// если смотреть снаружи, поэтому индексы 0,1,2,2,3,0 дают внешнюю нормаль.
type face struct {
	dir     vec.Vec3
	normal  [3]float32
	corners [4][3]float32
}

// faces в фиксированном порядке: +Y, -Y, +X, -X, +Z, -Z
var faces = [6]face{
	{dir: vec.Vec3{Y: 1}, normal: [3]float32{0, 1, 0}, corners: [4][3]float32{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{dir: vec.Vec3{Y: -1}, normal: [3]float32{0, -1, 0}, corners: [4][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{dir: vec.Vec3{X: 1}, normal: [3]float32{1, 0, 0}, corners: [4][3]float32{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{dir: vec.Vec3{X: -1}, normal: [3]float32{-1, 0, 0}, corners: [4][3]float32{{0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {0, 0, 0}}},
	{dir: vec.Vec3{Z: 1}, normal: [3]float32{0, 0, 1}, corners: [4][3]float32{{1, 0, 1}, {1, 1, 1}, {0, 1, 1}, {0, 0, 1}}},
	{dir: vec.Vec3{Z: -1}, normal: [3]float32{0, 0, -1}, corners: [4][3]float32{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// quadIndices порядок индексов для двух треугольников грани
var quadIndices = [6]uint32{0, 1, 2, 2, 3, 0}

// appendQuad добавляет четырёхугольник с общей нормалью
func (m *Mesh) appendQuad(corners [4][3]float32, normal [3]float32) {
	base := uint32(len(m.Positions))
	for _, c := range corners {
		m.Positions = append(m.Positions, c)
		m.Normals = append(m.Normals, normal)
	}
	for _, i := range quadIndices {
		m.Indices = append(m.Indices, base+i)
	}
}

// appendFace добавляет единичную грань вокселя в позиции pos
func (m *Mesh) appendFace(f face, pos vec.Vec3Float) {
	var corners [4][3]float32
	for i, c := range f.corners {
		corners[i] = [3]float32{c[0] + pos.X, c[1] + pos.Y, c[2] + pos.Z}
	}
	m.appendQuad(corners, f.normal)
}

// scan обходит все координаты чанка в порядке y -> z -> x,
// собирает твёрдые воксели, их примитивы и пропущенные ячейки
func scan(src VoxelSource, origin vec.Vec3) (solids []vec.Vec3, prims []Primitive, missing []vec.Vec3) {
	dims := src.Dimensions()
	for y := 0; y < dims.Height; y++ {
		for z := 0; z < dims.Depth; z++ {
			for x := 0; x < dims.Width; x++ {
				local := vec.Vec3{X: x, Y: y, Z: z}
				v, ok := src.At(local)
				if !ok {
					missing = append(missing, local)
					continue
				}
				if !v.Solid {
					continue
				}
				solids = append(solids, local)
				prims = append(prims, Primitive{Position: origin.Add(local), Material: MaterialFor(v)})
			}
		}
	}
	return solids, prims, missing
}

// solidAt true, если ячейка внутри чанка, присутствует и твёрдая.
// Сосед за границей чанка считается пустым, и общая грань выпускается.
func solidAt(src VoxelSource, dims world.Dimensions, local vec.Vec3) bool {
	if !dims.Contains(local) {
		return false
	}
	v, ok := src.At(local)
	return ok && v.Solid
}
