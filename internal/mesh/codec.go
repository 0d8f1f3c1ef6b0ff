package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
)

// Формат (little-endian):
//
//	magic "VXM1"
//	u32 vertices, u32 indices, u32 primitives
//	vertices * (3 f32 position + 3 f32 normal)
//	indices * u32
//	primitives * (3 i32 position, u16 name length, name, 4 f32 color)
var meshMagic = [4]byte{'V', 'X', 'M', '1'}

// ErrCorruptMesh закодированный меш повреждён
var ErrCorruptMesh = errors.New("corrupt mesh encoding")

// Encode кодирует меш. Одинаковые меши дают одинаковые байты.
func (m *Mesh) Encode() []byte {
	size := 16 + len(m.Positions)*24 + len(m.Indices)*4
	for _, p := range m.Primitives {
		size += 12 + 2 + len(p.Material.Name) + 16
	}
	buf := make([]byte, 0, size)

	buf = append(buf, meshMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Positions)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Indices)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Primitives)))

	for i, p := range m.Positions {
		buf = appendVec(buf, p)
		buf = appendVec(buf, m.Normals[i])
	}
	for _, idx := range m.Indices {
		buf = binary.LittleEndian.AppendUint32(buf, idx)
	}
	for _, p := range m.Primitives {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Position.X)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Position.Y)))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Position.Z)))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.Material.Name)))
		buf = append(buf, p.Material.Name...)
		c := p.Material.Color
		for _, f := range [4]float32{c.R, c.G, c.B, c.A} {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

func appendVec(buf []byte, v [3]float32) []byte {
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: unexpected end at offset %d", ErrCorruptMesh, r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *reader) vec() [3]float32 {
	return [3]float32{r.f32(), r.f32(), r.f32()}
}

// DecodeMesh восстанавливает меш из Encode
func DecodeMesh(data []byte) (*Mesh, error) {
	r := &reader{data: data}
	magic := r.take(4)
	if r.err != nil || string(magic) != string(meshMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptMesh)
	}

	nv, ni, np := int(r.u32()), int(r.u32()), int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	// каждый элемент занимает хотя бы 4 байта, поэтому счётчики ограничены длиной данных
	if nv > len(data) || ni > len(data) || np > len(data) {
		return nil, fmt.Errorf("%w: counts exceed payload", ErrCorruptMesh)
	}

	m := &Mesh{
		Positions:  make([][3]float32, 0, nv),
		Normals:    make([][3]float32, 0, nv),
		Indices:    make([]uint32, 0, ni),
		Primitives: make([]Primitive, 0, np),
	}
	for i := 0; i < nv; i++ {
		m.Positions = append(m.Positions, r.vec())
		m.Normals = append(m.Normals, r.vec())
	}
	for i := 0; i < ni; i++ {
		m.Indices = append(m.Indices, r.u32())
	}
	for i := 0; i < np; i++ {
		var p Primitive
		p.Position = vec.Vec3{X: int(int32(r.u32())), Y: int(int32(r.u32())), Z: int(int32(r.u32()))}
		name := r.take(int(r.u16()))
		p.Material = render.Material{
			Name:  string(name),
			Color: render.Color{R: r.f32(), G: r.f32(), B: r.f32(), A: r.f32()},
		}
		m.Primitives = append(m.Primitives, p)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptMesh, len(data)-r.off)
	}
	for _, idx := range m.Indices {
		if int(idx) >= nv {
			return nil, fmt.Errorf("%w: index %d out of range", ErrCorruptMesh, idx)
		}
	}
	return m, nil
}
