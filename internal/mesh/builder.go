package mesh

import (
	"fmt"

	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/vec"
)

// NewBuilder выбирает построитель по режиму из конфигурации
func NewBuilder(mode string) (Builder, error) {
	log := logging.GetMeshLogger()
	switch mode {
	case config.MesherNaive, "":
		return &NaiveBuilder{log: log}, nil
	case config.MesherCulled:
		return &CulledBuilder{log: log}, nil
	case config.MesherGreedy:
		return &GreedyBuilder{log: log}, nil
	default:
		return nil, fmt.Errorf("неизвестный режим мешера %q", mode)
	}
}

func reportMissing(log *logging.Logger, origin vec.Vec3, missing []vec.Vec3) {
	if len(missing) == 0 || log == nil {
		return
	}
	log.Warn("Chunk at %s: skipped %d missing voxels (first at %s)", origin, len(missing), missing[0])
}

// NaiveBuilder выпускает по одному кубу на каждый твёрдый воксель,
// не проверяя соседей. Внутренние грани остаются в геометрии.
type NaiveBuilder struct {
	log *logging.Logger
}

func (b *NaiveBuilder) Mode() string { return config.MesherNaive }

func (b *NaiveBuilder) Build(src VoxelSource, origin vec.Vec3) Result {
	solids, prims, missing := scan(src, origin)
	reportMissing(b.log, origin, missing)

	m := &Mesh{
		Positions:  make([][3]float32, 0, len(solids)*24),
		Normals:    make([][3]float32, 0, len(solids)*24),
		Indices:    make([]uint32, 0, len(solids)*36),
		Primitives: prims,
	}
	for _, local := range solids {
		pos := origin.Add(local).ToFloat()
		for _, f := range faces {
			m.appendFace(f, pos)
		}
	}
	return Result{Mesh: m, Missing: missing}
}

// CulledBuilder собирает один общий меш и выпускает только грани,
// сосед которых по оси пуст или лежит за границей чанка.
type CulledBuilder struct {
	log *logging.Logger
}

func (b *CulledBuilder) Mode() string { return config.MesherCulled }

func (b *CulledBuilder) Build(src VoxelSource, origin vec.Vec3) Result {
	solids, prims, missing := scan(src, origin)
	reportMissing(b.log, origin, missing)

	dims := src.Dimensions()
	m := &Mesh{Primitives: prims}
	for _, local := range solids {
		pos := origin.Add(local).ToFloat()
		for _, f := range faces {
			if solidAt(src, dims, local.Add(f.dir)) {
				continue
			}
			m.appendFace(f, pos)
		}
	}
	return Result{Mesh: m, Missing: missing}
}

// GreedyBuilder объединяет видимые грани каждого слоя в максимальные прямоугольники.
type GreedyBuilder struct {
	log *logging.Logger
}

func (b *GreedyBuilder) Mode() string { return config.MesherGreedy }

func (b *GreedyBuilder) Build(src VoxelSource, origin vec.Vec3) Result {
	_, prims, missing := scan(src, origin)
	reportMissing(b.log, origin, missing)

	dims := src.Dimensions()
	size := [3]int{dims.Width, dims.Height, dims.Depth}
	o := origin.ToFloat().Array()

	m := &Mesh{Primitives: prims}
	for _, f := range faces {
		d, sign := axisOf(f.dir)
		u, v := (d+1)%3, (d+2)%3
		mask := make([]bool, size[u]*size[v])

		for slice := 0; slice < size[d]; slice++ {
			// маска видимых граней слоя
			for j := 0; j < size[v]; j++ {
				for i := 0; i < size[u]; i++ {
					var p [3]int
					p[d], p[u], p[v] = slice, i, j
					local := vec.Vec3{X: p[0], Y: p[1], Z: p[2]}
					mask[i+j*size[u]] = solidAt(src, dims, local) && !solidAt(src, dims, local.Add(f.dir))
				}
			}

			plane := float32(slice)
			if sign > 0 {
				plane++
			}

			for j := 0; j < size[v]; j++ {
				for i := 0; i < size[u]; {
					if !mask[i+j*size[u]] {
						i++
						continue
					}

					w := 1
					for i+w < size[u] && mask[i+w+j*size[u]] {
						w++
					}
					h := 1
				grow:
					for j+h < size[v] {
						for k := 0; k < w; k++ {
							if !mask[i+k+(j+h)*size[u]] {
								break grow
							}
						}
						h++
					}

					m.appendQuad(greedyCorners(d, u, v, sign, plane, i, j, w, h, o), f.normal)

					for jj := j; jj < j+h; jj++ {
						for ii := i; ii < i+w; ii++ {
							mask[ii+jj*size[u]] = false
						}
					}
					i += w
				}
			}
		}
	}
	return Result{Mesh: m, Missing: missing}
}

// axisOf возвращает номер оси нормали (0=x, 1=y, 2=z) и её знак
func axisOf(dir vec.Vec3) (axis int, sign int) {
	switch {
	case dir.X != 0:
		return 0, dir.X
	case dir.Y != 0:
		return 1, dir.Y
	default:
		return 2, dir.Z
	}
}

// greedyCorners углы прямоугольника w x h в плоскости (u,v).
// Базис (u, v, d) правый, поэтому обход (i,j) -> (i+w,j) -> (i+w,j+h) -> (i,j+h)
// даёт нормаль +d; для -d обход разворачивается.
func greedyCorners(d, u, v, sign int, plane float32, i, j, w, h int, origin [3]float32) [4][3]float32 {
	uv := [4][2]int{{i, j}, {i + w, j}, {i + w, j + h}, {i, j + h}}
	if sign < 0 {
		uv = [4][2]int{{i, j}, {i, j + h}, {i + w, j + h}, {i + w, j}}
	}

	var out [4][3]float32
	for k, c := range uv {
		var p [3]float32
		p[d] = plane
		p[u] = float32(c[0])
		p[v] = float32(c[1])
		out[k] = [3]float32{p[0] + origin[0], p[1] + origin[1], p[2] + origin[2]}
	}
	return out
}
