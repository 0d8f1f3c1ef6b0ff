package world

import (
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/util"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/cespare/xxhash/v2"
)

// Generator заполняет воксели нового чанка. Мир генератор не трогает:
// вставкой занимается вызывающий код.
type Generator interface {
	Generate(coords vec.Vec3, dims Dimensions) (*Chunk, error)
}

// RandomGenerator подбрасывает монетку для каждого вокселя.
// Чанки независимы друг от друга, поэтому на границах видны разрывы.
type RandomGenerator struct {
	Seed int64   // Сид для генерации
	Fill float64 // Вероятность твёрдого вокселя (от 0 до 1)
}

// NewRandomGenerator создаёт генератор случайного заполнения
func NewRandomGenerator(seed int64, fill float64) *RandomGenerator {
	return &RandomGenerator{Seed: seed, Fill: fill}
}

// chunkSeed сид чанка: xxhash от глобального сида и координат.
// Линейная комбинация координат давала одинаковые сиды, например (13,0,0) и (0,0,31).
func (g *RandomGenerator) chunkSeed(coords vec.Vec3) int64 {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(g.Seed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(coords.X)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(coords.Y)))
	binary.LittleEndian.PutUint64(buf[24:], uint64(int64(coords.Z)))
	return int64(xxhash.Sum64(buf[:]))
}

// Generate генерирует чанк по его координатам
func (g *RandomGenerator) Generate(coords vec.Vec3, dims Dimensions) (*Chunk, error) {
	chunk, err := NewChunk(coords, dims)
	if err != nil {
		return nil, err
	}

	// Локальный генератор случайных чисел для детерминированности
	rng := rand.New(rand.NewSource(g.chunkSeed(coords)))
	chunk.fill(func(vec.Vec3) Voxel {
		return Voxel{Solid: rng.Float64() < g.Fill}
	})
	return chunk, nil
}

// NoiseGenerator сэмплирует 3D шум Перлина в мировых координатах,
// поэтому соседние чанки стыкуются без швов и результат воспроизводим.
type NoiseGenerator struct {
	noise     *util.Noise
	Scale     float64 // Масштаб шума
	Threshold float64 // Воксель твёрдый, если шум >= Threshold
}

// NewNoiseGenerator создаёт генератор на шуме Перлина
func NewNoiseGenerator(seed int64, scale, threshold, alpha, beta float64, octaves int32) *NoiseGenerator {
	return &NoiseGenerator{
		noise:     util.NewNoise(seed, alpha, beta, octaves),
		Scale:     scale,
		Threshold: threshold,
	}
}

// Generate генерирует чанк по его координатам
func (g *NoiseGenerator) Generate(coords vec.Vec3, dims Dimensions) (*Chunk, error) {
	chunk, err := NewChunk(coords, dims)
	if err != nil {
		return nil, err
	}

	origin := chunk.Origin()
	chunk.fill(func(local vec.Vec3) Voxel {
		p := origin.Add(local)
		n := g.noise.Noise3D(float64(p.X)*g.Scale, float64(p.Y)*g.Scale, float64(p.Z)*g.Scale)
		return Voxel{Solid: n >= g.Threshold}
	})
	return chunk, nil
}

// SampleSolid значение генератора в мировой точке (для проверок стыковки чанков)
func (g *NoiseGenerator) SampleSolid(p vec.Vec3) bool {
	n := g.noise.Noise3D(float64(p.X)*g.Scale, float64(p.Y)*g.Scale, float64(p.Z)*g.Scale)
	return n >= g.Threshold
}

// NewGenerator выбирает генератор по конфигурации
func NewGenerator(cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Mode {
	case config.GeneratorRandom, "":
		return NewRandomGenerator(cfg.GetSeed(), cfg.Fill), nil
	case config.GeneratorNoise:
		return NewNoiseGenerator(cfg.GetSeed(), cfg.Scale, cfg.Threshold, cfg.Alpha, cfg.Beta, cfg.Octaves), nil
	default:
		return nil, fmt.Errorf("неизвестный режим генератора %q", cfg.Mode)
	}
}
