package util

import (
	"github.com/aquilax/go-perlin"
)

// Noise детерминированный генератор 3D шума Перлина.
// Один и тот же сид и параметры дают одинаковые значения в любой точке,
// поэтому соседние чанки стыкуются без швов.
type Noise struct {
	perlin *perlin.Perlin
}

// NewNoise создаёт генератор шума.
// alpha: сглаживание, beta: частота, octaves: количество октав.
func NewNoise(seed int64, alpha, beta float64, octaves int32) *Noise {
	return &Noise{perlin: perlin.NewPerlin(alpha, beta, octaves, seed)}
}

// Noise3D возвращает значение шума для указанных координат (от 0 до 1)
func (n *Noise) Noise3D(x, y, z float64) float64 {
	return normalize(n.perlin.Noise3D(x, y, z))
}

// normalize переводит значение из [-1, 1] в [0, 1] с отсечением выбросов
func normalize(v float64) float64 {
	v = (v + 1.0) / 2.0
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
