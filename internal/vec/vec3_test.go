package vec

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: -1, Z: 2}

	assert.Equal(t, Vec3{X: 5, Y: 1, Z: 5}, a.Add(b))
	assert.Equal(t, Vec3{X: 4, Y: -2, Z: 6}, a.Mul(b))
	assert.True(t, a.Equals(Vec3{X: 1, Y: 2, Z: 3}))
	assert.Equal(t, "(1,2,3)", a.String())
	assert.Equal(t, [3]float32{1, 2, 3}, a.ToFloat().Array())
}

func TestVec3Ordering(t *testing.T) {
	coords := []Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0, 0, 0}, {-1, 5, 5}}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })

	assert.Equal(t, []Vec3{{-1, 5, 5}, {0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {1, 0, 0}}, coords)
}
