package world

import (
	"testing"

	"github.com/annel0/voxelgen/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionsValidate(t *testing.T) {
	assert.NoError(t, Dimensions{Width: 1, Height: 1, Depth: 1}.Validate())
	assert.ErrorIs(t, Dimensions{Width: 0, Height: 1, Depth: 1}.Validate(), ErrInvalidDimensions)
	assert.ErrorIs(t, Dimensions{Width: 1, Height: -1, Depth: 1}.Validate(), ErrInvalidDimensions)
}

func TestVoxelGridBounds(t *testing.T) {
	g, err := NewVoxelGrid(Dimensions{Width: 2, Height: 1, Depth: 2})
	require.NoError(t, err)

	_, ok := g.At(vec.Vec3{X: 2})
	assert.False(t, ok)
	_, ok = g.At(vec.Vec3{X: -1})
	assert.False(t, ok)
	assert.ErrorIs(t, g.Set(vec.Vec3{Y: 1}, SolidVoxel), ErrOutOfBounds)

	require.NoError(t, g.Set(vec.Vec3{X: 1, Z: 1}, SolidVoxel))
	assert.True(t, g.IsSolid(vec.Vec3{X: 1, Z: 1}))
	assert.False(t, g.IsSolid(vec.Vec3{}))
	assert.Equal(t, 1, g.SolidCount())
}

func TestVoxelGridForEachOrder(t *testing.T) {
	g, err := NewVoxelGrid(Dimensions{Width: 2, Height: 2, Depth: 2})
	require.NoError(t, err)

	var order []vec.Vec3
	g.ForEach(func(local vec.Vec3, _ Voxel) { order = append(order, local) })
	require.Len(t, order, 8)
	assert.Equal(t, vec.Vec3{}, order[0])
	assert.Equal(t, vec.Vec3{X: 1}, order[1])
	assert.Equal(t, vec.Vec3{Z: 1}, order[2])
	assert.Equal(t, vec.Vec3{Y: 1}, order[4])
}

func TestVoxelGridFingerprint(t *testing.T) {
	dims := Dimensions{Width: 3, Height: 2, Depth: 3}
	a, _ := NewVoxelGrid(dims)
	b, _ := NewVoxelGrid(dims)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	require.NoError(t, a.Set(vec.Vec3{X: 2, Y: 1, Z: 2}, SolidVoxel))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	clone := a.Clone()
	assert.Equal(t, a.Fingerprint(), clone.Fingerprint())
	require.NoError(t, clone.Set(vec.Vec3{}, SolidVoxel))
	assert.NotEqual(t, a.Fingerprint(), clone.Fingerprint(), "clone must not share storage")

	// одинаковый объём, разная форма
	c, _ := NewVoxelGrid(Dimensions{Width: 9, Height: 2, Depth: 1})
	assert.NotEqual(t, b.Fingerprint(), c.Fingerprint())
}
