package mesh

import (
	"testing"

	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeepsBytes(t *testing.T) {
	grid := randomGrid(t, world.Dimensions{Width: 4, Height: 2, Depth: 4}, 9)
	for _, b := range allBuilders(t) {
		m := b.Build(grid, vec.Vec3{X: -4, Y: 2, Z: 4}).Mesh
		data := m.Encode()

		decoded, err := DecodeMesh(data)
		require.NoError(t, err, b.Mode())
		assert.Equal(t, data, decoded.Encode(), b.Mode())
		assert.Equal(t, m.Primitives, decoded.Primitives, b.Mode())
		assert.Equal(t, m.Fingerprint(), decoded.Fingerprint(), b.Mode())
	}
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	grid := gridWith(t, world.Dimensions{Width: 1, Height: 1, Depth: 1}, vec.Vec3{})
	b, _ := NewBuilder(config.MesherNaive)
	data := b.Build(grid, vec.Vec3{}).Mesh.Encode()

	_, err := DecodeMesh(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrCorruptMesh)

	_, err = DecodeMesh(append(append([]byte{}, data...), 0))
	assert.ErrorIs(t, err, ErrCorruptMesh)

	bad := append([]byte{}, data...)
	bad[0] = 'X'
	_, err = DecodeMesh(bad)
	assert.ErrorIs(t, err, ErrCorruptMesh)

	_, err = DecodeMesh(nil)
	assert.ErrorIs(t, err, ErrCorruptMesh)
}
