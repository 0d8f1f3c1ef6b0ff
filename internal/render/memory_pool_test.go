package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMesh struct{ vertices int }

func (s stubMesh) VertexCount() int    { return s.vertices }
func (s stubMesh) PrimitiveCount() int { return 1 }
func (s stubMesh) Encode() []byte      { return []byte{byte(s.vertices)} }

func TestMemoryPoolInstallRelease(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()

	h, err := pool.Install(ctx, stubMesh{vertices: 24})
	require.NoError(t, err)
	assert.False(t, h.IsZero())
	assert.Equal(t, 1, pool.Live())

	m, ok := pool.Get(h)
	require.True(t, ok)
	assert.Equal(t, 24, m.VertexCount())

	require.NoError(t, pool.Release(ctx, h))
	assert.Equal(t, 0, pool.Live())
	assert.ErrorIs(t, pool.Release(ctx, h), ErrUnknownHandle)

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.Installs)
	assert.Equal(t, uint64(1), stats.Releases)
}

func TestMemoryPoolNilHandleRelease(t *testing.T) {
	pool := NewMemoryPool()
	assert.NoError(t, pool.Release(context.Background(), NilHandle))
	assert.True(t, NilHandle.IsZero())
}

func TestMemoryPoolNotReady(t *testing.T) {
	pool := NewMemoryPool()
	pool.SetReady(false)
	assert.False(t, pool.Ready())

	_, err := pool.Install(context.Background(), stubMesh{})
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, pool.Live())
}

func TestMemoryPoolUniqueHandles(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	seen := make(map[Handle]struct{})
	for i := 0; i < 100; i++ {
		h, err := pool.Install(ctx, stubMesh{})
		require.NoError(t, err)
		_, dup := seen[h]
		require.False(t, dup)
		seen[h] = struct{}{}
	}
	assert.Equal(t, 100, pool.Live())
}
