package world

import (
	"context"
	"errors"
	"testing"

	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDims = Dimensions{Width: 4, Height: 3, Depth: 5}

type stubMesh struct{}

func (stubMesh) VertexCount() int    { return 0 }
func (stubMesh) PrimitiveCount() int { return 0 }
func (stubMesh) Encode() []byte      { return nil }

func TestGenerateWorldCompleteness(t *testing.T) {
	extent := Extent{Min: vec.Vec3{X: -1, Y: 0, Z: -1}, Max: vec.Vec3{X: 1, Y: 1, Z: 0}}
	w, err := GenerateWorld(extent, testDims, NewRandomGenerator(99, 0.5))
	require.NoError(t, err)
	require.Equal(t, extent.Count(), w.Len())

	for _, coords := range w.Coords() {
		c, ok := w.Get(coords)
		require.True(t, ok)

		// каждая локальная координата посещается ровно один раз
		seen := make(map[vec.Vec3]int)
		c.voxels.ForEach(func(local vec.Vec3, _ Voxel) { seen[local]++ })
		assert.Len(t, seen, testDims.Volume())
		for local, n := range seen {
			assert.Equal(t, 1, n, "coordinate %s visited %d times", local, n)
			assert.True(t, testDims.Contains(local))
		}

		assert.True(t, c.IsDirty(), "new chunk must be pending rebuild")
		_, hasMesh := c.MeshHandle()
		assert.False(t, hasMesh)
	}
}

func TestGenerateWorldDefaultSingleChunk(t *testing.T) {
	dims := Dimensions{Width: config.DefaultChunkWidth, Height: config.DefaultChunkHeight, Depth: config.DefaultChunkDepth}
	w, err := GenerateWorld(SingleChunk(vec.Vec3{}), dims, NewRandomGenerator(1, 0.5))
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{{}}, w.Coords())
	assert.Equal(t, []vec.Vec3{{}}, w.DirtyCoords())
}

type dupGenerator struct{ inner Generator }

func (d dupGenerator) Generate(_ vec.Vec3, dims Dimensions) (*Chunk, error) {
	// всегда возвращает чанк в (0,0,0)
	return d.inner.Generate(vec.Vec3{}, dims)
}

func TestInsertRejectsDuplicate(t *testing.T) {
	w, err := NewWorldIndex(testDims)
	require.NoError(t, err)

	a, err := NewChunk(vec.Vec3{X: 1}, testDims)
	require.NoError(t, err)
	b, err := NewChunk(vec.Vec3{X: 1}, testDims)
	require.NoError(t, err)

	require.NoError(t, w.Insert(a))
	assert.ErrorIs(t, w.Insert(b), ErrDuplicateChunk)

	got, _ := w.Get(vec.Vec3{X: 1})
	assert.Same(t, a, got, "existing chunk must not be overwritten")

	assert.ErrorIs(t, w.GenerateChunk(vec.Vec3{X: 1}, NewRandomGenerator(1, 0.5)), ErrDuplicateChunk)
	assert.NoError(t, w.GenerateChunk(vec.Vec3{X: 2}, NewRandomGenerator(1, 0.5)))
}

func TestGenerateWorldAbortsOnMisplacedChunk(t *testing.T) {
	extent := Extent{Min: vec.Vec3{}, Max: vec.Vec3{X: 1}}
	_, err := GenerateWorld(extent, testDims, dupGenerator{inner: NewRandomGenerator(1, 0.5)})
	assert.Error(t, err)
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	w, err := NewWorldIndex(testDims)
	require.NoError(t, err)
	c, err := NewChunk(vec.Vec3{}, Dimensions{Width: 1, Height: 1, Depth: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, w.Insert(c), ErrDimensionMismatch)
}

func TestRandomGeneratorReproducible(t *testing.T) {
	g := NewRandomGenerator(1234, 0.5)
	a, err := g.Generate(vec.Vec3{X: 2, Y: 0, Z: -3}, testDims)
	require.NoError(t, err)
	b, err := g.Generate(vec.Vec3{X: 2, Y: 0, Z: -3}, testDims)
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestRandomGeneratorDistinctChunkSeeds(t *testing.T) {
	g := NewRandomGenerator(1234, 0.5)
	pairs := [][2]vec.Vec3{
		{{X: 13}, {Z: 31}},
		{{X: 17}, {Y: 31}},
		{{Y: 13}, {Z: 17}},
		{{X: 1, Z: -1}, {X: -1, Z: 1}},
	}
	for _, p := range pairs {
		assert.NotEqual(t, g.chunkSeed(p[0]), g.chunkSeed(p[1]), "%s vs %s", p[0], p[1])

		a, err := g.Generate(p[0], testDims)
		require.NoError(t, err)
		b, err := g.Generate(p[1], testDims)
		require.NoError(t, err)
		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint(), "%s vs %s", p[0], p[1])
	}

	// другой глобальный сид меняет сид чанка
	assert.NotEqual(t, g.chunkSeed(vec.Vec3{}), NewRandomGenerator(1235, 0.5).chunkSeed(vec.Vec3{}))
}

func TestRandomGeneratorFillExtremes(t *testing.T) {
	full, err := NewRandomGenerator(1, 1).Generate(vec.Vec3{}, testDims)
	require.NoError(t, err)
	assert.Equal(t, testDims.Volume(), full.SolidCount())

	empty, err := NewRandomGenerator(1, 0).Generate(vec.Vec3{}, testDims)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.SolidCount())
}

func TestNoiseGeneratorSeamless(t *testing.T) {
	g := NewNoiseGenerator(7, 0.17, 0.5, 2, 2, 3)
	dims := Dimensions{Width: 8, Height: 4, Depth: 8}

	for _, coords := range []vec.Vec3{{}, {X: 1}, {Z: -1}, {X: 3, Y: 1, Z: 2}} {
		c, err := g.Generate(coords, dims)
		require.NoError(t, err)
		origin := c.Origin()
		c.voxels.ForEach(func(local vec.Vec3, v Voxel) {
			// значение зависит только от мировой координаты
			assert.Equal(t, g.SampleSolid(origin.Add(local)), v.Solid)
		})
	}
}

func TestNewGeneratorFromConfig(t *testing.T) {
	cfg := config.Default().Generator
	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &RandomGenerator{}, g)

	cfg.Mode = config.GeneratorNoise
	g, err = NewGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &NoiseGenerator{}, g)

	cfg.Mode = "unknown"
	_, err = NewGenerator(cfg)
	assert.Error(t, err)
}

func TestSetVoxelMarksDirty(t *testing.T) {
	w, err := GenerateWorld(SingleChunk(vec.Vec3{}), testDims, NewRandomGenerator(1, 0))
	require.NoError(t, err)

	c, _ := w.Get(vec.Vec3{})
	snap := c.Snapshot()
	_, clean, err := w.InstallMesh(vec.Vec3{}, render.Handle{1}, snap.Version)
	require.NoError(t, err)
	require.True(t, clean)
	require.False(t, c.IsDirty())

	require.NoError(t, w.SetVoxel(vec.Vec3{}, vec.Vec3{X: 1, Y: 1, Z: 1}, SolidVoxel))
	assert.True(t, c.IsDirty())
	assert.Equal(t, 1, c.SolidCount())

	err = w.SetVoxel(vec.Vec3{}, vec.Vec3{X: 99}, SolidVoxel)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	err = w.SetVoxel(vec.Vec3{X: 5}, vec.Vec3{}, SolidVoxel)
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

func TestSetVoxelSameValueKeepsClean(t *testing.T) {
	c, err := NewRandomGenerator(1, 0).Generate(vec.Vec3{}, testDims)
	require.NoError(t, err)
	_, clean := c.installMesh(render.Handle{1}, c.Version())
	require.True(t, clean)

	require.NoError(t, c.SetVoxel(vec.Vec3{}, Air))
	assert.False(t, c.IsDirty())
}

func TestInstallMeshStaleSnapshotStaysDirty(t *testing.T) {
	c, err := NewRandomGenerator(1, 0).Generate(vec.Vec3{}, testDims)
	require.NoError(t, err)

	snap := c.Snapshot()
	require.NoError(t, c.SetVoxel(vec.Vec3{}, SolidVoxel))

	old, clean := c.installMesh(render.Handle{2}, snap.Version)
	assert.True(t, old.IsZero())
	assert.False(t, clean)
	assert.True(t, c.IsDirty())
}

func TestRemoveReleasesMesh(t *testing.T) {
	ctx := context.Background()
	pool := render.NewMemoryPool()
	before := pool.Live()

	w, err := GenerateWorld(SingleChunk(vec.Vec3{}), testDims, NewRandomGenerator(1, 0.5))
	require.NoError(t, err)

	c, _ := w.Get(vec.Vec3{})
	h, err := pool.Install(ctx, stubMesh{})
	require.NoError(t, err)
	_, _, err = w.InstallMesh(vec.Vec3{}, h, c.Version())
	require.NoError(t, err)
	require.Equal(t, before+1, pool.Live())

	require.NoError(t, w.Remove(ctx, vec.Vec3{}, pool))
	assert.Equal(t, before, pool.Live())
	assert.Equal(t, 0, w.Len())

	assert.ErrorIs(t, w.Remove(ctx, vec.Vec3{}, pool), ErrChunkNotFound)
}

type failingReleaser struct{}

func (failingReleaser) Release(context.Context, render.Handle) error {
	return errors.New("gpu lost")
}

func TestRemoveKeepsChunkWhenReleaseFails(t *testing.T) {
	w, err := GenerateWorld(SingleChunk(vec.Vec3{}), testDims, NewRandomGenerator(1, 0.5))
	require.NoError(t, err)
	c, _ := w.Get(vec.Vec3{})
	_, _, err = w.InstallMesh(vec.Vec3{}, render.Handle{3}, c.Version())
	require.NoError(t, err)

	assert.Error(t, w.Remove(context.Background(), vec.Vec3{}, failingReleaser{}))
	assert.Equal(t, 1, w.Len())
}

func TestSummaries(t *testing.T) {
	extent := Extent{Min: vec.Vec3{}, Max: vec.Vec3{X: 1}}
	w, err := GenerateWorld(extent, testDims, NewRandomGenerator(1, 1))
	require.NoError(t, err)

	sums := w.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, vec.Vec3{X: 1}, sums[1].Coords)
	assert.Equal(t, vec.Vec3{X: testDims.Width}, sums[1].Origin)
	assert.Equal(t, testDims.Volume(), sums[1].Solid)
	assert.True(t, sums[1].Dirty)
	assert.False(t, sums[1].HasMesh)
}
