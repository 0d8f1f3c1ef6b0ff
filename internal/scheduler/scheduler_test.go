package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/annel0/voxelgen/internal/cache"
	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/eventbus"
	"github.com/annel0/voxelgen/internal/mesh"
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDims = world.Dimensions{Width: 4, Height: 2, Depth: 4}

func testWorld(t *testing.T, max vec.Vec3) *world.WorldIndex {
	t.Helper()
	w, err := world.GenerateWorld(world.Extent{Min: vec.Vec3{}, Max: max}, testDims, world.NewRandomGenerator(42, 0.5))
	require.NoError(t, err)
	return w
}

func newScheduler(t *testing.T, w *world.WorldIndex, pool render.Pool, mode string, opts Options, mut ...func(*Deps)) *Scheduler {
	t.Helper()
	b, err := mesh.NewBuilder(mode)
	require.NoError(t, err)
	deps := Deps{World: w, Builder: b, Pool: pool}
	for _, m := range mut {
		m(&deps)
	}
	s, err := New(deps, opts)
	require.NoError(t, err)
	return s
}

// flakyPool отказывает в установке, пока failing == true
type flakyPool struct {
	*render.MemoryPool
	failing bool
}

var errPoolFull = errors.New("gpu pool exhausted")

func (p *flakyPool) Install(ctx context.Context, m render.Mesh) (render.Handle, error) {
	if p.failing {
		return render.NilHandle, errPoolFull
	}
	return p.MemoryPool.Install(ctx, m)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.ErrorIs(t, err, ErrMissingDependency)
}

func TestTickRebuildsAllDirtyChunks(t *testing.T) {
	w := testWorld(t, vec.Vec3{X: 2, Y: 0, Z: 1})
	pool := render.NewMemoryPool()
	s := newScheduler(t, w, pool, config.MesherCulled, Options{})

	rep, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, rep.Dirty)
	assert.Equal(t, w.Coords(), rep.Rebuilt)
	assert.Empty(t, w.DirtyCoords())
	assert.Equal(t, 6, pool.Live())
	for _, coords := range w.Coords() {
		c, _ := w.Get(coords)
		h, ok := c.MeshHandle()
		require.True(t, ok)
		_, live := pool.Get(h)
		assert.True(t, live)
	}
	assert.Equal(t, 6.0, testutil.ToFloat64(s.metrics.rebuilds))
}

func TestTickIsIdempotentWithoutEdits(t *testing.T) {
	w := testWorld(t, vec.Vec3{X: 1})
	pool := render.NewMemoryPool()
	s := newScheduler(t, w, pool, config.MesherNaive, Options{})
	ctx := context.Background()

	_, err := s.Tick(ctx)
	require.NoError(t, err)
	before := pool.Stats()

	rep, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Empty(t, rep.Rebuilt)
	assert.Equal(t, before, pool.Stats())
	assert.Equal(t, uint64(2), s.Ticks())
}

func TestTickSkipsWhenRenderNotReady(t *testing.T) {
	w := testWorld(t, vec.Vec3{})
	pool := render.NewMemoryPool()
	pool.SetReady(false)
	s := newScheduler(t, w, pool, config.MesherNaive, Options{})
	ctx := context.Background()

	rep, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Skipped)
	assert.Len(t, w.DirtyCoords(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.skipped))

	pool.SetReady(true)
	rep, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Skipped)
	assert.Len(t, rep.Rebuilt, 1)
	assert.Empty(t, w.DirtyCoords())
}

func TestEditRebuildsOnlyThatChunkAndReleasesOldMesh(t *testing.T) {
	w := testWorld(t, vec.Vec3{X: 1, Y: 0, Z: 1})
	pool := render.NewMemoryPool()
	s := newScheduler(t, w, pool, config.MesherGreedy, Options{})
	ctx := context.Background()

	_, err := s.Tick(ctx)
	require.NoError(t, err)
	live := pool.Live()

	target := vec.Vec3{X: 1, Y: 0, Z: 0}
	c, _ := w.Get(target)
	oldHandle, _ := c.MeshHandle()
	cur, _ := c.Voxel(vec.Vec3{X: 1, Y: 1, Z: 1})
	require.NoError(t, w.SetVoxel(target, vec.Vec3{X: 1, Y: 1, Z: 1}, world.Voxel{Solid: !cur.Solid}))
	assert.Equal(t, []vec.Vec3{target}, w.DirtyCoords())

	rep, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{target}, rep.Rebuilt)

	newHandle, ok := c.MeshHandle()
	require.True(t, ok)
	assert.NotEqual(t, oldHandle, newHandle)
	_, stillLive := pool.Get(oldHandle)
	assert.False(t, stillLive)
	assert.Equal(t, live, pool.Live())
}

func TestMaxPerTickDefersRemainder(t *testing.T) {
	w := testWorld(t, vec.Vec3{X: 2, Y: 0, Z: 1})
	pool := render.NewMemoryPool()
	s := newScheduler(t, w, pool, config.MesherCulled, Options{MaxPerTick: 4})
	ctx := context.Background()

	rep, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, w.Coords()[:4], rep.Rebuilt)
	assert.Equal(t, 2, rep.Deferred)
	assert.Equal(t, w.Coords()[4:], w.DirtyCoords())

	rep, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Rebuilt, 2)
	assert.Empty(t, w.DirtyCoords())
}

func TestParallelBuildsMatchSequential(t *testing.T) {
	encode := func(workers int) map[vec.Vec3][]byte {
		w := testWorld(t, vec.Vec3{X: 3, Y: 1, Z: 2})
		pool := render.NewMemoryPool()
		s := newScheduler(t, w, pool, config.MesherGreedy, Options{Workers: workers})
		_, err := s.Tick(context.Background())
		require.NoError(t, err)

		out := make(map[vec.Vec3][]byte)
		for _, coords := range w.Coords() {
			c, _ := w.Get(coords)
			h, _ := c.MeshHandle()
			m, ok := pool.Get(h)
			require.True(t, ok)
			out[coords] = m.Encode()
		}
		return out
	}

	assert.Equal(t, encode(1), encode(8))
}

func TestInstallFailureLeavesChunkDirty(t *testing.T) {
	w := testWorld(t, vec.Vec3{})
	pool := &flakyPool{MemoryPool: render.NewMemoryPool()}
	s := newScheduler(t, w, pool, config.MesherNaive, Options{})
	ctx := context.Background()

	_, err := s.Tick(ctx)
	require.NoError(t, err)
	c, _ := w.Get(vec.Vec3{})
	oldHandle, _ := c.MeshHandle()

	c.MarkDirty()
	pool.failing = true
	rep, err := s.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{{}}, rep.Failed)
	assert.True(t, c.IsDirty())
	h, _ := c.MeshHandle()
	assert.Equal(t, oldHandle, h)
	assert.Equal(t, 1, pool.Live())

	pool.failing = false
	rep, err = s.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, rep.Rebuilt, 1)
	assert.False(t, c.IsDirty())
}

func TestCacheHitSkipsBuild(t *testing.T) {
	mc, err := cache.NewMemoryCache(8 << 20)
	require.NoError(t, err)
	defer mc.Close()
	withCache := func(d *Deps) { d.Cache = mc }
	ctx := context.Background()

	first := testWorld(t, vec.Vec3{X: 1})
	firstPool := render.NewMemoryPool()
	s1 := newScheduler(t, first, firstPool, config.MesherCulled, Options{}, withCache)
	rep, err := s1.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.CacheHits)

	second := testWorld(t, vec.Vec3{X: 1})
	secondPool := render.NewMemoryPool()
	s2 := newScheduler(t, second, secondPool, config.MesherCulled, Options{}, withCache)
	rep, err = s2.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.CacheHits)
	assert.Len(t, rep.Rebuilt, 2)

	for _, coords := range first.Coords() {
		a, _ := first.Get(coords)
		b, _ := second.Get(coords)
		ha, _ := a.MeshHandle()
		hb, _ := b.MeshHandle()
		ma, _ := firstPool.Get(ha)
		mb, _ := secondPool.Get(hb)
		assert.Equal(t, ma.Encode(), mb.Encode())
	}
}

func TestPublishesChunkRebuilt(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	ctx := context.Background()

	var mu sync.Mutex
	var got []eventbus.ChunkRebuilt
	_, err := bus.Subscribe(ctx, eventbus.Filter{Types: []string{eventbus.EventChunkRebuilt}}, func(_ context.Context, ev *eventbus.Envelope) {
		var p eventbus.ChunkRebuilt
		if ev.Decode(&p) == nil {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	w := testWorld(t, vec.Vec3{X: 1})
	s := newScheduler(t, w, render.NewMemoryPool(), config.MesherNaive, Options{Source: "test"},
		func(d *Deps) { d.Bus = bus })
	_, err = s.Tick(ctx)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, vec.Vec3{}, got[0].Coords)
	assert.Equal(t, vec.Vec3{X: 1}, got[1].Coords)
	assert.Equal(t, config.MesherNaive, got[0].Mode)
	assert.NotEmpty(t, got[0].Handle)
}

func TestTickHonoursCancelledContext(t *testing.T) {
	w := testWorld(t, vec.Vec3{X: 1})
	s := newScheduler(t, w, render.NewMemoryPool(), config.MesherNaive, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, w.DirtyCoords(), 2)
}
