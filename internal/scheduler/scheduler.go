// Package scheduler пересобирает меши dirty чанков раз в тик.
//
// Сборка идёт по снимкам вокселей и может выполняться параллельно;
// установка в пул рендера и подмена handle в чанке всегда последовательны
// и идут в порядке координат, поэтому результат тика не зависит от числа воркеров.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxelgen/internal/cache"
	"github.com/annel0/voxelgen/internal/eventbus"
	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/mesh"
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Options параметры планировщика
type Options struct {
	Workers    int           // параллельные сборки; < 1 трактуется как 1
	MaxPerTick int           // 0: без ограничения
	CacheTTL   time.Duration // TTL записей кеша мешей
	Source     string        // источник событий на шине
}

// Deps зависимости планировщика. Cache, Bus, Registerer и Logger необязательны.
type Deps struct {
	World      *world.WorldIndex
	Builder    mesh.Builder
	Pool       render.Pool
	Cache      cache.CacheRepo
	Bus        eventbus.EventBus
	Registerer prometheus.Registerer
	Logger     *logging.Logger
}

// Report итог одного тика
type Report struct {
	Tick      uint64        `json:"tick"`
	Skipped   bool          `json:"skipped"`
	Dirty     int           `json:"dirty"`
	Rebuilt   []vec.Vec3    `json:"rebuilt"`
	Failed    []vec.Vec3    `json:"failed,omitempty"`
	Stale     []vec.Vec3    `json:"stale,omitempty"` // собраны из устаревшего снимка, остаются dirty
	Deferred  int           `json:"deferred"`        // отложены из-за max_per_tick
	CacheHits int           `json:"cache_hits"`
	Missing   int           `json:"missing"`
	Took      time.Duration `json:"took"`
}

// Scheduler пересборщик мешей. Tick не реентерабелен: вызывается из одного цикла.
type Scheduler struct {
	world   *world.WorldIndex
	builder mesh.Builder
	pool    render.Pool
	cache   cache.CacheRepo
	bus     eventbus.EventBus
	opts    Options
	metrics *Metrics
	log     *logging.Logger
	ticks   uint64
}

var ErrMissingDependency = errors.New("scheduler: missing dependency")

// New создаёт планировщик
func New(deps Deps, opts Options) (*Scheduler, error) {
	if deps.World == nil || deps.Builder == nil || deps.Pool == nil {
		return nil, fmt.Errorf("%w: world, builder and pool are required", ErrMissingDependency)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxPerTick < 0 {
		opts.MaxPerTick = 0
	}
	if opts.Source == "" {
		opts.Source = "voxelgen"
	}
	reg := deps.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	log := deps.Logger
	if log == nil {
		log = logging.GetSchedulerLogger()
	}

	return &Scheduler{
		world:   deps.World,
		builder: deps.Builder,
		pool:    deps.Pool,
		cache:   deps.Cache,
		bus:     deps.Bus,
		opts:    opts,
		metrics: NewMetrics(reg),
		log:     log,
	}, nil
}

// Ticks количество выполненных тиков, включая пропущенные
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Mode режим используемого мешера
func (s *Scheduler) Mode() string { return s.builder.Mode() }

// built результат сборки одного чанка
type built struct {
	coords  vec.Vec3
	version uint64
	mesh    *mesh.Mesh
	missing int
	cached  bool
	took    time.Duration
}

// Tick пересобирает dirty чанки.
// Если цель рендера не готова, тик пропускается целиком: dirty флаги сохраняются до следующего тика.
func (s *Scheduler) Tick(ctx context.Context) (Report, error) {
	start := time.Now()
	s.ticks++
	rep := Report{Tick: s.ticks}

	if !s.pool.Ready() {
		s.log.Warn("Render target not ready, skipping rebuild tick %d", s.ticks)
		s.metrics.skipped.Inc()
		rep.Skipped = true
		return rep, nil
	}

	dirty := s.world.DirtyCoords()
	rep.Dirty = len(dirty)
	s.metrics.dirty.Set(float64(len(dirty)))
	if len(dirty) == 0 {
		return rep, nil
	}
	if s.opts.MaxPerTick > 0 && len(dirty) > s.opts.MaxPerTick {
		rep.Deferred = len(dirty) - s.opts.MaxPerTick
		dirty = dirty[:s.opts.MaxPerTick]
	}

	snaps := make([]world.Snapshot, 0, len(dirty))
	for _, coords := range dirty {
		if c, ok := s.world.Get(coords); ok {
			snaps = append(snaps, c.Snapshot())
		}
	}

	results := make([]built, len(snaps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range snaps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.build(gctx, snaps[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("rebuild tick %d: %w", s.ticks, err)
	}

	for _, b := range results {
		if err := ctx.Err(); err != nil {
			rep.Took = time.Since(start)
			return rep, err
		}
		rep.Missing += b.missing
		if b.cached {
			rep.CacheHits++
		}
		clean, err := s.install(ctx, b)
		if err != nil {
			s.log.Error("Chunk %s: mesh install failed, chunk stays dirty: %v", b.coords, err)
			s.metrics.failures.Inc()
			rep.Failed = append(rep.Failed, b.coords)
			continue
		}
		rep.Rebuilt = append(rep.Rebuilt, b.coords)
		if !clean {
			rep.Stale = append(rep.Stale, b.coords)
		}
	}

	rep.Took = time.Since(start)
	if len(rep.Rebuilt) > 0 || len(rep.Failed) > 0 {
		s.log.Debug("Tick %d: rebuilt %d, failed %d, deferred %d, cache hits %d in %s",
			rep.Tick, len(rep.Rebuilt), len(rep.Failed), rep.Deferred, rep.CacheHits, rep.Took)
	}
	return rep, nil
}

// build собирает меш снимка или берёт его из кеша
func (s *Scheduler) build(ctx context.Context, snap world.Snapshot) built {
	start := time.Now()
	b := built{coords: snap.Coords, version: snap.Version}

	var key string
	if s.cache != nil {
		key = cache.MeshKey(s.builder.Mode(), snap.Coords.X, snap.Coords.Y, snap.Coords.Z, snap.Voxels.Fingerprint())
		data, err := s.cache.Get(ctx, key)
		if err == nil {
			m, derr := mesh.DecodeMesh(data)
			if derr == nil {
				b.mesh, b.cached = m, true
				b.took = time.Since(start)
				s.metrics.cacheHits.Inc()
				return b
			}
			s.log.Warn("Chunk %s: cached mesh is corrupt, rebuilding: %v", snap.Coords, derr)
		} else if !cache.IsCacheMiss(err) {
			s.log.Warn("Chunk %s: mesh cache lookup failed: %v", snap.Coords, err)
		}
	}

	res := s.builder.Build(snap.Voxels, snap.Origin)
	b.mesh = res.Mesh
	b.missing = len(res.Missing)
	b.took = time.Since(start)
	s.metrics.buildDuration.Observe(b.took.Seconds())
	s.metrics.missing.Add(float64(b.missing))

	// Меш с пропусками не кешируем: при следующей сборке воксели могут найтись
	if s.cache != nil && b.missing == 0 {
		if err := s.cache.Set(ctx, key, b.mesh.Encode(), s.opts.CacheTTL); err != nil {
			s.log.Warn("Chunk %s: mesh cache store failed: %v", snap.Coords, err)
		}
	}
	return b
}

// install устанавливает меш в пул, подменяет handle в чанке и освобождает старый.
// При ошибке пула чанк остаётся dirty со старым мешем.
func (s *Scheduler) install(ctx context.Context, b built) (clean bool, err error) {
	h, err := s.pool.Install(ctx, b.mesh)
	if err != nil {
		return false, err
	}

	old, clean, err := s.world.InstallMesh(b.coords, h, b.version)
	if err != nil {
		if rerr := s.pool.Release(ctx, h); rerr != nil {
			s.log.Warn("Chunk %s: release of orphaned mesh %s failed: %v", b.coords, h, rerr)
		}
		return false, err
	}
	if !old.IsZero() {
		if rerr := s.pool.Release(ctx, old); rerr != nil {
			s.log.Warn("Chunk %s: release of previous mesh %s failed: %v", b.coords, old, rerr)
		}
	}

	s.metrics.rebuilds.Inc()
	logging.LogChunkRebuild(s.log, b.coords.X, b.coords.Y, b.coords.Z, b.mesh.PrimitiveCount(), b.took)
	s.publish(ctx, b, h)
	return clean, nil
}

func (s *Scheduler) publish(ctx context.Context, b built, h render.Handle) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(s.opts.Source, eventbus.EventChunkRebuilt, 3, eventbus.ChunkRebuilt{
		Coords:     b.coords,
		Handle:     h.String(),
		Version:    b.version,
		Mode:       s.builder.Mode(),
		Vertices:   b.mesh.VertexCount(),
		Primitives: b.mesh.PrimitiveCount(),
		Missing:    b.missing,
		Cached:     b.cached,
		TookMs:     float64(b.took.Microseconds()) / 1000,
	})
	if err == nil {
		err = s.bus.Publish(ctx, ev)
	}
	if err != nil {
		s.log.Warn("Chunk %s: publish %s failed: %v", b.coords, eventbus.EventChunkRebuilt, err)
	}
}
