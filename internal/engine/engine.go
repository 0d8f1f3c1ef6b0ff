// Package engine связывает мир, планировщик пересборки и внешние хранилища
// в один тиковый цикл. Все изменения чанков выполняются в горутине цикла:
// запросы извне ставятся в очередь и применяются в начале следующего тика.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxelgen/internal/cache"
	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/eventbus"
	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/mesh"
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/scheduler"
	"github.com/annel0/voxelgen/internal/storage"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrNotBootstrapped = errors.New("engine: world not generated")
	ErrQueueFull       = errors.New("engine: command queue full")
)

// DefaultQueueSize ёмкость очереди команд
const DefaultQueueSize = 1024

// Deps внешние зависимости движка. Обязателен только Pool.
type Deps struct {
	Pool       render.Pool
	Cache      cache.CacheRepo
	Bus        eventbus.EventBus
	Deltas     storage.DeltaRepo
	Registerer prometheus.Registerer
	Logger     *logging.Logger
}

// Edit правка одного вокселя
type Edit struct {
	Chunk vec.Vec3    `json:"chunk"`
	Local vec.Vec3    `json:"local"`
	Voxel world.Voxel `json:"voxel"`
}

type commandKind int

const (
	cmdEdit commandKind = iota
	cmdUnload
	cmdLoad
)

type command struct {
	kind   commandKind
	coords vec.Vec3
	edit   Edit
}

// Stats сводка состояния для API
type Stats struct {
	Tick       uint64              `json:"tick"`
	Chunks     int                 `json:"chunks"`
	Dirty      int                 `json:"dirty"`
	Queued     int                 `json:"queued"`
	Mesher     string              `json:"mesher"`
	Generator  string              `json:"generator"`
	LastReport scheduler.Report    `json:"last_report"`
	Pool       *render.PoolStats   `json:"pool,omitempty"`
	Bus        *eventbus.Stats     `json:"bus,omitempty"`
	Cache      *cache.CacheMetrics `json:"cache,omitempty"`
}

// Engine тиковый цикл генератора
type Engine struct {
	cfg     *config.Config
	dims    world.Dimensions
	gen     world.Generator
	builder mesh.Builder
	deps    Deps
	log     *logging.Logger

	world *world.WorldIndex
	sched *scheduler.Scheduler
	cmds  chan command

	tick   atomic.Uint64
	mu     sync.RWMutex
	report scheduler.Report
}

// New проверяет конфигурацию и готовит генератор и мешер. Мир создаётся в Bootstrap.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("engine: render pool is required")
	}
	dims := world.Dimensions{Width: cfg.Chunk.Width, Height: cfg.Chunk.Height, Depth: cfg.Chunk.Depth}

	gen, err := world.NewGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	builder, err := mesh.NewBuilder(cfg.Mesher.Mode)
	if err != nil {
		return nil, err
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.NewRegistry()
	}
	log := deps.Logger
	if log == nil {
		log = logging.GetComponentLogger("engine")
	}

	return &Engine{
		cfg:     cfg,
		dims:    dims,
		gen:     gen,
		builder: builder,
		deps:    deps,
		log:     log,
		cmds:    make(chan command, DefaultQueueSize),
	}, nil
}

// Bootstrap генерирует мир по конфигурации и применяет сохранённые правки.
func (e *Engine) Bootstrap(ctx context.Context) error {
	if e.World() != nil {
		return fmt.Errorf("engine: already bootstrapped")
	}
	w := e.cfg.World
	extent := world.Extent{
		Min: vec.Vec3{X: w.Min.X, Y: w.Min.Y, Z: w.Min.Z},
		Max: vec.Vec3{X: w.Max.X, Y: w.Max.Y, Z: w.Max.Z},
	}

	idx, err := world.GenerateWorld(extent, e.dims, e.gen)
	if err != nil {
		return err
	}

	if e.deps.Deltas != nil {
		deltas, err := e.deps.Deltas.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load voxel deltas: %w", err)
		}
		applied, skipped, err := storage.ApplyDeltas(idx, deltas)
		if err != nil {
			return err
		}
		if skipped > 0 {
			e.log.Warn("Skipped %d stored voxel edits outside the %dx%dx%d chunk grid",
				skipped, e.dims.Width, e.dims.Height, e.dims.Depth)
		}
		if applied > 0 {
			e.log.Info("Applied %d stored voxel edits", applied)
		}
	}

	sched, err := scheduler.New(scheduler.Deps{
		World:      idx,
		Builder:    e.builder,
		Pool:       e.deps.Pool,
		Cache:      e.deps.Cache,
		Bus:        e.deps.Bus,
		Registerer: e.deps.Registerer,
	}, scheduler.Options{
		Workers:    e.cfg.Scheduler.Workers,
		MaxPerTick: e.cfg.Scheduler.MaxPerTick,
		CacheTTL:   e.cfg.Cache.TTL,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.world = idx
	e.sched = sched
	e.mu.Unlock()

	e.log.Info("Engine ready: %d chunks, generator=%s mesher=%s seed=%d",
		idx.Len(), e.cfg.Generator.Mode, e.builder.Mode(), e.cfg.Generator.GetSeed())
	return nil
}

// World индекс чанков; nil до Bootstrap
func (e *Engine) World() *world.WorldIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world
}

// Dimensions размеры чанка
func (e *Engine) Dimensions() world.Dimensions { return e.dims }

// Ticks количество выполненных тиков
func (e *Engine) Ticks() uint64 { return e.tick.Load() }

// SubmitEdit ставит правку вокселя в очередь.
// Координаты проверяются сразу, чтобы вызывающий получил ошибку синхронно.
func (e *Engine) SubmitEdit(ctx context.Context, ed Edit) error {
	w := e.World()
	if w == nil {
		return ErrNotBootstrapped
	}
	if !e.dims.Contains(ed.Local) {
		return fmt.Errorf("%w: %s", world.ErrOutOfBounds, ed.Local)
	}
	if _, ok := w.Get(ed.Chunk); !ok {
		return fmt.Errorf("%w: %s", world.ErrChunkNotFound, ed.Chunk)
	}
	return e.enqueue(ctx, command{kind: cmdEdit, coords: ed.Chunk, edit: ed})
}

// Unload ставит выгрузку чанка в очередь. Меш чанка освобождается в пуле рендера.
func (e *Engine) Unload(ctx context.Context, coords vec.Vec3) error {
	w := e.World()
	if w == nil {
		return ErrNotBootstrapped
	}
	if _, ok := w.Get(coords); !ok {
		return fmt.Errorf("%w: %s", world.ErrChunkNotFound, coords)
	}
	return e.enqueue(ctx, command{kind: cmdUnload, coords: coords})
}

// Load ставит в очередь генерацию чанка вне стартового диапазона.
func (e *Engine) Load(ctx context.Context, coords vec.Vec3) error {
	w := e.World()
	if w == nil {
		return ErrNotBootstrapped
	}
	if _, ok := w.Get(coords); ok {
		return fmt.Errorf("%w: %s", world.ErrDuplicateChunk, coords)
	}
	return e.enqueue(ctx, command{kind: cmdLoad, coords: coords})
}

func (e *Engine) enqueue(ctx context.Context, c command) error {
	select {
	case e.cmds <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Step выполняет один тик: применяет накопленные команды и пересобирает dirty чанки.
func (e *Engine) Step(ctx context.Context) (scheduler.Report, error) {
	e.mu.RLock()
	w, sched := e.world, e.sched
	e.mu.RUnlock()
	if w == nil {
		return scheduler.Report{}, ErrNotBootstrapped
	}

	e.drain(ctx, w)

	rep, err := sched.Tick(ctx)
	e.tick.Add(1)
	e.mu.Lock()
	e.report = rep
	e.mu.Unlock()
	return rep, err
}

// drain применяет все команды, поставленные до начала тика
func (e *Engine) drain(ctx context.Context, w *world.WorldIndex) {
	for {
		select {
		case c := <-e.cmds:
			e.apply(ctx, w, c)
		default:
			return
		}
	}
}

func (e *Engine) apply(ctx context.Context, w *world.WorldIndex, c command) {
	switch c.kind {
	case cmdEdit:
		ed := c.edit
		if err := w.SetVoxel(ed.Chunk, ed.Local, ed.Voxel); err != nil {
			e.log.Warn("Edit %s/%s dropped: %v", ed.Chunk, ed.Local, err)
			return
		}
		if e.deps.Deltas != nil {
			if err := e.deps.Deltas.Save(ctx, storage.VoxelDelta{Chunk: ed.Chunk, Local: ed.Local, Voxel: ed.Voxel}); err != nil {
				e.log.Error("Edit %s/%s applied but not persisted: %v", ed.Chunk, ed.Local, err)
			}
		}
		e.publish(ctx, eventbus.EventVoxelEdited, eventbus.VoxelEdited{Chunk: ed.Chunk, Local: ed.Local, Solid: ed.Voxel.Solid})

	case cmdUnload:
		if err := w.Remove(ctx, c.coords, e.deps.Pool); err != nil {
			e.log.Warn("Unload of chunk %s failed: %v", c.coords, err)
			return
		}
		e.publish(ctx, eventbus.EventChunkUnloaded, eventbus.ChunkUnloaded{Coords: c.coords})

	case cmdLoad:
		if err := w.GenerateChunk(c.coords, e.gen); err != nil {
			e.log.Warn("Load of chunk %s failed: %v", c.coords, err)
			return
		}
		if e.deps.Deltas == nil {
			return
		}
		deltas, err := e.deps.Deltas.LoadChunk(ctx, c.coords)
		if err != nil {
			e.log.Error("Chunk %s loaded without stored edits: %v", c.coords, err)
			return
		}
		_, skipped, err := storage.ApplyDeltas(w, deltas)
		if err != nil {
			e.log.Error("Chunk %s: applying stored edits failed: %v", c.coords, err)
			return
		}
		if skipped > 0 {
			e.log.Warn("Chunk %s: skipped %d stored edits outside the chunk grid", c.coords, skipped)
		}
	}
}

func (e *Engine) publish(ctx context.Context, eventType string, payload any) {
	if e.deps.Bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope("voxelgen", eventType, 3, payload)
	if err == nil {
		err = e.deps.Bus.Publish(ctx, ev)
	}
	if err != nil {
		e.log.Warn("Publish %s failed: %v", eventType, err)
	}
}

// Run выполняет тики с интервалом scheduler.tick_interval до отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	if e.World() == nil {
		return ErrNotBootstrapped
	}
	ticker := time.NewTicker(e.cfg.Scheduler.TickInterval)
	defer ticker.Stop()

	e.log.Info("Tick loop started (interval %s)", e.cfg.Scheduler.TickInterval)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("Tick loop stopped after %d ticks", e.Ticks())
			return nil
		case <-ticker.C:
			if _, err := e.Step(ctx); err != nil && ctx.Err() == nil {
				e.log.Error("Tick %d failed: %v", e.Ticks(), err)
			}
		}
	}
}

// Snapshot сводки по всем чанкам
func (e *Engine) Snapshot() []world.ChunkSummary {
	w := e.World()
	if w == nil {
		return nil
	}
	return w.Summaries()
}

// Chunk сводка по одному чанку
func (e *Engine) Chunk(coords vec.Vec3) (world.ChunkSummary, bool) {
	w := e.World()
	if w == nil {
		return world.ChunkSummary{}, false
	}
	return w.Summary(coords)
}

// Stats сводка состояния движка и подключённых компонентов
func (e *Engine) Stats() Stats {
	s := Stats{
		Tick:      e.Ticks(),
		Queued:    len(e.cmds),
		Mesher:    e.builder.Mode(),
		Generator: e.cfg.Generator.Mode,
	}
	if w := e.World(); w != nil {
		s.Chunks = w.Len()
		s.Dirty = len(w.DirtyCoords())
	}
	e.mu.RLock()
	s.LastReport = e.report
	e.mu.RUnlock()

	if ps, ok := e.deps.Pool.(interface{ Stats() render.PoolStats }); ok {
		st := ps.Stats()
		s.Pool = &st
	}
	if e.deps.Bus != nil {
		bs := e.deps.Bus.Metrics()
		s.Bus = &bs
	}
	if e.deps.Cache != nil {
		s.Cache = e.deps.Cache.GetMetrics()
	}
	return s
}

// MeshBytes закодированный меш чанка, если пул рендера умеет отдавать установленную геометрию.
func (e *Engine) MeshBytes(coords vec.Vec3) ([]byte, bool) {
	w := e.World()
	if w == nil {
		return nil, false
	}
	c, ok := w.Get(coords)
	if !ok {
		return nil, false
	}
	h, ok := c.MeshHandle()
	if !ok {
		return nil, false
	}
	src, ok := e.deps.Pool.(interface {
		Get(render.Handle) (render.Mesh, bool)
	})
	if !ok {
		return nil, false
	}
	m, ok := src.Get(h)
	if !ok {
		return nil, false
	}
	return m.Encode(), true
}
