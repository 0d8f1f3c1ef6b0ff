package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics Prometheus-метрики планировщика пересборки.
//
// Метрики:
// * voxelgen_scheduler_rebuilds_total: установленные меши
// * voxelgen_scheduler_rebuild_failures_total: неудачные установки в пул рендера
// * voxelgen_scheduler_build_duration_seconds: histogram сборки одного меша
// * voxelgen_scheduler_missing_voxels_total: пропущенные при сборке воксели
// * voxelgen_scheduler_dirty_chunks: dirty чанков в начале тика
// * voxelgen_scheduler_skipped_ticks_total: тики, пропущенные из-за неготового рендера
// * voxelgen_scheduler_cache_hits_total: меши, взятые из кеша
type Metrics struct {
	rebuilds      prometheus.Counter
	failures      prometheus.Counter
	buildDuration prometheus.Histogram
	missing       prometheus.Counter
	dirty         prometheus.Gauge
	skipped       prometheus.Counter
	cacheHits     prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns, sub = "voxelgen", "scheduler"
	m := &Metrics{
		rebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "rebuilds_total",
			Help:      "Общее число установленных мешей чанков.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "rebuild_failures_total",
			Help:      "Меши, которые пул рендера не принял; чанк остаётся dirty.",
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "build_duration_seconds",
			Help:      "Длительность сборки меша одного чанка.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
		missing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "missing_voxels_total",
			Help:      "Воксели, пропущенные при сборке из-за отсутствия в хранилище.",
		}),
		dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "dirty_chunks",
			Help:      "Количество dirty чанков в начале последнего тика.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "skipped_ticks_total",
			Help:      "Тики, пропущенные из-за неготовой цели рендера.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "cache_hits_total",
			Help:      "Меши, взятые из кеша без пересборки.",
		}),
	}
	reg.MustRegister(m.rebuilds, m.failures, m.buildDuration, m.missing, m.dirty, m.skipped, m.cacheHits)
	return m
}
