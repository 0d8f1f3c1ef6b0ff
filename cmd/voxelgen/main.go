package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxelgen/internal/api"
	"github.com/annel0/voxelgen/internal/config"
	"github.com/annel0/voxelgen/internal/engine"
	"github.com/annel0/voxelgen/internal/eventbus"
	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/observability"
	"github.com/annel0/voxelgen/internal/render"
	"github.com/annel0/voxelgen/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $VOXEL_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("❌ Ошибка уровня логирования: %v", err)
	}
	if err := logging.InitDefaultLogger("voxelgen", logging.Options{Level: level, Dir: cfg.Logging.Dir}); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.CloseComponents()

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logging.Info("🧱 Запуск voxelgen %s: чанк %dx%dx%d, мир %v..%v, генератор=%s, мешер=%s",
		version, cfg.Chunk.Width, cfg.Chunk.Height, cfg.Chunk.Depth,
		cfg.World.Min, cfg.World.Max, cfg.Generator.Mode, cfg.Mesher.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, "voxelgen", version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logging.Warn("Ошибка остановки OpenTelemetry: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ХРАНИЛИЩА ===
	meshCache, err := storage.OpenMeshCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("mesh cache: %w", err)
	}
	if meshCache != nil {
		defer meshCache.Close()
		logging.Info("💾 Кеш мешей: %s (compress=%v)", cfg.Cache.Backend, cfg.Cache.Compress)
	}

	deltas, err := storage.OpenDeltaRepo(ctx, cfg.Deltas)
	if err != nil {
		return fmt.Errorf("delta store: %w", err)
	}
	if deltas != nil {
		defer deltas.Close()
		logging.Info("💾 Хранилище правок: %s", cfg.Deltas.Backend)
	}

	// === ШИНА СОБЫТИЙ ===
	bus, err := openBus(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer bus.Close()

	exporter := eventbus.NewMetricsExporter(bus, reg)
	exporter.Start(5 * time.Second)
	defer exporter.Stop()

	if _, err := eventbus.StartLoggingListener(ctx, bus, logging.GetComponentLogger("events")); err != nil {
		logging.Warn("Логирование событий недоступно: %v", err)
	}

	// === ДВИЖОК ===
	pool := render.NewMemoryPool()
	eng, err := engine.New(cfg, engine.Deps{
		Pool:       pool,
		Cache:      meshCache,
		Bus:        bus,
		Deltas:     deltas,
		Registerer: reg,
	})
	if err != nil {
		return err
	}
	if err := eng.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	// === HTTP ===
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	server, err := api.NewRestServer(api.Config{Port: restPort, Engine: eng, Registry: reg})
	if err != nil {
		return err
	}
	errCh := make(chan error, 2)
	go func() { errCh <- server.Start() }()

	var metricsSrv *http.Server
	if port := cfg.Server.GetMetricsPort(); port != cfg.Server.GetRESTPort() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logging.Info("📈 Prometheus: http://localhost:%d/metrics", port)
	}

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)

	// === ТИКОВЫЙ ЦИКЛ ===
	go func() { errCh <- eng.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал завершения, остановка...")
	case runErr = <-errCh:
		if runErr != nil {
			logging.Error("❌ Сервис завершился с ошибкой: %v", runErr)
		}
		stop()
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	st := pool.Stats()
	logging.Info("👋 Остановлено после %d тиков: установлено %d мешей, освобождено %d, живых %d",
		eng.Ticks(), st.Installs, st.Releases, st.Live)
	return runErr
}

// openBus выбирает JetStream, если задан URL, иначе in-memory шину
func openBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		return eventbus.NewMemoryBus(cfg.Buffer), nil
	}
	return eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
}
