package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации генератора.
// Задаётся при старте процесса и далее не меняется.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	World     WorldConfig     `yaml:"world"`
	Generator GeneratorConfig `yaml:"generator"`
	Mesher    MesherConfig    `yaml:"mesher"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Deltas    DeltaConfig     `yaml:"deltas"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChunkConfig размеры чанка в вокселях
type ChunkConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Depth  int `yaml:"depth"`
}

// Coord координата чанка в YAML
type Coord struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// WorldConfig включающий диапазон координат чанков, генерируемых при старте
type WorldConfig struct {
	Min Coord `yaml:"min"`
	Max Coord `yaml:"max"`
}

type GeneratorConfig struct {
	Mode      string  `yaml:"mode"` // random | noise
	Seed      *int64  `yaml:"seed"` // nil: не задан, 0 допустимый сид
	Fill      float64 `yaml:"fill"` // вероятность твёрдого вокселя в режиме random
	Scale     float64 `yaml:"scale"`
	Threshold float64 `yaml:"threshold"`
	Alpha     float64 `yaml:"alpha"`
	Beta      float64 `yaml:"beta"`
	Octaves   int32   `yaml:"octaves"`
}

type MesherConfig struct {
	Mode string `yaml:"mode"` // naive | culled | greedy
}

type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Workers      int           `yaml:"workers"`
	MaxPerTick   int           `yaml:"max_per_tick"` // 0: без ограничения
}

type CacheConfig struct {
	Backend  string        `yaml:"backend"` // none | memory | badger | redis
	Path     string        `yaml:"path"`    // каталог badger; для redis: опциональный cold storage
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
	MaxBytes int64         `yaml:"max_bytes"`
	Compress bool          `yaml:"compress"` // zstd поверх выбранного backend
}

// DeltaConfig хранилище правок ландшафта. Генерация детерминирована по сиду,
// поэтому для восстановления мира достаточно хранить только правки.
type DeltaConfig struct {
	Backend  string `yaml:"backend"` // none | memory | badger | redis | mysql | mongo
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"` // mysql: user:pass@tcp(host:port)/db; redis: host:port; mongo: mongodb://...
	Database string `yaml:"database"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто: in-memory шина
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

const (
	DefaultChunkWidth  = 32
	DefaultChunkHeight = 1
	DefaultChunkDepth  = 32
)

// Допустимые режимы
const (
	GeneratorRandom = "random"
	GeneratorNoise  = "noise"

	MesherNaive  = "naive"
	MesherCulled = "culled"
	MesherGreedy = "greedy"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheRedis  = "redis"

	DeltasNone   = "none"
	DeltasMemory = "memory"
	DeltasBadger = "badger"
	DeltasRedis  = "redis"
	DeltasMySQL  = "mysql"
	DeltasMongo  = "mongo"
)

// Default возвращает конфигурацию по умолчанию: один чанк 32x1x32 в (0,0,0)
func Default() *Config {
	return &Config{
		Chunk: ChunkConfig{Width: DefaultChunkWidth, Height: DefaultChunkHeight, Depth: DefaultChunkDepth},
		Generator: GeneratorConfig{
			Mode:      GeneratorRandom,
			Fill:      0.5,
			Scale:     0.05,
			Threshold: 0.5,
			Alpha:     2.0,
			Beta:      2.0,
			Octaves:   3,
		},
		Mesher: MesherConfig{Mode: MesherNaive},
		Scheduler: SchedulerConfig{
			TickInterval: time.Second / 60,
			Workers:      1,
		},
		Cache:    CacheConfig{Backend: CacheNone, TTL: 10 * time.Minute},
		Deltas:   DeltaConfig{Backend: DeltasMemory, Database: "voxelgen"},
		EventBus: EventBusConfig{Stream: "VOXEL", Retention: 24, Buffer: 1024},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// GetSeed возвращает сид с поддержкой fallback значений: config -> env -> default
func (g *GeneratorConfig) GetSeed() int64 {
	if g.Seed != nil {
		return *g.Seed
	}
	if envVal := os.Getenv("VOXEL_SEED"); envVal != "" {
		if seed, err := strconv.ParseInt(envVal, 10, 64); err == nil {
			return seed
		}
	}
	return 1
}

// SetSeed задаёт сид явно, включая 0
func (g *GeneratorConfig) SetSeed(seed int64) {
	g.Seed = &seed
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "VOXEL_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV VOXEL_CONFIG; если и он пуст: возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	cfg.Generator.SetSeed(cfg.Generator.GetSeed())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig возвращается при некорректной конфигурации
var ErrInvalidConfig = errors.New("invalid config")

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Chunk.Width <= 0 || c.Chunk.Height <= 0 || c.Chunk.Depth <= 0 {
		return fmt.Errorf("%w: размеры чанка должны быть положительными, получено %dx%dx%d",
			ErrInvalidConfig, c.Chunk.Width, c.Chunk.Height, c.Chunk.Depth)
	}
	if c.World.Min.X > c.World.Max.X || c.World.Min.Y > c.World.Max.Y || c.World.Min.Z > c.World.Max.Z {
		return fmt.Errorf("%w: world.min больше world.max", ErrInvalidConfig)
	}

	switch c.Generator.Mode {
	case GeneratorRandom:
		if c.Generator.Fill < 0 || c.Generator.Fill > 1 {
			return fmt.Errorf("%w: generator.fill вне диапазона [0,1]: %v", ErrInvalidConfig, c.Generator.Fill)
		}
	case GeneratorNoise:
		if c.Generator.Scale <= 0 {
			return fmt.Errorf("%w: generator.scale должен быть положительным", ErrInvalidConfig)
		}
		if c.Generator.Octaves <= 0 {
			return fmt.Errorf("%w: generator.octaves должен быть положительным", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: неизвестный generator.mode %q", ErrInvalidConfig, c.Generator.Mode)
	}

	switch c.Mesher.Mode {
	case MesherNaive, MesherCulled, MesherGreedy:
	default:
		return fmt.Errorf("%w: неизвестный mesher.mode %q", ErrInvalidConfig, c.Mesher.Mode)
	}

	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("%w: scheduler.tick_interval должен быть положительным", ErrInvalidConfig)
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("%w: scheduler.workers должен быть >= 1", ErrInvalidConfig)
	}
	if c.Scheduler.MaxPerTick < 0 {
		return fmt.Errorf("%w: scheduler.max_per_tick не может быть отрицательным", ErrInvalidConfig)
	}

	switch c.Cache.Backend {
	case "", CacheNone, CacheMemory:
	case CacheBadger:
		if c.Cache.Path == "" {
			return fmt.Errorf("%w: cache.path обязателен для badger", ErrInvalidConfig)
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache.redis_url обязателен для redis", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: неизвестный cache.backend %q", ErrInvalidConfig, c.Cache.Backend)
	}

	switch c.Deltas.Backend {
	case "", DeltasNone, DeltasMemory:
	case DeltasBadger:
		if c.Deltas.Path == "" {
			return fmt.Errorf("%w: deltas.path обязателен для badger", ErrInvalidConfig)
		}
	case DeltasRedis, DeltasMySQL, DeltasMongo:
		if c.Deltas.DSN == "" {
			return fmt.Errorf("%w: deltas.dsn обязателен для %s", ErrInvalidConfig, c.Deltas.Backend)
		}
	default:
		return fmt.Errorf("%w: неизвестный deltas.backend %q", ErrInvalidConfig, c.Deltas.Backend)
	}
	return nil
}
