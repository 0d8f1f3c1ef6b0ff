package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("VOXEL_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Chunk.Width)
	assert.Equal(t, 1, cfg.Chunk.Height)
	assert.Equal(t, 32, cfg.Chunk.Depth)
	assert.Equal(t, Coord{}, cfg.World.Min)
	assert.Equal(t, Coord{}, cfg.World.Max)
	assert.Equal(t, GeneratorRandom, cfg.Generator.Mode)
	assert.Equal(t, MesherNaive, cfg.Mesher.Mode)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
chunk:
  width: 16
  height: 16
  depth: 16
world:
  min: {x: -1, y: 0, z: -1}
  max: {x: 1, y: 0, z: 1}
generator:
  mode: noise
  seed: 42
mesher:
  mode: greedy
scheduler:
  tick_interval: 50ms
  workers: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Chunk.Height)
	assert.Equal(t, Coord{X: -1, Y: 0, Z: -1}, cfg.World.Min)
	assert.Equal(t, int64(42), cfg.Generator.GetSeed())
	assert.Equal(t, GeneratorNoise, cfg.Generator.Mode)
	assert.Equal(t, MesherGreedy, cfg.Mesher.Mode)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	// незаданные поля сохраняют значения по умолчанию
	assert.Equal(t, 0.05, cfg.Generator.Scale)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "chunk: {width: 8, height: 8, depth: 8}\n")
	t.Setenv("VOXEL_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Chunk.Width)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero width":      func(c *Config) { c.Chunk.Width = 0 },
		"inverted extent": func(c *Config) { c.World.Min.X = 2 },
		"unknown gen":     func(c *Config) { c.Generator.Mode = "perlin-ish" },
		"fill too big":    func(c *Config) { c.Generator.Fill = 1.5 },
		"unknown mesher":  func(c *Config) { c.Mesher.Mode = "marching" },
		"no workers":      func(c *Config) { c.Scheduler.Workers = 0 },
		"badger no path":  func(c *Config) { c.Cache.Backend = CacheBadger },
		"redis no url":    func(c *Config) { c.Cache.Backend = CacheRedis },
		"mysql no dsn":    func(c *Config) { c.Deltas.Backend = DeltasMySQL },
		"deltas badger":   func(c *Config) { c.Deltas.Backend = DeltasBadger },
		"unknown deltas":  func(c *Config) { c.Deltas.Backend = "s3" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestSeedEnvFallback(t *testing.T) {
	t.Setenv("VOXEL_SEED", "777")
	g := GeneratorConfig{}
	assert.Equal(t, int64(777), g.GetSeed())

	g.SetSeed(5)
	assert.Equal(t, int64(5), g.GetSeed())

	g.SetSeed(0)
	assert.Equal(t, int64(0), g.GetSeed())
}

func TestLoadKeepsExplicitZeroSeed(t *testing.T) {
	t.Setenv("VOXEL_SEED", "777")

	cfg, err := Load(writeConfig(t, "generator: {seed: 0}\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Generator.Seed)
	assert.Equal(t, int64(0), cfg.Generator.GetSeed())

	cfg, err = Load(writeConfig(t, "generator: {mode: random}\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(777), cfg.Generator.GetSeed())
}

func TestPortFallback(t *testing.T) {
	t.Setenv("VOXEL_REST_PORT", "9000")
	s := ServerConfig{}
	assert.Equal(t, 9000, s.GetRESTPort())
	assert.Equal(t, 2112, s.GetMetricsPort())
}
