package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Server.APIKeys)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "rtree", cfg.Spatial.Backend)
	assert.Equal(t, "data/territories", cfg.Spatial.DataDir)
	assert.Equal(t, "data/layers.yaml", cfg.Spatial.Manifest)
	assert.False(t, cfg.Engine.SkipWater)
	assert.Equal(t, 5, cfg.Engine.BatchConcurrency)
	assert.Equal(t, 100, cfg.Geocode.BatchChunkSize)
	assert.InDelta(t, 10.0, cfg.Geocode.RatePerSecond, 0.001)
	assert.Equal(t, "data/state_gis_endpoints.json", cfg.StateGIS.RegistryPath)
	assert.Equal(t, 12, cfg.StateGIS.TimeoutSecs)
	assert.Equal(t, "data/result_cache.db", cfg.Cache.Path)
	assert.Equal(t, 90, cfg.Cache.TTLDays)
	assert.Equal(t, 32, cfg.Batch.LookupWorkers)
	assert.Equal(t, 5, cfg.Batch.GeocodeWorkers)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
server:
  port: 9090
spatial:
  backend: postgis
  postgis_url: postgres://localhost/territories
engine:
  skip_water: true
log:
  level: debug
  format: console
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgis", cfg.Spatial.Backend)
	assert.Equal(t, "postgres://localhost/territories", cfg.Spatial.PostGISURL)
	assert.True(t, cfg.Engine.SkipWater)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 90, cfg.Cache.TTLDays)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
log:
  level: debug
engine:
  skip_water: false
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("UTILITY_LOG_LEVEL", "warn")
	t.Setenv("UTILITY_ENGINE_SKIP_WATER", "true")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Engine.SkipWater)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("UTILITY_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadBareEnvAliases(t *testing.T) {
	chTempDir(t)

	t.Setenv("GOOGLE_API_KEY", "goog-key")
	t.Setenv("SKIP_WATER", "true")
	t.Setenv("POSTGIS_URL", "postgres://localhost/gis")
	t.Setenv("DATABASE_URL", "postgres://localhost/fcc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "goog-key", cfg.Geocode.GoogleAPIKey)
	assert.True(t, cfg.Engine.SkipWater)
	assert.Equal(t, "postgres://localhost/gis", cfg.Spatial.PostGISURL)
	assert.Equal(t, "postgres://localhost/fcc", cfg.Internet.DatabaseURL)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Engine.BatchConcurrency = 5
	cfg.Geocode.RatePerSecond = 10
	cfg.Cache.TTLDays = 90
	cfg.Batch.LookupWorkers = 32
	cfg.Batch.ChunkSize = 100
	cfg.Spatial.Backend = "rtree"
	return cfg
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateBatch_WorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.LookupWorkers = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.lookup_workers must be >= 1")

	cfg.Batch.LookupWorkers = 32
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Engine.BatchConcurrency = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "engine.batch_concurrency must be between 1 and 50")

	cfg.Engine.BatchConcurrency = 51
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Engine.BatchConcurrency = 50
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateImport_PostGIS(t *testing.T) {
	cfg := validDefaults()
	cfg.Spatial.Backend = "postgis"

	err := cfg.Validate("import")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "spatial.postgis_url is required")

	cfg.Spatial.PostGISURL = "postgres://localhost/gis"
	assert.NoError(t, cfg.Validate("import"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
