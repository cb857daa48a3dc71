package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Spatial  SpatialConfig  `yaml:"spatial" mapstructure:"spatial"`
	StateGIS StateGISConfig `yaml:"stategis" mapstructure:"stategis"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Internet InternetConfig `yaml:"internet" mapstructure:"internet"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP lookup service.
type ServerConfig struct {
	Port    int      `yaml:"port" mapstructure:"port"`
	APIKeys []string `yaml:"api_keys" mapstructure:"api_keys"`
}

// GeocodeConfig configures the Census-then-Google geocoder chain.
type GeocodeConfig struct {
	GoogleAPIKey   string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	CachePath      string  `yaml:"cache_path" mapstructure:"cache_path"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	BatchChunkSize int     `yaml:"batch_chunk_size" mapstructure:"batch_chunk_size"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EngineConfig configures the resolution pipeline.
type EngineConfig struct {
	SkipWater        bool `yaml:"skip_water" mapstructure:"skip_water"`
	BatchConcurrency int  `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// SpatialConfig configures the territory polygon backend.
type SpatialConfig struct {
	// Backend is "rtree" (in-memory, loads shapefiles at startup) or
	// "postgis".
	Backend    string `yaml:"backend" mapstructure:"backend"`
	DataDir    string `yaml:"data_dir" mapstructure:"data_dir"`
	Manifest   string `yaml:"manifest" mapstructure:"manifest"`
	PostGISURL string `yaml:"postgis_url" mapstructure:"postgis_url"`
}

// StateGISConfig configures the state ArcGIS REST clients.
type StateGISConfig struct {
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheSize    int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// DataConfig locates the bundled reference datasets.
type DataConfig struct {
	Dir            string `yaml:"dir" mapstructure:"dir"`
	CanonicalPath  string `yaml:"canonical_path" mapstructure:"canonical_path"`
	CatalogPath    string `yaml:"catalog_path" mapstructure:"catalog_path"`
	CorrectionsDir string `yaml:"corrections_dir" mapstructure:"corrections_dir"`
}

// CacheConfig configures the persistent result cache.
type CacheConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	TTLDays int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// InternetConfig configures the FCC broadband availability lookup.
type InternetConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures the offline validation runner.
type BatchConfig struct {
	GeocodeWorkers int `yaml:"geocode_workers" mapstructure:"geocode_workers"`
	LookupWorkers  int `yaml:"lookup_workers" mapstructure:"lookup_workers"`
	ChunkSize      int `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("UTILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare env names used by deployments, aliased onto their viper keys.
	_ = v.BindEnv("server.api_keys", "UTILITY_API_KEYS")
	_ = v.BindEnv("geocode.google_api_key", "UTILITY_GEOCODE_GOOGLE_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("engine.skip_water", "UTILITY_ENGINE_SKIP_WATER", "SKIP_WATER")
	_ = v.BindEnv("spatial.postgis_url", "UTILITY_SPATIAL_POSTGIS_URL", "POSTGIS_URL")
	_ = v.BindEnv("internet.database_url", "UTILITY_INTERNET_DATABASE_URL", "DATABASE_URL")

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("geocode.cache_path", "data/geocode_cache.db")
	v.SetDefault("geocode.rate_per_second", 10.0)
	v.SetDefault("geocode.batch_chunk_size", 100)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("engine.skip_water", false)
	v.SetDefault("engine.batch_concurrency", 5)
	v.SetDefault("spatial.backend", "rtree")
	v.SetDefault("spatial.data_dir", "data/territories")
	v.SetDefault("spatial.manifest", "data/layers.yaml")
	v.SetDefault("stategis.registry_path", "data/state_gis_endpoints.json")
	v.SetDefault("stategis.timeout_secs", 12)
	v.SetDefault("stategis.cache_size", 4096)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.canonical_path", "data/canonical_providers.json")
	v.SetDefault("data.catalog_path", "data/utility_catalog.csv")
	v.SetDefault("data.corrections_dir", "data/corrections")
	v.SetDefault("cache.path", "data/result_cache.db")
	v.SetDefault("cache.ttl_days", 90)
	v.SetDefault("batch.geocode_workers", 5)
	v.SetDefault("batch.lookup_workers", 32)
	v.SetDefault("batch.chunk_size", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a given mode depends on. Modes are the
// top-level commands: serve, lookup, batch, import.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Engine.BatchConcurrency >= 1 && c.Engine.BatchConcurrency <= 50,
		"engine.batch_concurrency must be between 1 and 50")
	check(c.Cache.TTLDays >= 0, "cache.ttl_days must be >= 0")
	check(c.Geocode.RatePerSecond > 0, "geocode.rate_per_second must be > 0")

	switch mode {
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	case "batch":
		check(c.Batch.LookupWorkers >= 1, "batch.lookup_workers must be >= 1")
		check(c.Batch.ChunkSize >= 1, "batch.chunk_size must be >= 1")
	case "lookup":
		// Nothing beyond the shared checks.
	case "import":
		check(c.Spatial.PostGISURL != "" || c.Spatial.Backend == "rtree",
			"spatial.postgis_url is required for the postgis backend")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
