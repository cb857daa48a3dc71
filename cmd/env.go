package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/catalog"
	"github.com/sells-group/utility-lookup/internal/corrections"
	"github.com/sells-group/utility-lookup/internal/engine"
	"github.com/sells-group/utility-lookup/internal/internet"
	"github.com/sells-group/utility-lookup/internal/normalize"
	"github.com/sells-group/utility-lookup/internal/rescache"
	"github.com/sells-group/utility-lookup/internal/scorer"
	"github.com/sells-group/utility-lookup/internal/spatial"
	"github.com/sells-group/utility-lookup/internal/stategis"
	"github.com/sells-group/utility-lookup/internal/tabular"
	"github.com/sells-group/utility-lookup/pkg/geocode"
)

// engineEnv bundles the wired-up engine with the handles commands need
// directly: the geocoder for bulk phases, the cache for maintenance, the
// normalizer for the batch comparator.
type engineEnv struct {
	Engine      *engine.Engine
	Geocoder    geocode.Client
	Norm        *normalize.Normalizer
	Cache       *rescache.Cache
	Corrections *corrections.Store

	closers []func()
}

func (e *engineEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initEngine assembles the engine from config. With background=true the
// in-memory spatial index loads its shapefile layers in a goroutine and the
// engine reports unloaded until they finish; otherwise loading blocks.
func initEngine(ctx context.Context, background bool) (*engineEnv, error) {
	env := &engineEnv{}

	norm, err := normalize.LoadFile(cfg.Data.CanonicalPath)
	if err != nil {
		return nil, err
	}
	env.Norm = norm

	contacts, err := scorer.LoadContacts(filepath.Join(cfg.Data.Dir, "provider_contacts.json"))
	if err != nil {
		return nil, err
	}
	sc := scorer.New(norm, scorer.WithContacts(contacts))

	geocodeOpts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RatePerSecond),
		geocode.WithDiskCache(cfg.Geocode.CachePath),
	}
	if cfg.Geocode.GoogleAPIKey != "" {
		geocodeOpts = append(geocodeOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey))
	}
	env.Geocoder = geocode.NewClient(geocodeOpts...)

	idx, err := buildSpatial(ctx, env, background)
	if err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Spatial:   idx,
		Scorer:    sc,
		Geocoder:  env.Geocoder,
		SkipWater: cfg.Engine.SkipWater,
	}

	if gis := buildStateGIS(); gis != nil {
		deps.StateGIS = gis
	}

	corr, err := corrections.Open(ctx,
		filepath.Join(cfg.Data.Dir, "corrections.db"), cfg.Data.CorrectionsDir)
	if err != nil {
		return nil, err
	}
	deps.Corrections = corr
	env.Corrections = corr
	env.closers = append(env.closers, func() { _ = corr.Close() })

	if err := loadTabular(&deps); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Data.CatalogPath)
	if err != nil {
		return nil, err
	}
	deps.Matcher = catalog.NewMatcher(cat)

	if cfg.Internet.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.Internet.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect internet db")
		}
		deps.Internet = internet.New(pool)
		env.closers = append(env.closers, pool.Close)
	}

	cache, err := rescache.Open(ctx, cfg.Cache.Path,
		rescache.WithTTL(time.Duration(cfg.Cache.TTLDays)*24*time.Hour))
	if err != nil {
		zap.L().Warn("result cache unavailable, running without it", zap.Error(err))
	} else {
		deps.Cache = cache
		env.Cache = cache
		env.closers = append(env.closers, func() { _ = cache.Close() })
	}

	env.Engine = engine.New(deps, engine.WithBatchConcurrency(cfg.Engine.BatchConcurrency))
	return env, nil
}

func buildSpatial(ctx context.Context, env *engineEnv, background bool) (spatial.Index, error) {
	if cfg.Spatial.Backend == "postgis" {
		pool, err := pgxpool.New(ctx, cfg.Spatial.PostGISURL)
		if err != nil {
			return nil, eris.Wrap(err, "connect postgis")
		}
		env.closers = append(env.closers, pool.Close)
		return spatial.NewPostGISIndex(pool), nil
	}

	idx := spatial.NewMemoryIndex()
	manifest, err := spatial.LoadManifest(cfg.Spatial.Manifest)
	if err != nil {
		if os.IsNotExist(eris.Cause(err)) {
			zap.L().Warn("no layer manifest, spatial index is empty",
				zap.String("path", cfg.Spatial.Manifest))
			idx.MarkLoaded()
			return idx, nil
		}
		return nil, err
	}

	load := func() {
		start := time.Now()
		if err := spatial.LoadManifestLayers(idx, manifest); err != nil {
			zap.L().Error("layer load failed", zap.Error(err))
		}
		idx.MarkLoaded()
		zap.L().Info("spatial index ready",
			zap.Int("polygons", idx.Len()),
			zap.Duration("elapsed", time.Since(start)))
	}
	if background {
		go load()
	} else {
		load()
	}
	return idx, nil
}

func buildStateGIS() *stategis.Client {
	registry, err := stategis.LoadRegistry(cfg.StateGIS.RegistryPath)
	if err != nil {
		zap.L().Warn("state GIS registry unavailable, source disabled",
			zap.String("path", cfg.StateGIS.RegistryPath), zap.Error(err))
		return nil
	}
	var opts []stategis.Option
	if cfg.StateGIS.TimeoutSecs > 0 {
		opts = append(opts, stategis.WithTimeout(time.Duration(cfg.StateGIS.TimeoutSecs)*time.Second))
	}
	if cfg.StateGIS.CacheSize > 0 {
		opts = append(opts, stategis.WithCacheSize(cfg.StateGIS.CacheSize))
	}
	return stategis.New(registry, opts...)
}

// loadTabular wires the JSON fallback tables. Each loader tolerates a missing
// file, so a slim data directory just disables the matching sources.
func loadTabular(deps *engine.Deps) error {
	dir := cfg.Data.Dir

	var err error
	if deps.GasZIP, err = tabular.NewGasZIPLookup(dir); err != nil {
		return err
	}
	if deps.GeorgiaEMC, err = tabular.NewGeorgiaEMCLookup(filepath.Join(dir, "georgia_emcs.json")); err != nil {
		return err
	}
	if deps.CountyGas, err = tabular.NewCountyGasLookup(filepath.Join(dir, "gas_county_lookups.json")); err != nil {
		return err
	}
	if deps.Remaining, err = tabular.NewRemainingStatesLookup(dir); err != nil {
		return err
	}
	if deps.SpecialDistricts, err = tabular.NewSpecialDistrictsLookup(filepath.Join(dir, "special_districts_water.json")); err != nil {
		return err
	}
	if deps.EIAZIP, err = tabular.NewEIAZIPLookup(filepath.Join(dir, "eia_zip_utility_lookup.json")); err != nil {
		return err
	}
	if deps.FindEnergy, err = tabular.NewFindEnergyLookup(filepath.Join(dir, "findenergy_city_providers.json")); err != nil {
		return err
	}
	if deps.GasDefaults, err = tabular.NewStateGasDefaults(filepath.Join(dir, "state_gas_defaults.json")); err != nil {
		return err
	}
	return nil
}
