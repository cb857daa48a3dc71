// Package engine orchestrates the multi-source provider resolution pipeline:
// geocode, candidate collection across ~10 ranked sources, deduplication,
// overlap arbitration, cross-verification, and catalog ID attachment.
package engine

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/utility-lookup/internal/catalog"
	"github.com/sells-group/utility-lookup/internal/corrections"
	"github.com/sells-group/utility-lookup/internal/internet"
	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/rescache"
	"github.com/sells-group/utility-lookup/internal/scorer"
	"github.com/sells-group/utility-lookup/internal/spatial"
	"github.com/sells-group/utility-lookup/internal/stategis"
	"github.com/sells-group/utility-lookup/internal/tabular"
	"github.com/sells-group/utility-lookup/pkg/geocode"
)

// StateGIS is the slice of the state GIS client the pipeline needs.
type StateGIS interface {
	Query(ctx context.Context, lat, lon float64, state string, utility model.UtilityType) (*stategis.Result, error)
}

// Corrections is the slice of the corrections store the pipeline needs.
type Corrections interface {
	LookupByAddress(ctx context.Context, address string, utility model.UtilityType) (*corrections.Match, error)
	LookupByZIP(zipCode string, utility model.UtilityType) *corrections.Match
}

// Deps carries the engine's data sources. Spatial and Scorer are required;
// every other source is optional and simply skipped when nil.
type Deps struct {
	Spatial  spatial.Index
	Scorer   *scorer.Scorer
	Geocoder geocode.Client

	StateGIS    StateGIS
	Corrections Corrections

	GasZIP           *tabular.GasZIPLookup
	GeorgiaEMC       *tabular.GeorgiaEMCLookup
	CountyGas        *tabular.CountyGasLookup
	Remaining        *tabular.RemainingStatesLookup
	SpecialDistricts *tabular.SpecialDistrictsLookup
	EIAZIP           *tabular.EIAZIPLookup
	FindEnergy       *tabular.FindEnergyLookup
	GasDefaults      *tabular.StateGasDefaults

	Matcher  *catalog.Matcher
	Internet *internet.Lookup
	Cache    *rescache.Cache

	SkipWater bool
}

// Engine is the lookup engine. Immutable after construction; safe for
// concurrent use once the spatial backend reports loaded.
type Engine struct {
	Deps

	batchConcurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchConcurrency bounds concurrent lookups in LookupBatch.
func WithBatchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchConcurrency = n
		}
	}
}

// New builds an Engine over its data sources.
func New(deps Deps, opts ...Option) *Engine {
	e := &Engine{
		Deps:             deps,
		batchConcurrency: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Loaded reports whether the spatial backend has finished loading. The
// PostGIS backend is always ready; the in-memory backend loads layers in the
// background at startup.
func (e *Engine) Loaded() bool {
	if l, ok := e.Spatial.(interface{ Loaded() bool }); ok {
		return l.Loaded()
	}
	return e.Spatial != nil
}

// site is the geocoded context a single lookup resolves against.
type site struct {
	lat, lon float64
	state    string
	zip      string
	city     string
	county   string
	address  string
}

var (
	stateZipRe  = regexp.MustCompile(`,\s*([A-Z]{2})\s+(\d{5})`)
	stateTailRe = regexp.MustCompile(`,\s*([A-Z]{2})\s*$`)
	zipTailRe   = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\s*$`)
	cityRe      = regexp.MustCompile(`,\s*([^,]+?)\s*,\s*[A-Z]{2}`)
)

// siteFor merges geocoder output with regex extraction from the raw address
// string. The geocoder wins; the regexes fill gaps when it returns partial
// components.
func siteFor(address string, geo model.GeocodedAddress) site {
	s := site{
		lat:     geo.Lat,
		lon:     geo.Lon,
		state:   geo.State,
		zip:     geo.ZipCode,
		city:    geo.City,
		county:  geo.County,
		address: address,
	}
	if s.state == "" {
		if m := stateZipRe.FindStringSubmatch(address); m != nil {
			s.state = m[1]
			if s.zip == "" {
				s.zip = m[2]
			}
		} else if m := stateTailRe.FindStringSubmatch(address); m != nil {
			s.state = m[1]
		}
	}
	if s.zip == "" {
		if m := zipTailRe.FindStringSubmatch(address); m != nil {
			s.zip = m[1]
		}
	}
	if s.city == "" {
		if m := cityRe.FindStringSubmatch(address); m != nil {
			s.city = strings.TrimSpace(m[1])
		}
	}
	return s
}

// Lookup resolves utility providers for one address. It never fails: a
// geocode miss yields a result with zero coordinates and nil provider slots.
func (e *Engine) Lookup(ctx context.Context, address string, useCache bool) *model.LookupResult {
	t0 := time.Now()
	log := zap.L().With(zap.String("component", "engine"), zap.String("address", address))

	if useCache && e.Cache != nil {
		if cached := e.Cache.Get(ctx, address); cached != nil {
			cached.LookupTimeMS = time.Since(t0).Milliseconds()
			log.Debug("cache hit", zap.Int64("ms", cached.LookupTimeMS))
			return cached
		}
	}

	geo := e.geocodeAddress(ctx, address)
	if !geo.Resolved() {
		return &model.LookupResult{
			Address:      address,
			LookupTimeMS: time.Since(t0).Milliseconds(),
			Timestamp:    time.Now().UTC(),
		}
	}

	s := siteFor(address, geo)

	result := &model.LookupResult{
		Address:           address,
		Lat:               geo.Lat,
		Lon:               geo.Lon,
		GeocodeConfidence: geo.Confidence,
		Timestamp:         time.Now().UTC(),
	}

	result.Electric = e.resolveUtility(ctx, s, model.UtilityElectric)
	result.Gas = e.resolveUtility(ctx, s, model.UtilityGas)
	if !e.SkipWater {
		result.Water = e.resolveUtility(ctx, s, model.UtilityWater)
	}
	result.Sewer = e.resolveSewer(ctx, s, result.Water)

	if e.Internet != nil && geo.BlockGEOID != "" {
		inet, err := e.Internet.Query(ctx, geo.BlockGEOID)
		if err != nil {
			log.Debug("internet lookup failed", zap.String("block", geo.BlockGEOID), zap.Error(err))
		} else {
			result.Internet = inet
		}
	}

	result.LookupTimeMS = time.Since(t0).Milliseconds()

	// Geocode failures are transient; only resolved lookups are cached.
	if useCache && e.Cache != nil {
		if err := e.Cache.Put(ctx, address, result); err != nil {
			log.Warn("cache put failed", zap.Error(err))
		}
	}

	log.Info("lookup complete",
		zap.String("electric", providerName(result.Electric)),
		zap.String("gas", providerName(result.Gas)),
		zap.String("water", providerName(result.Water)),
		zap.Int64("ms", result.LookupTimeMS),
	)
	return result
}

// LookupBatch resolves addresses with bounded concurrency, preserving input
// order. Per-address failures yield placeholder results, never an aborted
// batch.
func (e *Engine) LookupBatch(ctx context.Context, addresses []string, useCache bool) []*model.LookupResult {
	results := make([]*model.LookupResult, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchConcurrency)
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			results[i] = e.Lookup(gctx, addr, useCache)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) geocodeAddress(ctx context.Context, address string) model.GeocodedAddress {
	if e.Geocoder == nil {
		return model.GeocodedAddress{}
	}
	res, err := e.Geocoder.Geocode(ctx, geocode.AddressInput{Street: address})
	if err != nil || res == nil {
		zap.L().Debug("geocode miss",
			zap.String("component", "engine"),
			zap.String("address", address),
			zap.Error(err),
		)
		return model.GeocodedAddress{}
	}
	return res.Model()
}

func providerName(r *model.ProviderResult) string {
	if r == nil {
		return ""
	}
	return r.DisplayName
}
