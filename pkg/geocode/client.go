// Package geocode resolves US street addresses to coordinates and Census
// geography via a provider chain: local PostGIS TIGER (optional), the Census
// Geocoder, and Google (fallback).
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/utility-lookup/internal/model"
)

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes multiple addresses.
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// Querier is the subset of pgxpool.Pool the TIGER provider needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	ID      string // Optional identifier for batch correlation
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude       float64
	Longitude      float64
	Source         string // "tiger", "census", "google", "cache"
	Quality        string // "rooftop", "range", "centroid", "approximate"
	Confidence     float64
	Matched        bool
	MatchedAddress string
	City           string
	State          string
	ZipCode        string
	County         string
	CountyFIPS     string
	BlockGEOID     string // 15-digit Census block identifier
	Rating         int    // PostGIS geocoder rating, tiger source only
}

// Model converts the result to the engine's address type. Unmatched results
// produce a zero-coordinate address.
func (r *Result) Model() model.GeocodedAddress {
	if r == nil || !r.Matched {
		return model.GeocodedAddress{}
	}
	return model.GeocodedAddress{
		Lat:              r.Latitude,
		Lon:              r.Longitude,
		Confidence:       r.Confidence,
		FormattedAddress: r.MatchedAddress,
		City:             r.City,
		State:            r.State,
		ZipCode:          r.ZipCode,
		County:           r.County,
		BlockGEOID:       r.BlockGEOID,
	}
}

// Stats is a snapshot of chain activity since the client was created.
type Stats struct {
	CacheHits  int64 `json:"cache_hits"`
	TigerHits  int64 `json:"tiger_hits"`
	CensusHits int64 `json:"census_hits"`
	GoogleHits int64 `json:"google_hits"`
	Unmatched  int64 `json:"unmatched"`
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for external API calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithTigerPool enables the local PostGIS TIGER geocoder as the first
// provider after the cache.
func WithTigerPool(pool Querier) Option {
	return func(g *geocoder) {
		g.pool = pool
	}
}

// WithTigerMaxRating sets the worst acceptable PostGIS geocoder rating.
func WithTigerMaxRating(rating int) Option {
	return func(g *geocoder) {
		g.maxRating = rating
	}
}

// WithDiskCache persists results to a JSON file at the given path.
func WithDiskCache(path string) Option {
	return func(g *geocoder) {
		g.cache = newDiskCache(path)
	}
}

// WithBatchConcurrency sets the max parallel single-address fallbacks during
// BatchGeocode.
func WithBatchConcurrency(n int) Option {
	return func(g *geocoder) {
		if n > 0 {
			g.batchConcurrency = n
		}
	}
}

type geocoder struct {
	httpClient       *http.Client
	googleKey        string
	limiter          *rate.Limiter
	pool             Querier
	maxRating        int
	cache            *diskCache
	batchConcurrency int

	cacheHits  atomic.Int64
	tigerHits  atomic.Int64
	censusHits atomic.Int64
	googleHits atomic.Int64
	unmatched  atomic.Int64
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		limiter:          rate.NewLimiter(50, 50), // Census default: 50 req/s
		maxRating:        22,
		batchConcurrency: 5,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stats returns a snapshot of chain counters.
func (g *geocoder) Stats() Stats {
	return Stats{
		CacheHits:  g.cacheHits.Load(),
		TigerHits:  g.tigerHits.Load(),
		CensusHits: g.censusHits.Load(),
		GoogleHits: g.googleHits.Load(),
		Unmatched:  g.unmatched.Load(),
	}
}

// Geocode runs the chain: cache, local TIGER, Census, Google. A miss from
// every provider returns an unmatched result, not an error.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)

	if g.cache != nil {
		if cached, ok := g.cache.get(key); ok {
			g.cacheHits.Add(1)
			return &cached, nil
		}
	}

	if g.pool != nil {
		result, err := g.tigerGeocode(ctx, addr)
		if err == nil && result.Matched {
			g.tigerHits.Add(1)
			g.cachePut(key, result)
			return result, nil
		}
	}

	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		g.censusHits.Add(1)
		g.cachePut(key, result)
		return result, nil
	}
	if censusErr != nil {
		zap.L().Debug("geocode: census failed, trying fallback",
			zap.String("address", formatOneLine(addr)),
			zap.Error(censusErr),
		)
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil && googleResult.Matched {
			g.googleHits.Add(1)
			g.cachePut(key, googleResult)
			return googleResult, nil
		}
	}

	g.unmatched.Add(1)
	return &Result{Matched: false}, nil
}

// BatchGeocode geocodes addresses via the Census batch API, then runs the
// full single-address chain for leftovers in parallel.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	for i := range addrs {
		if addrs[i].ID == "" {
			addrs[i].ID = fmt.Sprintf("%d", i)
		}
	}

	results, err := g.batchGeocodeCensus(ctx, addrs)
	if err != nil {
		zap.L().Warn("geocode: census batch failed, geocoding individually",
			zap.Int("addresses", len(addrs)),
			zap.Error(err),
		)
		results = make([]Result, len(addrs))
	}

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.batchConcurrency)
	for i := range results {
		if results[i].Matched {
			g.censusHits.Add(1)
			continue
		}
		i := i
		eg.Go(func() error {
			r, gcErr := g.Geocode(gCtx, addrs[i])
			if gcErr != nil || r == nil {
				results[i] = Result{Matched: false}
				return nil //nolint:nilerr // individual geocode failures don't fail the batch
			}
			results[i] = *r
			return nil
		})
	}
	_ = eg.Wait()

	return results, nil
}

func (g *geocoder) cachePut(key string, r *Result) {
	if g.cache == nil || r == nil || !r.Matched {
		return
	}
	if err := g.cache.put(key, *r); err != nil {
		zap.L().Warn("geocode: cache write failed", zap.Error(err))
	}
}
