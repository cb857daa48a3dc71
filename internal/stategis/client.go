package stategis

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/resilience"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultCacheSize = 4096
)

// Result is a state-GIS hit for a point.
type Result struct {
	Name       string  `json:"name"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	State      string  `json:"state"`
}

// Client queries state GIS endpoints with per-(state, utility) circuit
// breaking and an in-memory result cache. Safe for concurrent use.
type Client struct {
	registry   Registry
	httpClient *http.Client
	breakers   *resilience.KeyedBreakers
	cache      *lru.Cache[string, *Result]
	timeout    time.Duration
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCacheSize overrides the result cache capacity.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		cache, err := lru.New[string, *Result](n)
		if err == nil {
			c.cache = cache
		}
	}
}

// New creates a Client over the given endpoint registry.
func New(registry Registry, opts ...Option) *Client {
	cache, _ := lru.New[string, *Result](defaultCacheSize)
	c := &Client{
		registry:   registry,
		httpClient: &http.Client{},
		breakers:   resilience.NewKeyedBreakers(resilience.DefaultCircuitConfig()),
		cache:      cache,
		timeout:    defaultTimeout,
		log:        zap.L().With(zap.String("component", "stategis")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasStateSource reports whether an endpoint exists for the state and
// utility type. The pipeline uses this to decide whether a state-GIS miss
// is meaningful.
func (c *Client) HasStateSource(state string, utility model.UtilityType) bool {
	return c.registry.Lookup(state, string(utility)) != nil
}

// Query resolves the provider at a point for one state and utility type.
// A miss, an open circuit, and an unconfigured state all return (nil, nil);
// the pipeline treats them identically and moves to the next source.
func (c *Client) Query(ctx context.Context, lat, lon float64, state string, utility model.UtilityType) (*Result, error) {
	state = strings.ToUpper(strings.TrimSpace(state))
	if state == "" {
		return nil, nil
	}
	cfg := c.registry.Lookup(state, string(utility))
	if cfg == nil {
		return nil, nil
	}

	// ~100m cache precision: addresses on the same block share a result.
	cacheKey := fmt.Sprintf("%.3f:%.3f:%s:%s", lat, lon, state, utility)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached, nil
	}

	breakerKey := state + "/" + string(utility)
	result, err := resilience.ExecuteVal(ctx, c.breakers.Get(breakerKey),
		func(ctx context.Context) (*Result, error) {
			return c.dispatch(ctx, lat, lon, state, cfg, utility)
		})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			return nil, nil
		}
		c.log.Warn("state GIS query failed",
			zap.String("state", state),
			zap.String("utility", string(utility)),
			zap.Error(err),
		)
		return nil, nil
	}

	// Negative results are cached too, so repeated lookups in uncovered
	// areas stay off the network.
	c.cache.Add(cacheKey, result)
	if result != nil {
		c.log.Debug("state GIS hit",
			zap.String("state", state),
			zap.String("utility", string(utility)),
			zap.String("name", result.Name),
		)
	}
	return result, nil
}

// dispatch routes to the query strategy the config calls for.
func (c *Client) dispatch(ctx context.Context, lat, lon float64, state string, cfg *EndpointConfig, utility model.UtilityType) (*Result, error) {
	source := "state_gis_" + strings.ToLower(state)

	switch cfg.Type {
	case TypeSingleUtility:
		return &Result{
			Name:       cfg.DefaultName,
			Source:     source,
			Confidence: confOr(cfg.Confidence, 0.95),
			State:      state,
		}, nil

	case TypeCoordinateMapping:
		for _, region := range cfg.Mappings {
			if len(region.LonRange) != 2 {
				continue
			}
			if lon < region.LonRange[0] || lon > region.LonRange[1] {
				continue
			}
			if region.LatMin != 0 && lat < region.LatMin {
				continue
			}
			return &Result{
				Name:       region.Name,
				Source:     source,
				Confidence: confOr(cfg.Confidence, 0.95),
				State:      state,
			}, nil
		}
		return nil, nil
	}

	timeout := c.timeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(cfg.Layers) > 0 {
		return c.queryLayers(ctx, lat, lon, state, cfg, source)
	}

	name, err := c.queryArcGIS(ctx, arcgisQuery{
		url: cfg.URL, lat: lat, lon: lon,
		nameField: cfg.NameField, outFields: cfg.OutFields,
		filterField: cfg.FilterField, filterValue: cfg.FilterValue,
	})
	if err != nil {
		return nil, err
	}
	if name != "" {
		return &Result{
			Name:       name,
			Source:     source,
			Confidence: confOr(cfg.Confidence, 0.90),
			State:      state,
		}, nil
	}

	if cfg.FallbackURL != "" {
		nameField := cfg.FallbackNameField
		if nameField == "" {
			nameField = cfg.NameField
		}
		name, err = c.queryArcGIS(ctx, arcgisQuery{
			url: cfg.FallbackURL, lat: lat, lon: lon,
			nameField: nameField, outFields: cfg.OutFields,
		})
		if err != nil {
			return nil, err
		}
		if name != "" {
			return &Result{
				Name:       name,
				Source:     source + "_fallback",
				Confidence: confOr(cfg.FallbackConfidence, confOr(cfg.Confidence, 0.85)),
				State:      state,
			}, nil
		}
	}
	return nil, nil
}

// queryLayers tries each layer in order; first hit wins. Used by states
// that publish separate IOU, municipal, and co-op layers.
func (c *Client) queryLayers(ctx context.Context, lat, lon float64, state string, cfg *EndpointConfig, source string) (*Result, error) {
	for _, layer := range cfg.Layers {
		layerURL := layer.URL
		if layerURL == "" {
			layerURL = strings.ReplaceAll(cfg.URL, "{layer}", layer.ID.String())
		}
		name, err := c.queryArcGIS(ctx, arcgisQuery{
			url: layerURL, lat: lat, lon: lon,
			nameField: cfg.NameField, outFields: cfg.OutFields,
		})
		if err != nil {
			return nil, err
		}
		if name != "" {
			return &Result{
				Name:       name,
				Source:     source,
				Confidence: confOr(cfg.Confidence, 0.92),
				State:      state,
			}, nil
		}
	}
	return nil, nil
}

// ClearCache drops all cached results.
func (c *Client) ClearCache() {
	c.cache.Purge()
}

// ResetBreakers re-enables all endpoints, e.g. at the start of a batch run.
func (c *Client) ResetBreakers() {
	c.breakers.ResetAll()
}

// BreakerStates reports circuit state per endpoint key for the health
// endpoint.
func (c *Client) BreakerStates() map[string]string {
	states := c.breakers.States()
	out := make(map[string]string, len(states))
	for k, s := range states {
		out[k] = s.String()
	}
	return out
}

func confOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
