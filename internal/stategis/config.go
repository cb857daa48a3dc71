// Package stategis queries state PUC/PSC ArcGIS REST endpoints for
// authoritative utility territory data. State commission boundaries are
// higher resolution than the national shapefile layers, so hits from here
// outrank polygon-index results.
package stategis

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Endpoint config types. The zero value means a standard ArcGIS endpoint.
const (
	TypeArcGIS            = "arcgis"
	TypeSingleUtility     = "single_utility"
	TypeCoordinateMapping = "coordinate_mapping"
)

// Registry maps utility type → state → endpoint config. It is loaded from a
// versioned JSON file at startup.
type Registry map[string]map[string]*EndpointConfig

// EndpointConfig describes how to resolve a provider for one state and
// utility type. Exactly one of the config shapes applies, selected by Type.
type EndpointConfig struct {
	Type string `json:"type,omitempty"`

	// single_utility: one provider serves the whole state.
	DefaultName string `json:"default_name,omitempty"`

	// coordinate_mapping: region lookup by lon/lat range (Hawaiian islands).
	Mappings map[string]RegionMapping `json:"mappings,omitempty"`

	// Standard ArcGIS endpoint.
	URL         string `json:"url,omitempty"`
	NameField   string `json:"name_field,omitempty"`
	OutFields   string `json:"out_fields,omitempty"`
	FilterField string `json:"filter_field,omitempty"`
	// FilterValue is a string (substring match) or number (exact match).
	FilterValue any `json:"filter_value,omitempty"`

	// Fallback endpoint tried when the primary returns no feature.
	FallbackURL        string  `json:"fallback_url,omitempty"`
	FallbackNameField  string  `json:"fallback_name_field,omitempty"`
	FallbackConfidence float64 `json:"fallback_confidence,omitempty"`

	// Multi-layer endpoints (e.g. TX electric: IOU + municipal + co-op
	// layers). Entries are either full URLs or layer IDs substituted into
	// the {layer} placeholder of URL.
	Layers []LayerRef `json:"layers,omitempty"`

	// TimeoutSeconds overrides the client default for slow state servers.
	TimeoutSeconds int `json:"timeout,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
}

// RegionMapping is one entry of a coordinate_mapping config.
type RegionMapping struct {
	Name     string    `json:"name"`
	LonRange []float64 `json:"lon_range"`
	LatMin   float64   `json:"lat_min,omitempty"`
}

// LayerRef is one entry of a multi-layer config: either {"url": ...} or a
// bare layer ID.
type LayerRef struct {
	URL string
	ID  json.Number
}

// UnmarshalJSON accepts either an object with a url key or a scalar layer ID.
func (l *LayerRef) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		l.URL = obj.URL
		return nil
	}
	var id json.Number
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	l.ID = id
	return nil
}

// LoadRegistry reads the endpoint registry from a JSON file.
func LoadRegistry(path string) (Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "stategis: read endpoint registry")
	}
	var r Registry
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "stategis: parse endpoint registry")
	}
	for utility, states := range r {
		for state, cfg := range states {
			if cfg == nil {
				return nil, eris.Errorf("stategis: empty config for %s/%s", state, utility)
			}
			if err := cfg.validate(); err != nil {
				return nil, eris.Wrapf(err, "stategis: config for %s/%s", state, utility)
			}
		}
	}
	return r, nil
}

func (c *EndpointConfig) validate() error {
	switch c.Type {
	case TypeSingleUtility:
		if c.DefaultName == "" {
			return eris.New("single_utility config needs default_name")
		}
	case TypeCoordinateMapping:
		if len(c.Mappings) == 0 {
			return eris.New("coordinate_mapping config needs mappings")
		}
	case TypeArcGIS, "":
		if c.URL == "" && len(c.Layers) == 0 {
			return eris.New("arcgis config needs url or layers")
		}
		if c.NameField == "" {
			return eris.New("arcgis config needs name_field")
		}
	default:
		return eris.Errorf("unknown config type %q", c.Type)
	}
	return nil
}

// Lookup returns the config for a state and utility type, or nil.
func (r Registry) Lookup(state, utility string) *EndpointConfig {
	states, ok := r[utility]
	if !ok {
		return nil
	}
	return states[strings.ToUpper(state)]
}
