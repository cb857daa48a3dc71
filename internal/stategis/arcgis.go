package stategis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/resilience"
)

// featureResponse is the subset of the ArcGIS query response we read.
type featureResponse struct {
	Features []struct {
		Attributes map[string]any `json:"attributes"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// arcgisQuery holds the parameters of one point-in-polygon REST call.
type arcgisQuery struct {
	url         string
	lat, lon    float64
	nameField   string
	outFields   string
	filterField string
	filterValue any
}

// queryArcGIS runs a point-intersection query against an ArcGIS feature
// layer and returns the provider name of the first matching feature, or ""
// when the point is outside every feature.
func (c *Client) queryArcGIS(ctx context.Context, q arcgisQuery) (string, error) {
	outFields := q.outFields
	if outFields == "" {
		outFields = "*"
	}
	params := url.Values{
		"where":          {"1=1"},
		"geometry":       {fmt.Sprintf("%f,%f", q.lon, q.lat)},
		"geometryType":   {"esriGeometryPoint"},
		"inSR":           {"4326"},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"outFields":      {outFields},
		"returnGeometry": {"false"},
		"f":              {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url+"?"+params.Encode(), nil)
	if err != nil {
		return "", eris.Wrap(err, "stategis: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "stategis: execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", resilience.NewTransientError(
			eris.Errorf("stategis: endpoint returned status %d", resp.StatusCode), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", eris.Wrap(err, "stategis: read response")
	}

	var fr featureResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return "", eris.Wrap(err, "stategis: parse response")
	}
	// ArcGIS reports errors in a 200 body.
	if fr.Error != nil {
		return "", eris.Errorf("stategis: endpoint error %d: %s", fr.Error.Code, fr.Error.Message)
	}

	for _, f := range fr.Features {
		if q.filterField != "" && q.filterValue != nil && !attrMatches(f.Attributes[q.filterField], q.filterValue) {
			continue
		}
		if name, ok := f.Attributes[q.nameField].(string); ok {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				return trimmed, nil
			}
		}
		return "", nil
	}
	return "", nil
}

// attrMatches compares a feature attribute against a config filter value.
// String filters match as case-insensitive substrings (e.g. Oregon's
// combined layer tags rows "Gas", "Electric", or "Gas & Electric"); numeric
// filters match exactly.
func attrMatches(attr, filter any) bool {
	if s, ok := filter.(string); ok {
		return strings.Contains(strings.ToLower(fmt.Sprint(attr)), strings.ToLower(s))
	}
	af, aok := toFloat(attr)
	ff, fok := toFloat(filter)
	return aok && fok && af == ff
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
