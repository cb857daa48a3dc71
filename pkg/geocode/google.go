package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress  string `json:"formatted_address"`
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
}

// geocodeGoogle geocodes a single address using the Google Geocoding API.
func (g *geocoder) geocodeGoogle(ctx context.Context, addr AddressInput) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	oneLine := formatOneLine(addr)
	params := url.Values{
		"address": {oneLine},
		"key":     {g.googleKey},
	}

	reqURL := googleGeocodeURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	if googleResp.Status != "OK" || len(googleResp.Results) == 0 {
		return &Result{Matched: false, Source: "google"}, nil
	}

	best := googleResp.Results[0]
	quality, confidence := googleLocationType(best.Geometry.LocationType)
	result := &Result{
		Latitude:       best.Geometry.Location.Lat,
		Longitude:      best.Geometry.Location.Lng,
		Source:         "google",
		Quality:        quality,
		Confidence:     confidence,
		Matched:        true,
		MatchedAddress: best.FormattedAddress,
	}
	for _, comp := range best.AddressComponents {
		for _, t := range comp.Types {
			switch t {
			case "locality":
				result.City = comp.LongName
			case "administrative_area_level_1":
				result.State = comp.ShortName
			case "administrative_area_level_2":
				result.County = strings.TrimSuffix(comp.LongName, " County")
			case "postal_code":
				result.ZipCode = comp.ShortName
			}
		}
	}
	return result, nil
}

// googleLocationType maps Google's location_type to our quality taxonomy and
// a calibrated confidence.
func googleLocationType(locType string) (string, float64) {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop", 0.98
	case "RANGE_INTERPOLATED":
		return "range", 0.90
	case "GEOMETRIC_CENTER":
		return "centroid", 0.80
	case "APPROXIMATE":
		return "approximate", 0.60
	default:
		return "approximate", 0.60
	}
}
