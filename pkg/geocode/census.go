package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBatchURL   = "https://geocoding.geo.census.gov/geocoder/geographies/addressbatch"
	censusBenchmark  = "Public_AR_Current"
	censusVintage    = "Current_Current"

	// Geography layers requested alongside coordinates. Counties feed the
	// county-level gas tables; blocks feed the FCC internet lookup.
	censusLayers = "Counties,2020 Census Blocks"

	censusTigerConfidence   = 0.95
	censusNoTigerConfidence = 0.80
)

// censusOneLineResponse is the JSON response from the Census geographies API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	TigerLine struct {
		Side    string `json:"side"`
		TigerID string `json:"tigerLineId"`
	} `json:"tigerLine"`
	MatchedAddress    string `json:"matchedAddress"`
	AddressComponents struct {
		City  string `json:"city"`
		State string `json:"state"`
		Zip   string `json:"zip"`
	} `json:"addressComponents"`
	Geographies map[string][]censusGeography `json:"geographies"`
}

type censusGeography struct {
	Name  string `json:"NAME"`
	GEOID string `json:"GEOID"`
}

// geocodeCensus geocodes a single address using the Census geographies API,
// which returns county and Census block alongside coordinates.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	oneLine := formatOneLine(addr)
	params := url.Values{
		"address":   {oneLine},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"layers":    {censusLayers},
		"format":    {"json"},
	}

	reqURL := censusOneLineURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}

	var censusResp censusOneLineResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		return &Result{Matched: false, Source: "census"}, nil
	}

	match := censusResp.Result.AddressMatches[0]
	result := &Result{
		Latitude:       match.Coordinates.Y,
		Longitude:      match.Coordinates.X,
		Source:         "census",
		Matched:        true,
		MatchedAddress: match.MatchedAddress,
		City:           titleCase(match.AddressComponents.City),
		State:          match.AddressComponents.State,
		ZipCode:        match.AddressComponents.Zip,
	}

	// A TIGER line reference means an interpolated street match rather than
	// a ZIP or place centroid.
	if match.TigerLine.TigerID != "" {
		result.Quality = "rooftop"
		result.Confidence = censusTigerConfidence
	} else {
		result.Quality = "centroid"
		result.Confidence = censusNoTigerConfidence
	}

	if counties := match.Geographies["Counties"]; len(counties) > 0 {
		result.County = strings.TrimSuffix(counties[0].Name, " County")
		result.CountyFIPS = counties[0].GEOID
	}
	if blocks := match.Geographies["2020 Census Blocks"]; len(blocks) > 0 {
		result.BlockGEOID = blocks[0].GEOID
	}

	return result, nil
}

// batchGeocodeCensus geocodes up to 10,000 addresses via the Census batch API.
func (g *geocoder) batchGeocodeCensus(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch rate limit")
	}

	// Build CSV content: id,street,city,state,zip
	var csv strings.Builder
	idToIdx := make(map[string]int, len(addrs))
	for i, addr := range addrs {
		id := addr.ID
		if id == "" {
			id = fmt.Sprintf("%d", i)
		}
		idToIdx[id] = i
		fmt.Fprintf(&csv, "%s,%s,%s,%s,%s\n", id, addr.Street, addr.City, addr.State, addr.ZipCode)
	}

	// Build multipart form.
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, value := range map[string]string{
		"benchmark": censusBenchmark,
		"vintage":   censusVintage,
	} {
		if err := writer.WriteField(field, value); err != nil {
			return nil, eris.Wrapf(err, "geocode: census batch write %s", field)
		}
	}

	part, err := writer.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch create form file")
	}
	if _, err := part.Write([]byte(csv.String())); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch write csv")
	}
	if err := writer.Close(); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch close writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, censusBatchURL, &buf)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch build request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census batch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch read body")
	}

	return parseCensusBatchResponse(string(body), idToIdx, len(addrs))
}

// parseCensusBatchResponse parses the Census batch CSV response. The
// geographies endpoint appends state FIPS, county FIPS, tract, and block to
// each matched line:
//
//	"id","input","Match","Exact","matched",lon/lat,tigerid,side,statefp,countyfp,tract,block
func parseCensusBatchResponse(body string, idToIdx map[string]int, total int) ([]Result, error) {
	results := make([]Result, total)

	lines := strings.Split(strings.TrimSpace(body), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := splitCSVLine(line)
		if len(fields) < 6 {
			continue
		}

		id := strings.Trim(fields[0], "\"")
		idx, ok := idToIdx[id]
		if !ok {
			continue
		}

		matchType := strings.Trim(fields[2], "\"")
		if !strings.EqualFold(matchType, "Match") {
			results[idx] = Result{Matched: false, Source: "census"}
			continue
		}

		exactness := strings.Trim(fields[3], "\"")
		quality, confidence := censusBatchQuality(exactness)

		coords := strings.Trim(fields[5], "\"")
		lon, lat, parseErr := parseCensusCoords(coords)
		if parseErr != nil {
			results[idx] = Result{Matched: false, Source: "census"}
			continue
		}

		r := Result{
			Latitude:       lat,
			Longitude:      lon,
			Source:         "census",
			Quality:        quality,
			Confidence:     confidence,
			Matched:        true,
			MatchedAddress: strings.Trim(fields[4], "\""),
		}
		if len(fields) >= 12 {
			statefp := strings.Trim(fields[8], "\"")
			countyfp := strings.Trim(fields[9], "\"")
			tract := strings.Trim(fields[10], "\"")
			block := strings.Trim(fields[11], "\"")
			if statefp != "" && countyfp != "" {
				r.CountyFIPS = statefp + countyfp
			}
			if statefp != "" && countyfp != "" && tract != "" && block != "" {
				r.BlockGEOID = statefp + countyfp + tract + block
			}
		}
		results[idx] = r
	}

	return results, nil
}

// censusBatchQuality maps Census batch match exactness to quality and
// confidence.
func censusBatchQuality(exactness string) (string, float64) {
	switch strings.ToLower(strings.TrimSpace(exactness)) {
	case "exact":
		return "rooftop", censusTigerConfidence
	case "non_exact":
		return "range", censusNoTigerConfidence
	default:
		return "range", censusNoTigerConfidence
	}
}

// parseCensusCoords parses "lon,lat" from Census batch response.
func parseCensusCoords(coords string) (lon, lat float64, err error) {
	parts := strings.SplitN(coords, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}

// splitCSVLine splits a CSV line handling quoted fields.
func splitCSVLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
			current.WriteRune(ch)
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// formatOneLine formats an address as a single line for the Census API.
func formatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

// titleCase converts the Census API's all-caps city names to title case.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
