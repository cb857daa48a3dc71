package model

import "time"

// GeocodedAddress is the output of the geocoder for one address.
// BlockGEOID is the 15-character Census block identifier used by the
// internet source.
type GeocodedAddress struct {
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	Confidence       float64 `json:"confidence"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	City             string  `json:"city,omitempty"`
	State            string  `json:"state,omitempty"`
	ZipCode          string  `json:"zip_code,omitempty"`
	County           string  `json:"county,omitempty"`
	BlockGEOID       string  `json:"block_geoid,omitempty"`
}

// Resolved reports whether the geocoder produced usable coordinates.
// A zero lat/lon pair means the address was unresolvable.
func (g GeocodedAddress) Resolved() bool {
	return g.Lat != 0 || g.Lon != 0
}

// InternetProvider is one ISP serving a Census block, from FCC BDC data.
type InternetProvider struct {
	Name       string `json:"name"`
	Technology string `json:"technology"`
	TechCode   string `json:"tech_code"`
	MaxDown    int    `json:"max_down"`
	MaxUp      int    `json:"max_up"`
	LowLatency bool   `json:"low_latency"`
}

// InternetResult summarizes internet availability for a Census block.
type InternetResult struct {
	Providers        []InternetProvider `json:"providers"`
	ProviderCount    int                `json:"provider_count"`
	HasFiber         bool               `json:"has_fiber"`
	HasCable         bool               `json:"has_cable"`
	MaxDownloadSpeed int                `json:"max_download_speed"`
	Source           string             `json:"source"`
	Confidence       float64            `json:"confidence"`
}

// LookupResult is the full engine output for one address.
type LookupResult struct {
	Address           string          `json:"address"`
	Lat               float64         `json:"lat"`
	Lon               float64         `json:"lon"`
	GeocodeConfidence float64         `json:"geocode_confidence"`
	Electric          *ProviderResult `json:"electric"`
	Gas               *ProviderResult `json:"gas"`
	Water             *ProviderResult `json:"water"`
	Sewer             *ProviderResult `json:"sewer"`
	Trash             *ProviderResult `json:"trash"`
	Internet          *InternetResult `json:"internet"`
	LookupTimeMS      int64           `json:"lookup_time_ms"`
	Timestamp         time.Time       `json:"timestamp"`
	Error             string          `json:"error,omitempty"`
}

// Provider returns the result slot for a utility type, or nil for internet
// and unknown types.
func (r *LookupResult) Provider(u UtilityType) *ProviderResult {
	switch u {
	case UtilityElectric:
		return r.Electric
	case UtilityGas:
		return r.Gas
	case UtilityWater:
		return r.Water
	case UtilitySewer:
		return r.Sewer
	case UtilityTrash:
		return r.Trash
	default:
		return nil
	}
}

// SetProvider stores a per-utility result on the lookup result.
func (r *LookupResult) SetProvider(u UtilityType, p *ProviderResult) {
	switch u {
	case UtilityElectric:
		r.Electric = p
	case UtilityGas:
		r.Gas = p
	case UtilityWater:
		r.Water = p
	case UtilitySewer:
		r.Sewer = p
	case UtilityTrash:
		r.Trash = p
	}
}

// Correction is one appended ground-truth override record. The pipeline reads
// the most recent match for an address or ZIP.
type Correction struct {
	ID                 string      `json:"id"`
	Address            string      `json:"address,omitempty"`
	Lat                float64     `json:"lat,omitempty"`
	Lon                float64     `json:"lon,omitempty"`
	ZipCode            string      `json:"zip_code,omitempty"`
	State              string      `json:"state"`
	Utility            UtilityType `json:"utility_type"`
	CorrectedProvider  string      `json:"corrected_provider"`
	CorrectedCatalogID int         `json:"corrected_catalog_id,omitempty"`
	OriginalProvider   string      `json:"original_provider,omitempty"`
	OriginalSource     string      `json:"original_source,omitempty"`
	CorrectedBy        string      `json:"corrected_by,omitempty"`
	CorrectedAt        time.Time   `json:"corrected_at"`
	Notes              string      `json:"notes,omitempty"`
}
