// Package model holds the shared domain types for the utility lookup engine.
package model

// UtilityType identifies one of the utility categories the engine resolves.
type UtilityType string

const (
	UtilityElectric UtilityType = "electric"
	UtilityGas      UtilityType = "gas"
	UtilityWater    UtilityType = "water"
	UtilitySewer    UtilityType = "sewer"
	UtilityTrash    UtilityType = "trash"
	UtilityInternet UtilityType = "internet"
)

// PolygonTypes returns the utility types backed by territory polygons.
func PolygonTypes() []UtilityType {
	return []UtilityType{UtilityElectric, UtilityGas, UtilityWater}
}

// MatchMethod describes how a raw provider name was resolved.
type MatchMethod string

const (
	MatchTenantVerified MatchMethod = "tenant_verified"
	MatchEIAID          MatchMethod = "eia_id"
	MatchExact          MatchMethod = "exact"
	MatchFuzzy          MatchMethod = "fuzzy"
	MatchSubstring      MatchMethod = "substring"
	MatchPassthrough    MatchMethod = "passthrough"
	MatchNone           MatchMethod = "none"
)

// CanonicalProvider is one entry in the versioned canonical provider file.
// Aliases are matching tokens; ParentCompany is label-only metadata and must
// never appear in any alias list.
type CanonicalProvider struct {
	DisplayName   string   `json:"display_name"`
	Aliases       []string `json:"aliases"`
	ParentCompany string   `json:"parent_company,omitempty"`
	EIAID         int      `json:"eia_id,omitempty"`
}

// TerritoryPolygon is one row in a spatial territory table. Geometry lives in
// the spatial backend; this struct carries the attributes the pipeline needs.
type TerritoryPolygon struct {
	Name        string      `json:"name"`
	State       string      `json:"state"`
	Type        string      `json:"type"` // INVESTOR OWNED, COOPERATIVE, MUNICIPAL, POLITICAL, WATER, ...
	Utility     UtilityType `json:"utility"`
	AreaKM2     float64     `json:"area_km2"`
	Customers   int         `json:"customers,omitempty"`
	EIAID       string      `json:"eia_id,omitempty"`
	PWSID       string      `json:"pwsid,omitempty"`
	HoldingCo   string      `json:"holding_co,omitempty"`
	ControlArea string      `json:"control_area,omitempty"`
}

// CandidateProvider is the pipeline-internal representation of one possible
// provider for a utility type at a point.
type CandidateProvider struct {
	RawName         string      `json:"raw_name"`
	CanonicalID     string      `json:"canonical_id,omitempty"`
	DisplayName     string      `json:"display_name"`
	EIAID           int         `json:"eia_id,omitempty"`
	Utility         UtilityType `json:"utility_type"`
	Confidence      float64     `json:"confidence"`
	MatchMethod     MatchMethod `json:"match_method"`
	Source          string      `json:"source"` // data source tag, e.g. "state_gis", "hifld_shapefile"
	State           string      `json:"state,omitempty"`
	IsDeregulated   bool        `json:"is_deregulated,omitempty"`
	DeregulatedNote string      `json:"deregulated_note,omitempty"`
}

// Alternative is one ranked runner-up on a ProviderResult.
type Alternative struct {
	Provider   string  `json:"provider"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	EIAID      int     `json:"eia_id,omitempty"`
	CatalogID  int     `json:"catalog_id,omitempty"`
}

// ProviderResult is the per-utility output of the resolution pipeline.
type ProviderResult struct {
	CandidateProvider

	NeedsReview  bool          `json:"needs_review"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	CatalogID    int           `json:"catalog_id,omitempty"`
	CatalogTitle string        `json:"catalog_title,omitempty"`
	IDMatchScore int           `json:"id_match_score,omitempty"`
	IDConfident  bool          `json:"id_confident,omitempty"`
	Phone        string        `json:"phone,omitempty"`
	Website      string        `json:"website,omitempty"`
}

// ReviewThreshold is the confidence below which a result needs human review.
const ReviewThreshold = 0.70

// SetNeedsReview recomputes the needs_review flag from the current confidence.
func (r *ProviderResult) SetNeedsReview() {
	r.NeedsReview = r.Confidence < ReviewThreshold
}
