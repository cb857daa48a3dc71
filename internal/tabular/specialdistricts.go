package tabular

import (
	"go.uber.org/zap"
)

// specialDistrictEntry is one row of special_districts_water.json:
// pre-joined ZIP → water district data for AZ, CA, CO, FL, WA.
type specialDistrictEntry struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Type  string `json:"type"`
}

// SpecialDistrictsLookup resolves water districts by ZIP. Water only:
// special districts (MUDs, irrigation and water authorities) rarely follow
// city or county lines.
type SpecialDistrictsLookup struct {
	data map[string]specialDistrictEntry
}

// NewSpecialDistrictsLookup loads the special districts table.
func NewSpecialDistrictsLookup(path string) (*SpecialDistrictsLookup, error) {
	s := &SpecialDistrictsLookup{data: make(map[string]specialDistrictEntry)}
	if err := loadJSON(path, "special_districts_water", &s.data); err != nil {
		return nil, err
	}
	if len(s.data) > 0 {
		zap.L().Info("special districts table loaded", zap.Int("zips", len(s.data)))
	}
	return s, nil
}

// Loaded reports whether the table has data.
func (s *SpecialDistrictsLookup) Loaded() bool { return len(s.data) > 0 }

// Lookup resolves the water district for a ZIP.
func (s *SpecialDistrictsLookup) Lookup(zipCode string) *Result {
	zipCode = zip5(zipCode)
	if zipCode == "" {
		return nil
	}
	entry, ok := s.data[zipCode]
	if !ok || entry.Name == "" {
		return nil
	}
	return &Result{
		Name:       entry.Name,
		Source:     "special_district_water",
		Confidence: 0.82,
		State:      entry.State,
	}
}
