package tabular

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// gasMappingStates maps supported states to their mapping file basenames.
// Texas is the load-bearing case: the national gas shapefile is too coarse
// to split CenterPoint (Houston) from Texas Gas Service (Austin) from Atmos
// (DFW), while ZIP prefixes do it cleanly.
var gasMappingStates = map[string]string{
	"AZ": "arizona",
	"CA": "california",
	"GA": "georgia",
	"IL": "illinois",
	"OH": "ohio",
	"TX": "texas",
}

// gasMapping is one state's mapping file.
type gasMapping struct {
	Utilities map[string]gasUtility `json:"utilities"`
	// ZipOverrides maps full 5-digit ZIPs to utility keys.
	ZipOverrides map[string]string `json:"zip_overrides"`
	// AmbiguousZips lists boundary ZIPs served by several LDCs; the first
	// provider is the best guess.
	AmbiguousZips map[string]ambiguousZip `json:"ambiguous_zips"`
	// ZipToUtility maps 3-digit ZIP prefixes to utility keys.
	ZipToUtility map[string]string `json:"zip_to_utility"`
}

type gasUtility struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Website string `json:"website"`
}

type ambiguousZip struct {
	Providers []string `json:"providers"`
}

// GasZIPLookup resolves gas LDCs by ZIP code from per-state mapping files.
type GasZIPLookup struct {
	mappings map[string]*gasMapping
}

// NewGasZIPLookup loads every supported state's mapping file from dataDir.
func NewGasZIPLookup(dataDir string) (*GasZIPLookup, error) {
	g := &GasZIPLookup{mappings: make(map[string]*gasMapping)}
	for state, basename := range gasMappingStates {
		var m gasMapping
		path := filepath.Join(dataDir, basename+".json")
		if err := loadJSON(path, "gas_mapping_"+strings.ToLower(state), &m); err != nil {
			return nil, err
		}
		if len(m.Utilities) > 0 {
			g.mappings[state] = &m
		}
	}
	zap.L().Info("gas ZIP mappings loaded", zap.Int("states", len(g.mappings)))
	return g, nil
}

// HasState reports whether a mapping exists for the state.
func (g *GasZIPLookup) HasState(state string) bool {
	_, ok := g.mappings[upperState(state)]
	return ok
}

// Query resolves the gas LDC for a ZIP. 5-digit overrides beat ambiguous
// ZIPs beat 3-digit prefixes.
func (g *GasZIPLookup) Query(zipCode, state string) *Result {
	state = upperState(state)
	zipCode = zip5(zipCode)
	m := g.mappings[state]
	if m == nil || zipCode == "" {
		return nil
	}
	source := "gas_zip_mapping_" + strings.ToLower(state)

	if key, ok := m.ZipOverrides[zipCode]; ok {
		if r := m.result(key, source, 0.93, state); r != nil {
			return r
		}
	}

	if amb, ok := m.AmbiguousZips[zipCode]; ok && len(amb.Providers) > 0 {
		if r := m.result(amb.Providers[0], source+"_ambiguous", 0.80, state); r != nil {
			return r
		}
	}

	if len(zipCode) >= 3 {
		if key, ok := m.ZipToUtility[zipCode[:3]]; ok {
			if r := m.result(key, source, 0.88, state); r != nil {
				return r
			}
		}
	}
	return nil
}

func (m *gasMapping) result(utilityKey, source string, confidence float64, state string) *Result {
	u, ok := m.Utilities[utilityKey]
	if !ok {
		return nil
	}
	name := u.Name
	if name == "" {
		name = utilityKey
	}
	return &Result{
		Name:       name,
		Source:     source,
		Confidence: confidence,
		State:      state,
		Phone:      u.Phone,
		Website:    u.Website,
	}
}
