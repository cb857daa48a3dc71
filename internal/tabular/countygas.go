package tabular

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// countyGasState is one state's entry in gas_county_lookups.json: county
// and city maps plus an optional statewide default.
type countyGasState struct {
	Counties map[string]countyGasEntry `json:"counties"`
	Cities   map[string]countyGasEntry `json:"cities"`
	Default  string                    `json:"_default"`
}

type countyGasEntry struct {
	Utility string `json:"utility"`
}

// CountyGasLookup resolves gas LDCs by county, with city overrides for the
// metros where a single county splits between LDCs (Chicago → Peoples Gas
// but Evanston → North Shore Gas).
type CountyGasLookup struct {
	states map[string]*countyGasState
}

// NewCountyGasLookup loads the county gas table. Top-level keys starting
// with "_" are metadata and skipped.
func NewCountyGasLookup(path string) (*CountyGasLookup, error) {
	var raw map[string]json.RawMessage
	if err := loadJSON(path, "gas_county_lookups", &raw); err != nil {
		return nil, err
	}

	c := &CountyGasLookup{states: make(map[string]*countyGasState)}
	for key, val := range raw {
		if strings.HasPrefix(key, "_") {
			continue
		}
		var st countyGasState
		if err := json.Unmarshal(val, &st); err != nil {
			continue
		}
		c.states[strings.ToUpper(key)] = &st
	}
	if len(c.states) > 0 {
		zap.L().Info("county gas table loaded", zap.Int("states", len(c.states)))
	}
	return c, nil
}

// HasState reports whether county gas data exists for the state.
func (c *CountyGasLookup) HasState(state string) bool {
	_, ok := c.states[upperState(state)]
	return ok
}

// Loaded reports whether any state data was loaded.
func (c *CountyGasLookup) Loaded() bool { return len(c.states) > 0 }

// Lookup resolves the gas LDC for a state + county/city. City overrides
// beat county rows beat the statewide default.
func (c *CountyGasLookup) Lookup(state, county, city string) *Result {
	state = upperState(state)
	st := c.states[state]
	if st == nil {
		return nil
	}
	source := "county_gas_" + strings.ToLower(state)

	if city != "" {
		if entry := matchFold(st.Cities, strings.TrimSpace(city)); entry != nil {
			return &Result{
				Name:       entry.Utility,
				Source:     source + "_city",
				Confidence: 0.88,
				State:      state,
			}
		}
	}

	if county != "" {
		if entry := matchFold(st.Counties, cleanCounty(county)); entry != nil {
			return &Result{
				Name:       entry.Utility,
				Source:     source,
				Confidence: 0.85,
				State:      state,
			}
		}
	}

	if st.Default != "" {
		return &Result{
			Name:       st.Default,
			Source:     source + "_default",
			Confidence: 0.60,
			State:      state,
		}
	}
	return nil
}

// matchFold finds a map entry by exact key, falling back to a
// case-insensitive scan.
func matchFold(m map[string]countyGasEntry, key string) *countyGasEntry {
	if entry, ok := m[key]; ok {
		return &entry
	}
	for k, entry := range m {
		if strings.EqualFold(k, key) {
			return &entry
		}
	}
	return nil
}
