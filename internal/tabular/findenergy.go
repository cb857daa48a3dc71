package tabular

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

// findEnergyEntry is one city entry keyed "STATE:city:utility_type".
type findEnergyEntry struct {
	Providers []struct {
		Name string `json:"name"`
	} `json:"providers"`
}

// FindEnergyLookup resolves providers by city from a cached city → provider
// table. Lowest-authority fallback besides state gas defaults.
type FindEnergyLookup struct {
	data map[string]findEnergyEntry
}

// NewFindEnergyLookup loads the city provider cache.
func NewFindEnergyLookup(path string) (*FindEnergyLookup, error) {
	f := &FindEnergyLookup{data: make(map[string]findEnergyEntry)}
	if err := loadJSON(path, "findenergy_city_providers", &f.data); err != nil {
		return nil, err
	}
	delete(f.data, "_metadata")
	if len(f.data) > 0 {
		zap.L().Info("FindEnergy city cache loaded", zap.Int("cities", len(f.data)))
	}
	return f, nil
}

// Loaded reports whether the cache has data.
func (f *FindEnergyLookup) Loaded() bool { return len(f.data) > 0 }

// Lookup resolves the primary provider for a state + city.
func (f *FindEnergyLookup) Lookup(state, city string, utility model.UtilityType) *Result {
	state = upperState(state)
	city = strings.ToLower(strings.TrimSpace(city))
	if state == "" || city == "" {
		return nil
	}
	entry, ok := f.data[state+":"+city+":"+string(utility)]
	if !ok || len(entry.Providers) == 0 || entry.Providers[0].Name == "" {
		return nil
	}
	return &Result{
		Name:       entry.Providers[0].Name,
		Source:     "findenergy_city",
		Confidence: 0.65,
		State:      state,
	}
}
