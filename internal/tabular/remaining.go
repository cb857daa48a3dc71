package tabular

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

// remainingStatesFile is the remaining_states_{type}.json shape: tenant-
// verified ZIP → provider rows with dominance statistics from the source
// dataset.
type remainingStatesFile struct {
	States map[string]map[string]remainingEntry `json:"states"`
}

type remainingEntry struct {
	Name            string  `json:"name"`
	ConfidenceLevel string  `json:"confidence_level"`
	DominancePct    float64 `json:"dominance_pct"`
	SampleCount     int     `json:"sample_count"`
}

// RemainingStatesLookup resolves providers by ZIP from tenant-verified
// data, covering the states the polygon layers handle poorly. Sits between
// the polygon index and the EIA/FindEnergy fallbacks.
type RemainingStatesLookup struct {
	// data[utility][state][zip]
	data map[string]map[string]map[string]remainingEntry
}

// NewRemainingStatesLookup loads remaining_states_{electric,gas,water}.json
// from dataDir.
func NewRemainingStatesLookup(dataDir string) (*RemainingStatesLookup, error) {
	r := &RemainingStatesLookup{data: make(map[string]map[string]map[string]remainingEntry)}
	for _, utility := range []model.UtilityType{model.UtilityElectric, model.UtilityGas, model.UtilityWater} {
		var f remainingStatesFile
		path := filepath.Join(dataDir, "remaining_states_"+string(utility)+".json")
		if err := loadJSON(path, "remaining_states_"+string(utility), &f); err != nil {
			return nil, err
		}
		if len(f.States) > 0 {
			r.data[string(utility)] = f.States
		}
	}
	if len(r.data) > 0 {
		zap.L().Info("remaining-states tables loaded", zap.Int("utility_types", len(r.data)))
	}
	return r, nil
}

// Loaded reports whether any table was loaded.
func (r *RemainingStatesLookup) Loaded() bool { return len(r.data) > 0 }

// Lookup resolves a provider by ZIP. Confidence is dominance-weighted: how
// uniformly the ZIP's verified records agree on one provider, with a small
// boost for well-sampled ZIPs.
func (r *RemainingStatesLookup) Lookup(zipCode, state string, utility model.UtilityType) *Result {
	state = upperState(state)
	zipCode = strings.TrimSpace(zipCode)
	if zipCode == "" || state == "" {
		return nil
	}
	entry, ok := r.data[string(utility)][state][zipCode]
	if !ok || entry.Name == "" {
		return nil
	}

	var confidence float64
	switch {
	case entry.ConfidenceLevel == "high" && entry.DominancePct >= 90:
		confidence = 0.82
	case entry.ConfidenceLevel == "high":
		confidence = 0.78
	case entry.ConfidenceLevel == "medium" && entry.DominancePct >= 80:
		confidence = 0.75
	case entry.ConfidenceLevel == "medium":
		confidence = 0.72
	default:
		confidence = 0.65
	}
	if entry.SampleCount >= 20 {
		confidence = min(confidence+0.03, 0.85)
	}

	return &Result{
		Name:         entry.Name,
		Source:       "remaining_states_" + string(utility),
		Confidence:   confidence,
		State:        state,
		DominancePct: entry.DominancePct,
	}
}
