package tabular

import (
	"go.uber.org/zap"
)

// georgiaEMCData is the georgia_emcs.json shape: EMC metadata plus a
// county → EMCs map. Georgia's 41 EMCs serve about 65% of the state and
// there is no statewide GIS electric endpoint, so county membership is the
// best available signal.
type georgiaEMCData struct {
	EMCs        map[string]emcInfo  `json:"emcs"`
	CountyToEMC map[string][]string `json:"county_to_emc"`
}

type emcInfo struct {
	Phone   string `json:"phone"`
	Website string `json:"website"`
}

// GeorgiaEMCLookup resolves Georgia electric co-ops by county.
type GeorgiaEMCLookup struct {
	data georgiaEMCData
}

// NewGeorgiaEMCLookup loads the EMC table.
func NewGeorgiaEMCLookup(path string) (*GeorgiaEMCLookup, error) {
	g := &GeorgiaEMCLookup{}
	if err := loadJSON(path, "georgia_emcs", &g.data); err != nil {
		return nil, err
	}
	if g.Loaded() {
		zap.L().Info("Georgia EMC table loaded",
			zap.Int("emcs", len(g.data.EMCs)),
			zap.Int("counties", len(g.data.CountyToEMC)),
		)
	}
	return g, nil
}

// Loaded reports whether the county map has data.
func (g *GeorgiaEMCLookup) Loaded() bool {
	return len(g.data.CountyToEMC) > 0
}

// Lookup resolves the EMC for a county. A county served by exactly one EMC
// scores higher than a split county, where the first listed EMC is the best
// guess and the rest become alternatives.
func (g *GeorgiaEMCLookup) Lookup(county string) *Result {
	county = cleanCounty(county)
	if county == "" {
		return nil
	}
	emcs := g.data.CountyToEMC[county]
	if len(emcs) == 0 {
		return nil
	}

	confidence := 0.72
	if len(emcs) == 1 {
		confidence = 0.87
	}
	info := g.data.EMCs[emcs[0]]
	return &Result{
		Name:         emcs[0],
		Source:       "georgia_emc",
		Confidence:   confidence,
		State:        "GA",
		Phone:        info.Phone,
		Website:      info.Website,
		Alternatives: emcs[1:],
	}
}
