// Package tabular holds the non-spatial lookup sources: versioned JSON
// tables keyed by ZIP, county, or city. Every adapter returns the same
// result shape so the resolution pipeline can treat them uniformly; the
// fixed confidences encode each table's authority.
package tabular

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Result is the uniform hit shape of every tabular source. A miss is a nil
// *Result, never an error: reference tables are loaded up front and lookups
// are pure.
type Result struct {
	Name         string   `json:"name"`
	Source       string   `json:"source"`
	Confidence   float64  `json:"confidence"`
	State        string   `json:"state,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Website      string   `json:"website,omitempty"`
	EIAID        string   `json:"eia_id,omitempty"`
	DominancePct float64  `json:"dominance_pct,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// loadJSON reads a reference table, tolerating a missing file: adapters
// whose data file is absent simply stay unloaded and miss on every lookup.
func loadJSON(path, table string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Warn("reference table not found",
				zap.String("table", table),
				zap.String("path", path),
			)
			return nil
		}
		return eris.Wrapf(err, "tabular: read %s", table)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrapf(err, "tabular: parse %s", table)
	}
	return nil
}

func upperState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

// zip5 trims a ZIP+4 down to the 5-digit form.
func zip5(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) > 5 {
		zip = zip[:5]
	}
	return zip
}

// cleanCounty strips a trailing "County" suffix, so "Fulton County" and
// "Fulton" key the same row.
func cleanCounty(county string) string {
	county = strings.TrimSpace(county)
	for _, suffix := range []string{" County", " county"} {
		county = strings.TrimSuffix(county, suffix)
	}
	return strings.TrimSpace(county)
}
