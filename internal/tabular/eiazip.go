package tabular

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// eiaUtility is one entry of eia_zip_utility_lookup.json, derived from EIA
// Form 861.
type eiaUtility struct {
	Name      string `json:"name"`
	EIAID     int64  `json:"eiaid"`
	State     string `json:"state"`
	Ownership string `json:"ownership"`
}

// Verification is the outcome of checking a resolved electric provider
// against the EIA entries for its ZIP.
type Verification struct {
	Verified bool
	EIAName  string
	EIAID    int64
	// Adjustment is added to the primary's confidence, in [-0.05, +0.05].
	Adjustment float64
}

// eiaStopWords are generic utility terms excluded from token-overlap
// verification so "Duke Electric" and "Carolina Electric" do not verify
// each other on "Electric" alone.
var eiaStopWords = map[string]bool{
	"electric": true, "power": true, "energy": true, "light": true,
	"company": true, "co": true, "corp": true, "corporation": true,
	"inc": true, "llc": true, "utilities": true, "utility": true,
	"cooperative": true, "coop": true, "association": true, "assn": true,
	"service": true, "services": true, "public": true, "the": true,
	"of": true, "and": true,
}

// EIAZIPLookup holds the per-ZIP EIA utility entries. It serves two roles:
// the electric fallback source and the cross-verification layer for
// electric primaries.
type EIAZIPLookup struct {
	data map[string][]eiaUtility
}

// NewEIAZIPLookup loads the EIA ZIP table.
func NewEIAZIPLookup(path string) (*EIAZIPLookup, error) {
	e := &EIAZIPLookup{data: make(map[string][]eiaUtility)}
	if err := loadJSON(path, "eia_zip_utility_lookup", &e.data); err != nil {
		return nil, err
	}
	if len(e.data) > 0 {
		zap.L().Info("EIA ZIP table loaded", zap.Int("zips", len(e.data)))
	}
	return e, nil
}

// Loaded reports whether the table has data.
func (e *EIAZIPLookup) Loaded() bool { return len(e.data) > 0 }

// Utilities returns the EIA entries for a ZIP, deduplicated by name.
func (e *EIAZIPLookup) Utilities(zipCode string) []eiaUtility {
	entries := e.data[zip5(zipCode)]
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(entries))
	var unique []eiaUtility
	for _, u := range entries {
		if u.Name == "" || seen[u.Name] {
			continue
		}
		seen[u.Name] = true
		unique = append(unique, u)
	}
	return unique
}

// LookupByZIP resolves the primary electric utility for a ZIP, used when
// state GIS and the polygon index both miss. IOUs are preferred: they cover
// larger territories and are the likelier answer absent better data.
func (e *EIAZIPLookup) LookupByZIP(zipCode string) *Result {
	utilities := e.Utilities(zipCode)
	if len(utilities) == 0 {
		return nil
	}
	best := utilities[0]
	for _, u := range utilities {
		if u.Ownership == "Investor Owned" {
			best = u
			break
		}
	}
	return &Result{
		Name:       best.Name,
		Source:     "eia_zip",
		Confidence: 0.70,
		State:      best.State,
		EIAID:      strconv.FormatInt(best.EIAID, 10),
	}
}

// Verify checks a provider name against the EIA entries for a ZIP and
// returns a confidence adjustment: exact match +0.05, majority token
// overlap +0.03, substring containment +0.02, disagreement -0.05. No EIA
// data for the ZIP adjusts nothing.
func (e *EIAZIPLookup) Verify(zipCode, providerName string) Verification {
	utilities := e.Utilities(zipCode)
	if len(utilities) == 0 {
		return Verification{}
	}

	name := strings.ToUpper(strings.TrimSpace(providerName))
	if name == "" {
		primary := utilities[0]
		return Verification{EIAName: primary.Name, EIAID: primary.EIAID}
	}
	nameTokens := significantTokens(name)

	for _, u := range utilities {
		eiaName := strings.ToUpper(strings.TrimSpace(u.Name))
		if name == eiaName {
			return Verification{Verified: true, EIAName: u.Name, EIAID: u.EIAID, Adjustment: 0.05}
		}
		if tokenOverlap(nameTokens, significantTokens(eiaName)) >= 0.5 {
			return Verification{Verified: true, EIAName: u.Name, EIAID: u.EIAID, Adjustment: 0.03}
		}
		if strings.Contains(eiaName, name) || strings.Contains(name, eiaName) {
			return Verification{Verified: true, EIAName: u.Name, EIAID: u.EIAID, Adjustment: 0.02}
		}
	}

	primary := utilities[0]
	return Verification{EIAName: primary.Name, EIAID: primary.EIAID, Adjustment: -0.05}
}

// significantTokens tokenizes a name, dropping punctuation and generic
// utility stop words.
func significantTokens(name string) map[string]bool {
	cleaned := strings.NewReplacer(",", " ", ".", " ", "&", " ", "-", " ").Replace(name)
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(cleaned)) {
		if !eiaStopWords[tok] {
			tokens[tok] = true
		}
	}
	return tokens
}

// tokenOverlap is the share of a's tokens also present in b.
func tokenOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	var common int
	for tok := range a {
		if b[tok] {
			common++
		}
	}
	return float64(common) / float64(len(a))
}
