// Package normalize resolves free-text provider names to canonical providers.
package normalize

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/utility-lookup/internal/model"
)

// MatchType classifies how an input string resolved.
type MatchType string

const (
	MatchTypeExact     MatchType = "exact"
	MatchTypeFuzzy     MatchType = "fuzzy"
	MatchTypeSubstring MatchType = "substring"
	MatchTypeNullValue MatchType = "null_value"
	MatchTypePropane   MatchType = "propane"
	MatchTypeNone      MatchType = "none"
)

// Match is the outcome of normalizing one provider string.
type Match struct {
	CanonicalID string    `json:"canonical_id,omitempty"`
	DisplayName string    `json:"display_name"`
	MatchType   MatchType `json:"match_type"`
	Similarity  int       `json:"similarity"`
	IsREP       bool      `json:"is_rep,omitempty"`
	MatchedOn   string    `json:"matched_on,omitempty"`
}

// DefaultFuzzyThreshold is the minimum token-sort similarity for a fuzzy hit.
const DefaultFuzzyThreshold = 85

// nullPlaceholders are tenant-entered values that mean "no provider named".
var nullPlaceholders = map[string]bool{
	"n/a": true, "na": true, "none": true, "null": true, "unknown": true,
	"not applicable": true, "landlord": true, "included": true,
	"included in rent": true, "included in hoa": true, "hoa": true,
	"owner": true, "property": true, "management": true, "apt": true,
	"apartment": true, "complex": true, "community": true, "building": true,
	"self": true, "resident": true, "tenant": true, "renter": true,
	"occupant": true, "varies": true, "tbd": true, "pending": true,
	"see lease": true, "contact office": true, "ask management": true,
	"choose your electric here": true, "power to choose": true,
}

// propaneKeywords identify propane suppliers, which are never canonical gas
// utilities.
var propaneKeywords = []string{
	"amerigas", "suburban propane", "ferrellgas", "blue rhino",
	"propane", "bottled gas",
}

// exactOnlyNames are short, high-frequency names that collide badly under
// fuzzy matching and therefore require an exact alias hit.
var exactOnlyNames = map[string]bool{
	"peco": true, "aep": true, "duke": true,
}

// holdingCompanies is the denylist of corporate parents that must never be
// matching aliases. Cross-checked at load time.
var holdingCompanies = map[string]bool{
	"berkshire hathaway energy": true,
	"wec energy group":          true,
	"southern company":          true,
	"exelon":                    true,
	"nextera energy":            true,
	"eversource energy":         true,
	"entergy corporation":       true,
	"firstenergy corp":          true,
	"edison international":      true,
	"sempra energy":             true,
	"cms energy":                true,
	"alliant energy":            true,
	"avangrid":                  true,
	"ppl corporation":           true,
	"nisource":                  true,
	"agl resources":             true,
	"scana":                     true,
}

// texasREPs is the curated list of Texas Retail Electric Providers. REPs are
// resellers in the deregulated ERCOT market, not canonical utilities.
var texasREPs = map[string]bool{
	"txu energy": true, "reliant": true, "reliant energy": true,
	"green mountain energy": true, "direct energy": true, "gexa energy": true,
	"4change energy": true, "discount power": true, "cirro energy": true,
	"frontier utilities": true, "champion energy": true, "tara energy": true,
	"just energy": true, "ambit energy": true, "stream energy": true,
	"first choice power": true, "trieagle energy": true, "payless power": true,
	"bounce energy": true, "express energy": true, "pulse power": true,
	"rhythm energy": true, "rhythm": true, "chariot energy": true,
	"energy texas": true, "veteran energy": true, "now power": true,
	"amigo energy": true, "constellation": true, "constellation energy": true,
}

// casingOverrides fixes display casing for names that title-casing mangles.
var casingOverrides = map[string]string{
	"pg&e": "PG&E", "pge": "PG&E", "sce": "SCE", "sdg&e": "SDG&E",
	"sdge": "SDG&E", "socalgas": "SoCalGas", "comed": "ComEd",
	"cps energy": "CPS Energy", "aep": "AEP", "aep texas": "AEP Texas",
	"aep ohio": "AEP Ohio", "dte": "DTE", "dte energy": "DTE Energy",
	"pse&g": "PSE&G", "pseg": "PSE&G", "bge": "BGE", "bg&e": "BGE",
	"og&e": "OG&E", "oge": "OG&E", "lg&e": "LG&E", "lge": "LG&E",
	"fpl": "FPL", "ouc": "OUC", "jea": "JEA", "smud": "SMUD",
	"ladwp": "LADWP", "srp": "SRP", "aps": "APS", "tep": "TEP",
	"peco": "PECO",
}

var legalSuffixes = []string{
	" inc.", " inc", " llc", " l.l.c.", " corporation", " corp.", " corp",
	" company", " co.", " ltd.", " ltd", " incorporated",
}

var titleCaser = cases.Title(language.AmericanEnglish)

// Normalizer resolves raw provider strings against the canonical provider
// table. Immutable after construction; safe for concurrent readers.
type Normalizer struct {
	providers      map[string]model.CanonicalProvider
	aliasIndex     map[string]string // lowercased alias -> canonical key
	byEIA          map[int]string    // EIA id -> canonical key
	fuzzyThreshold int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithFuzzyThreshold overrides the default fuzzy-match threshold.
func WithFuzzyThreshold(t int) Option {
	return func(n *Normalizer) { n.fuzzyThreshold = t }
}

// New builds a Normalizer from a canonical provider map, validating the
// canonical-integrity invariants: no alias under two keys, no holding-company
// name as an alias.
func New(providers map[string]model.CanonicalProvider, opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		providers:      providers,
		aliasIndex:     make(map[string]string),
		byEIA:          make(map[int]string),
		fuzzyThreshold: DefaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(n)
	}

	for key, p := range providers {
		aliases := append([]string{key, p.DisplayName}, p.Aliases...)
		for _, alias := range aliases {
			low := cleanAliasKey(alias)
			if low == "" {
				continue
			}
			if holdingCompanies[low] {
				return nil, eris.Errorf("normalize: holding company %q listed as alias of %q", alias, key)
			}
			if prev, ok := n.aliasIndex[low]; ok && prev != key {
				return nil, eris.Errorf("normalize: alias %q maps to both %q and %q", alias, prev, key)
			}
			n.aliasIndex[low] = key
		}
		if p.EIAID != 0 {
			n.byEIA[p.EIAID] = key
		}
	}
	return n, nil
}

// LoadFile reads the versioned canonical provider JSON file and builds a
// Normalizer from it.
func LoadFile(path string, opts ...Option) (*Normalizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: read canonical file")
	}
	var providers map[string]model.CanonicalProvider
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, eris.Wrap(err, "normalize: parse canonical file")
	}
	return New(providers, opts...)
}

// Normalize resolves a single provider string. It never fails: unresolvable
// inputs degrade to a cleaned passthrough with MatchTypeNone.
func (n *Normalizer) Normalize(name string) Match {
	cleaned := strings.TrimSpace(name)
	low := cleanAliasKey(cleaned)
	if low == "" {
		return Match{MatchType: MatchTypeNone}
	}

	// 1. Exact alias hit.
	if key, ok := n.aliasIndex[low]; ok {
		return Match{
			CanonicalID: key,
			DisplayName: n.providers[key].DisplayName,
			MatchType:   MatchTypeExact,
			Similarity:  100,
			IsREP:       n.IsDeregulatedREP(cleaned),
			MatchedOn:   low,
		}
	}

	// 2. Null placeholders and propane suppliers terminate matching.
	if nullPlaceholders[low] {
		return Match{DisplayName: cleaned, MatchType: MatchTypeNullValue}
	}
	for _, kw := range propaneKeywords {
		if strings.Contains(low, kw) {
			return Match{DisplayName: cleaned, MatchType: MatchTypePropane}
		}
	}

	// 3. Fuzzy lookup across every alias, guarded against short strings and
	// known-distinct names that demand an exact hit.
	if !exactOnlyNames[low] {
		if m, ok := n.fuzzyLookup(cleaned, low); ok {
			return m
		}
	}

	// 4. Substring containment against aliases of length >= 4.
	if m, ok := n.substringLookup(cleaned, low); ok {
		return m
	}

	// 5. Passthrough.
	return Match{
		DisplayName: CleanDisplayName(cleaned),
		MatchType:   MatchTypeNone,
		IsREP:       n.IsDeregulatedREP(cleaned),
	}
}

// NormalizeMulti splits a raw string on commas and normalizes each non-empty
// segment independently. Tenant fields frequently hold multiple providers
// ("Oncor, TXU Energy").
func (n *Normalizer) NormalizeMulti(raw string) []Match {
	var matches []Match
	for _, seg := range strings.Split(raw, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		matches = append(matches, n.Normalize(seg))
	}
	return matches
}

// ProvidersMatch reports whether two raw strings refer to the same provider:
// same canonical id, mutual substring (both >= 4 chars), or exact
// case-insensitive equality.
func (n *Normalizer) ProvidersMatch(a, b string) bool {
	la := cleanAliasKey(a)
	lb := cleanAliasKey(b)
	if la == "" || lb == "" {
		return false
	}
	if la == lb {
		return true
	}
	ma := n.Normalize(a)
	mb := n.Normalize(b)
	if ma.CanonicalID != "" && ma.CanonicalID == mb.CanonicalID {
		return true
	}
	if len(la) >= 4 && len(lb) >= 4 &&
		(strings.Contains(la, lb) || strings.Contains(lb, la)) {
		return true
	}
	return false
}

// IsDeregulatedREP reports whether a name is a known Texas Retail Electric
// Provider.
func (n *Normalizer) IsDeregulatedREP(name string) bool {
	return texasREPs[cleanAliasKey(name)]
}

// Provider returns the canonical entry for a key.
func (n *Normalizer) Provider(key string) (model.CanonicalProvider, bool) {
	p, ok := n.providers[key]
	return p, ok
}

// ByEIAID returns the canonical key for an EIA utility id.
func (n *Normalizer) ByEIAID(id int) (string, bool) {
	key, ok := n.byEIA[id]
	return key, ok
}

// Providers exposes the full canonical map for invariant checks.
func (n *Normalizer) Providers() map[string]model.CanonicalProvider {
	return n.providers
}

func (n *Normalizer) fuzzyLookup(cleaned, low string) (Match, bool) {
	bestScore := 0
	var bestKey, bestAlias string
	for alias, key := range n.aliasIndex {
		score := TokenSortRatio(low, alias)
		if score < bestScore {
			continue
		}
		// Map order varies between runs; ties go to the smaller alias
		// string so equal-score inputs always resolve the same way.
		if score == bestScore && bestAlias != "" && alias > bestAlias {
			continue
		}
		bestScore, bestKey, bestAlias = score, key, alias
	}
	if bestScore < n.fuzzyThreshold {
		return Match{}, false
	}
	// Cross-match guard: very short strings fuzz onto everything.
	shorter := low
	if len(bestAlias) < len(shorter) {
		shorter = bestAlias
	}
	if len(shorter) <= 3 {
		return Match{}, false
	}
	return Match{
		CanonicalID: bestKey,
		DisplayName: n.providers[bestKey].DisplayName,
		MatchType:   MatchTypeFuzzy,
		Similarity:  bestScore,
		IsREP:       n.IsDeregulatedREP(cleaned),
		MatchedOn:   bestAlias,
	}, true
}

func (n *Normalizer) substringLookup(cleaned, low string) (Match, bool) {
	for alias, key := range n.aliasIndex {
		if len(alias) < 4 {
			continue
		}
		if strings.Contains(low, alias) || (len(low) >= 4 && strings.Contains(alias, low)) {
			return Match{
				CanonicalID: key,
				DisplayName: n.providers[key].DisplayName,
				MatchType:   MatchTypeSubstring,
				Similarity:  TokenSortRatio(low, alias),
				IsREP:       n.IsDeregulatedREP(cleaned),
				MatchedOn:   alias,
			}, true
		}
	}
	return Match{}, false
}

// IsNullValue reports whether a tenant-entered value is a null placeholder.
func IsNullValue(s string) bool {
	return nullPlaceholders[cleanAliasKey(s)] || strings.TrimSpace(s) == ""
}

// IsPropane reports whether a tenant-entered gas value names a propane
// supplier.
func IsPropane(s string) bool {
	low := cleanAliasKey(s)
	if low == "tank" {
		return true
	}
	for _, kw := range propaneKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// IsHoldingCompany reports membership in the curated holding-company set.
func IsHoldingCompany(name string) bool {
	return holdingCompanies[cleanAliasKey(name)]
}

// CleanDisplayName strips legal suffixes and fixes casing for passthrough
// display. ALL-CAPS inputs are title-cased; known initialisms keep their
// casing via the override table.
func CleanDisplayName(name string) string {
	cleaned := strings.TrimSpace(name)
	low := strings.ToLower(cleaned)
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(low, suffix) {
			cleaned = strings.TrimSpace(cleaned[:len(cleaned)-len(suffix)])
			low = strings.ToLower(cleaned)
			break
		}
	}
	if fixed, ok := casingOverrides[low]; ok {
		return fixed
	}
	if cleaned == strings.ToUpper(cleaned) && strings.ContainsAny(cleaned, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return titleCaser.String(strings.ToLower(cleaned))
	}
	return cleaned
}

// cleanAliasKey lowercases and strips trailing punctuation for index lookups.
func cleanAliasKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".,;: ")
}
