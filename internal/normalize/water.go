package normalize

import (
	"regexp"
	"strings"
)

// waterAliases maps EPA/SDWIS system names to the canonical municipal brand.
// The general canonical table is electric/gas only, so water carries its own
// small alias layer.
var waterAliases = map[string]string{
	"charlotte-mecklenburg utilities":          "Charlotte Water",
	"charlotte mecklenburg utility department": "Charlotte Water",
	"city of chicago department of water":      "Chicago Department of Water Management",
	"dekalb county water system":               "DeKalb County Watershed",
	"dallas water utilities department":        "Dallas Water Utilities",
	"city of houston public works":             "Houston Public Works",
	"san antonio water system board":           "San Antonio Water System",
	"phoenix municipal water system":           "City of Phoenix Water Services",
	"denver water board":                       "Denver Water",
	"metropolitan st louis sewer district":     "MSD Project Clear",
}

// waterAbbrevs expands common SDWIS shorthand. Longer keys first so "WSC"
// does not fire inside an already-expanded phrase.
var waterAbbrevs = []struct{ abbrev, full string }{
	{"WSC", "Water Supply Corporation"},
	{"MUD", "Municipal Utility District"},
	{"SUD", "Special Utility District"},
	{"PUD", "Public Utility District"},
	{"WTR", "Water"},
	{"UTIL", "Utilities"},
	{"DIST", "District"},
	{"AUTH", "Authority"},
	{"CNTY", "County"},
	{"TWP", "Township"},
}

var (
	trailingStateRe = regexp.MustCompile(`[\s,-]+\(?[A-Z]{2}\)?$`)
	commaFlipRe     = regexp.MustCompile(`^(.*),\s*(City|Town|Village|Borough|County) Of$`)
)

// waterKeywords identify strings that plausibly name a water utility rather
// than a subdivision or HOA.
var waterKeywords = []string{
	"water", "utility", "utilities", "municipal", "district", "mud",
	"wsc", "sud", "pud", "authority", "city of", "town of", "county",
	"works", "system", "board", "department", "aqua",
}

// NormalizeWaterName cleans an SDWIS/state-registry water system name:
// expands abbreviations, reverses comma-flipped entity names
// ("Gilbert, Town Of" -> "Town Of Gilbert"), strips trailing state tags,
// and applies the water alias table.
func NormalizeWaterName(name string) string {
	cleaned := strings.TrimSpace(name)
	if cleaned == "" {
		return ""
	}

	if alias, ok := waterAliases[strings.ToLower(cleaned)]; ok {
		return alias
	}

	cleaned = trailingStateRe.ReplaceAllString(cleaned, "")

	if m := commaFlipRe.FindStringSubmatch(titleIfCaps(cleaned)); m != nil {
		cleaned = m[2] + " Of " + strings.TrimSpace(m[1])
	}

	words := strings.Fields(cleaned)
	for i, w := range words {
		upper := strings.ToUpper(strings.Trim(w, ".,"))
		for _, ab := range waterAbbrevs {
			if upper == ab.abbrev {
				words[i] = ab.full
				break
			}
		}
	}
	cleaned = strings.Join(words, " ")

	if alias, ok := waterAliases[strings.ToLower(cleaned)]; ok {
		return alias
	}
	return titleIfCaps(cleaned)
}

// LooksLikeWaterUtility reports whether a name contains any water-utility
// keyword. State water registries sometimes return subdivision or HOA names;
// those lack every keyword and get filtered by the pipeline.
func LooksLikeWaterUtility(name string) bool {
	low := strings.ToLower(name)
	for _, kw := range waterKeywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}

// WaterNamesMatch is the lenient comparison used for water providers: token
// overlap after abbreviation expansion and generic-word removal.
func WaterNamesMatch(a, b string) bool {
	na := waterMatchKey(a)
	nb := waterMatchKey(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return TokenSetRatio(na, nb) >= 90
}

// waterGenericWords carry no identity ("water", "district", ...) and are
// removed before comparison.
var waterGenericWords = map[string]bool{
	"water": true, "utilities": true, "utility": true, "district": true,
	"municipal": true, "department": true, "system": true, "supply": true,
	"corporation": true, "company": true, "authority": true, "public": true,
	"works": true, "services": true, "service": true, "board": true,
	"the": true, "of": true, "city": true, "town": true,
}

func waterMatchKey(name string) string {
	var kept []string
	for _, t := range Tokens(NormalizeWaterName(name)) {
		if !waterGenericWords[t] {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

func titleIfCaps(s string) string {
	if s == strings.ToUpper(s) && strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return titleCaser.String(strings.ToLower(s))
	}
	return s
}
