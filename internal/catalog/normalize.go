package catalog

import (
	"regexp"
	"strings"
)

// aliases maps well-known abbreviations to the catalog's full names. Keys are
// compared with '&', '-', and spaces squashed out.
var aliases = map[string]string{
	"sce":               "southern california edison",
	"socalgaz":          "southern california gas",
	"socalgas":          "southern california gas",
	"sdg&e":             "san diego gas electric",
	"sdge":              "san diego gas electric",
	"pg&e":              "pg e",
	"pge":               "pg e",
	"pse&g":             "pse g",
	"pseg":              "pse g",
	"cemc":              "cumberland electric membership",
	"lge":               "louisville gas electric",
	"lg&e":              "louisville gas electric",
	"lge ku":            "louisville gas electric",
	"lgeku":             "louisville gas electric",
	"lg&e/ku":           "louisville gas electric",
	"bge":               "baltimore gas electric",
	"dte":               "dte energy",
	"aps":               "arizona public service",
	"tep":               "tucson electric power",
	"nstar":             "eversource",
	"rge":               "rochester gas electric",
	"rg&e":              "rochester gas electric",
	"nyseg":             "new york state electric gas",
	"jcp&l":             "jersey central power light",
	"jcpl":              "jersey central power light",
	"pepco":             "potomac electric power",
	"eastohiogas":       "enbridge gas ohio",
	"dominioneastohio":  "enbridge gas ohio",
	"sceg":              "dominion energy south carolina",
	"sce&g":             "dominion energy south carolina",
	"srp":               "salt river project",
	"ladwp":             "los angeles department of water power",
	"tnmp":              "texas new mexico power",
	"chelco":            "choctawhatchee electric cooperative",
}

// rebrands are applied as plain substring substitutions, covering corporate
// renames and HIFLD territory labels that differ from the billing name.
var rebrands = []struct{ from, to string }{
	{"east ohio gas", "enbridge gas ohio"},
	{"dominion east ohio", "enbridge gas ohio"},
	{"little rock pine bluff", "entergy arkansas"},
	{"cheyenne light fuel & power", "black hills energy"},
	{"cheyenne light fuel power", "black hills energy"},
}

// rewriteRules replace the whole working string when every `need` substring
// is present and, if set, at least one `anyOf` substring. They absorb the
// EPA/SDWIS and HIFLD naming quirks that defeat fuzzy matching.
var rewriteRules = []struct {
	need   []string
	anyOf  []string
	result string
}{
	{need: []string{"jones", "onslow"}, anyOf: []string{"emc", "electric"}, result: "jones onslow electric membership"},
	{need: []string{"intermountain gas"}, result: "intermountain gas"},
	{need: []string{"upper cumberland e m c"}, result: "upper cumberland electric membership"},
	{need: []string{"upper cumberland emc"}, result: "upper cumberland electric membership"},
	{need: []string{"wisconsin rapids waterworks"}, result: "wisconsin rapids water works lighting commission"},
	{need: []string{"philadelphia water"}, result: "city of philadelphia"},
	{need: []string{"citizens water", "indianapolis"}, result: "citizens energy"},
	{need: []string{"fort wayne", "3 rivers"}, result: "fort wayne city utilities"},
	{need: []string{"pittsburgh", "w and s"}, result: "pittsburgh water sewer authority"},
	{need: []string{"pittsburgh", "water", "sewer"}, result: "pittsburgh water sewer authority"},
	{need: []string{"sarasota", "special"}, result: "sarasota county water"},
	{need: []string{"augusta", "richmond"}, result: "augusta utility"},
	{need: []string{"north las vegas"}, anyOf: []string{"util", "water"}, result: "city of north las vegas"},
	{need: []string{"cal am water"}, result: "california american water"},
	{need: []string{"cal american water"}, result: "california american water"},
	{need: []string{"acsa", "urban"}, result: "albemarle county service authority"},
	{need: []string{"okaloosa"}, anyOf: []string{"wtr", "water"}, result: "okaloosa county water sewer"},
	{need: []string{"global water", "santa cruz"}, result: "global water resources"},
	{need: []string{"west view"}, anyOf: []string{"muni", "auth"}, result: "west view water authority"},
	{need: []string{"saws"}, result: "san antonio water system"},
	{need: []string{"charles county", "dpw"}, result: "charles county department of public works"},
	{need: []string{"greer cpw"}, result: "greer commission of public works"},
	{need: []string{"greer", "commission"}, result: "greer commission of public works"},
	{need: []string{"pwcsa"}, result: "prince william water"},
	{need: []string{"coachella"}, anyOf: []string{"vwd", "valley"}, result: "coachella valley water district"},
	{need: []string{"elsinore"}, anyOf: []string{"mwd", "valley"}, result: "elsinore valley municipal water district"},
	{need: []string{"skagit"}, anyOf: []string{"pud", "county"}, result: "skagit public utility district"},
	{need: []string{"goforth", "sud"}, result: "goforth special utility district"},
	{need: []string{"consolidated mutual"}, result: "consolidated mutual water"},
	{need: []string{"smyrna", "natural gas"}, result: "smyrna utilities department"},
	{need: []string{"rio grande valley gas"}, result: "rio grande valley gas"},
	{need: []string{"charlotte", "mecklenburg"}, result: "charlotte water"},
	{need: []string{"winston", "salem"}, anyOf: []string{"water", "city"}, result: "city of winston salem"},
	{need: []string{"chaparral city water"}, result: "epcor water arizona"},
	{need: []string{"az water co"}, result: "epcor water arizona"},
	{need: []string{"arizona water co"}, result: "epcor water arizona"},
}

// americanWaterStates expands the state prefixes American Water subsidiaries
// file under ("Mo American Water Co", "Mo American St Louis St Charles
// Counties" -> "missouri american water").
var americanWaterStates = []struct{ abbrev, full string }{
	{"mo ", "missouri "}, {"pa ", "pennsylvania "}, {"in ", "indiana "},
	{"wv ", "west virginia "}, {"tn ", "tennessee "}, {"il ", "illinois "},
	{"ia ", "iowa "}, {"nj ", "new jersey "}, {"va ", "virginia "},
	{"ca ", "california "}, {"ky ", "kentucky "}, {"md ", "maryland "},
}

var (
	amerWordRe      = regexp.MustCompile(`\bamer\b`)
	awDistrictRe    = regexp.MustCompile(`\s+(pittsburgh|st louis|st charles|chattanooga|southeast|northwest|monterey)[\w\s]*$`)
	dashStateTagRe  = regexp.MustCompile(`(?i)\s*[-–]\s*\(?[a-z]{2}\)?\s*$`)
	parenStateTagRe = regexp.MustCompile(`(?i)\s*\([a-z]{2}\)\s*$`)
	punctRe         = regexp.MustCompile(`[^\w\s]`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

var legalSuffixes = []string{
	" corporation", " corp", " inc", " llc", " co-op", " co op",
	" company", " electric delivery",
}

// abbrevExpansions expand HIFLD truncations as whole words, so "coop" grows
// into "cooperative" without mangling names already spelled out.
var abbrevExpansions = []struct {
	re *regexp.Regexp
	to string
}{
	{regexp.MustCompile(`\belec\b`), "electric"},
	{regexp.MustCompile(`electric member\b`), "electric membership"},
	{regexp.MustCompile(`\bcoop\b`), "cooperative"},
	{regexp.MustCompile(`\bpwr\b`), "power"},
	{regexp.MustCompile(`\bsvcs\b`), "services"},
	{regexp.MustCompile(`\bsvc\b`), "service"},
	{regexp.MustCompile(`\butils\b`), "utilities"},
	{regexp.MustCompile(`\butil\b`), "utilities"},
}

func squash(s string) string {
	s = strings.ReplaceAll(s, "&", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	return strings.ReplaceAll(s, " ", "")
}

var squashedAliases = func() map[string]string {
	m := make(map[string]string, len(aliases))
	for k, v := range aliases {
		m[squash(k)] = v
	}
	return m
}()

// NormalizeTitle reduces a provider title to its matching form: lowercase,
// abbreviations expanded, rebrands applied, legal suffixes and trailing state
// tags removed, punctuation collapsed.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))

	for _, a := range abbrevExpansions {
		t = a.re.ReplaceAllString(t, a.to)
	}

	for _, r := range rebrands {
		t = strings.ReplaceAll(t, r.from, r.to)
	}
	for _, rule := range rewriteRules {
		if matchesRule(t, rule.need, rule.anyOf) {
			t = rule.result
		}
	}
	t = expandAmericanWater(t)

	if full, ok := squashedAliases[squash(t)]; ok {
		t = full
	}

	t = dashStateTagRe.ReplaceAllString(t, "")
	t = parenStateTagRe.ReplaceAllString(t, "")
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(t, suffix) {
			t = strings.TrimSuffix(t, suffix)
		}
	}

	t = punctRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(t, " "))
}

func matchesRule(t string, need, anyOf []string) bool {
	for _, n := range need {
		if !strings.Contains(t, n) {
			return false
		}
	}
	if len(anyOf) == 0 {
		return true
	}
	for _, a := range anyOf {
		if strings.Contains(t, a) {
			return true
		}
	}
	return false
}

func expandAmericanWater(t string) string {
	if !strings.Contains(t, "amer") {
		return t
	}
	t = amerWordRe.ReplaceAllString(t, "american")
	for _, st := range americanWaterStates {
		if !strings.HasPrefix(t, st.abbrev) {
			continue
		}
		rest := t[len(st.abbrev):]
		if len(rest) > 12 {
			rest = rest[:12]
		}
		if strings.Contains(rest, "american") {
			return st.full + "american water"
		}
	}
	return t
}
