// Package batch validates engine output against tenant-verified ground truth
// and produces the classification report used to tune the pipeline.
package batch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

// Category classifies one engine-vs-tenant comparison.
type Category string

const (
	CategoryMatch         Category = "MATCH"
	CategoryMatchTDU      Category = "MATCH_TDU"
	CategoryMatchParent   Category = "MATCH_PARENT"
	CategoryMatchAlt      Category = "MATCH_ALT"
	CategoryMismatch      Category = "MISMATCH"
	CategoryEngineOnly    Category = "ENGINE_ONLY"
	CategoryTenantOnly    Category = "TENANT_ONLY"
	CategoryBothEmpty     Category = "BOTH_EMPTY"
	CategoryTenantNull    Category = "TENANT_NULL"
	CategoryTenantPropane Category = "TENANT_PROPANE"
)

// Matched reports whether the category counts toward accuracy.
func (c Category) Matched() bool {
	switch c {
	case CategoryMatch, CategoryMatchTDU, CategoryMatchParent, CategoryMatchAlt:
		return true
	}
	return false
}

// Contested reports whether the category enters the accuracy denominator.
// No-contest rows (nulls, propane, one-sided data) are excluded.
func (c Category) Contested() bool {
	return c.Matched() || c == CategoryMismatch
}

// tduNames flag Texas TDU infrastructure providers. Tenants in deregulated
// territory report their REP instead, which is not a disagreement.
var tduNames = []string{
	"ONCOR", "ONCOR ELECTRIC DELIVERY",
	"CENTERPOINT", "CENTERPOINT ENERGY",
	"AEP TEXAS", "AEP TEXAS CENTRAL", "AEP TEXAS NORTH",
	"TEXAS-NEW MEXICO POWER", "TNMP",
	"LUBBOCK POWER", "LUBBOCK P&L",
	"BLUEBONNET ELECTRIC", "BLUEBONNET ELEC",
}

// crossStateOverrides are known shapefile errors: the polygon extends into a
// state where the utility does not operate. Engine hits there are forced
// mismatches regardless of what the tenant entered.
var crossStateOverrides = []struct {
	nameSubstring string
	state         string
}{
	{"public service company of new mexico", "NH"},
	{"public service company of new mexico", "VT"},
	{"public service company of new mexico", "MA"},
	{"public service company of new mexico", "CT"},
	{"public service company of new mexico", "ME"},
	{"nicor gas", "GA"},
	{"nicor gas", "SC"},
	{"nicor gas", "TN"},
	{"nicor gas", "NC"},
}

// gasOnlyProviders must never appear in electric results.
var gasOnlyProviders = map[string]bool{
	"intermountain gas": true,
}

// electricKeywordsInGas mark tenant gas fields that actually name an electric
// company. Counted as a match: the tenant error, not the engine's.
var electricKeywordsInGas = []string{
	"electric", " emc", "membership corp", "power company",
	"duke energy", "rocky mountain power", "xcel energy",
}

// Georgia's deregulated gas market mirrors the TX electric split: LDCs own
// the pipes, marketers sell the gas.
var gaGasLDCNames = []string{
	"nicor gas", "atlanta gas light", "liberty utilities", "atmos energy",
}

var gaGasMarketerNames = []string{
	"georgia natural gas", "scana energy", "gas south", "constellation",
	"constellation energy", "infinite energy", "xoom energy", "xoom",
	"stream energy", "stream", "santanna energy", "volunteer energy",
	"true natural gas", "true gas", "walton emc natural gas",
	"snapping shoals emc natural gas", "sawnee emc", "fuel georgia",
}

// parentGroups drive MATCH_PARENT: names that differ but share a corporate
// parent. Curated from mismatch review, not exhaustive.
var parentGroups = map[string][]string{
	"Dominion Energy": {
		"Dominion Virginia Power", "Dominion Energy Virginia",
		"Dominion Energy", "Dominion NC", "Dominion Energy South Carolina",
		"Dominion Energy Ohio", "Questar Gas", "Virginia Natural Gas",
		"Dominion",
	},
	"Duke Energy": {
		"Duke Energy", "Duke Energy Carolinas", "Duke Energy Progress",
		"Duke Energy Indiana", "Duke Energy Ohio", "Duke Energy Florida",
		"Piedmont Natural Gas", "Duke",
	},
	"Southern Company": {
		"Georgia Power", "Alabama Power", "Mississippi Power", "Gulf Power",
		"Southern Company",
	},
	"Eversource": {
		"Eversource", "Eversource CT", "Eversource MA", "Eversource NH",
		"NSTAR", "Yankee Gas", "Yankee Gas Service", "United Illuminating",
	},
	"WEC Energy": {
		"We Energies", "Wisconsin Public Service", "Peoples Gas",
		"North Shore Gas", "WEC Energy",
	},
	"Xcel Energy": {
		"Xcel Energy", "Northern States Power",
		"Public Service Company of Colorado", "Southwestern Public Service",
	},
	"FirstEnergy": {
		"FirstEnergy", "Ohio Edison", "Cleveland Illuminating",
		"Cleveland Electric Illum", "Cleveland Electric Illuminating",
		"The Illuminating Company", "Illuminating Company",
		"Toledo Edison", "Mon Power", "Monongahela Power", "Potomac Edison",
		"West Penn Power", "West Penn Power Company",
		"Jersey Central P&L", "Met-Ed", "Penelec",
	},
	"AEP": {
		"AEP", "AEP Ohio", "AEP Texas Central", "AEP Texas North",
		"AEP Texas", "Appalachian Power", "Indiana Michigan Power",
		"Kentucky Power", "Public Service Company of Oklahoma",
		"Southwestern Electric Power",
	},
	"Exelon": {
		"Exelon", "ComEd", "Commonwealth Edison", "PECO", "PECO Energy",
		"BGE", "Baltimore Gas and Electric", "Pepco",
		"Potomac Electric Power", "Delmarva Power", "Atlantic City Electric",
	},
	"PSE&G": {
		"PSE&G", "PSEG", "Public Service Electric and Gas",
		"Public Service Enterprise Group",
	},
	"National Grid": {
		"National Grid", "National Grid MA", "KeySpan", "New England Power",
	},
	"Entergy": {
		"Entergy", "Entergy Arkansas", "Entergy Louisiana",
		"Entergy Mississippi", "Entergy New Orleans", "Entergy Texas",
	},
	"Sempra": {
		"SDG&E", "San Diego Gas & Electric", "SoCalGas",
		"Southern California Gas",
	},
	"PG&E": {
		"PG&E", "Pacific Gas and Electric", "Pacific Gas & Electric",
	},
	"Con Edison": {
		"Con Edison", "ConEd", "Consolidated Edison",
		"Orange and Rockland", "O&R",
	},
	"Alliant Energy": {
		"Alliant Energy", "Wisconsin Power & Light",
		"Wisconsin Power And Light", "Interstate Power and Light", "IPL",
	},
	"Enbridge": {
		"Enbridge Gas", "Enbridge Gas Ohio",
		"Enbridge Gas North Carolina", "Enbridge Gas NC",
		"Public Service NC", "Public Service Company of North Carolina",
		"PSNC Energy", "Vectren Energy", "Vectren",
	},
	"Gas South": {
		"Gas South", "Gas South Avalon", "Nicor Gas",
	},
	"Hawaiian Electric": {
		"Hawaiian Electric", "Hawaiian Electric Company",
		"Hawaii Electric Light", "Hawaii Electric Light Company",
		"HELCO", "Maui Electric", "MECO",
	},
	"Seattle Utilities": {
		"Seattle City Light", "Seattle Public Utilities",
	},
	"Columbia Gas": {
		"Columbia Gas", "Columbia Gas VA", "Columbia Gas of Virginia",
		"Columbia Gas of Pennsylvania", "Columbia Gas of Ohio",
		"Columbia Gas of Maryland",
	},
}

// electricAliases fold tenant spellings onto one comparison key. Keys and
// values are lowercase.
var electricAliases = map[string]string{
	"alabama power - al":                     "alabama power",
	"city of lubbock - tx":                   "city of lubbock",
	"lubbock power & light - tx":             "city of lubbock",
	"city of seguin - tx":                    "city of seguin",
	"seguin, tx":                             "city of seguin",
	"duke energy corporation":                "duke energy",
	"duke-energy":                            "duke energy",
	"easton utilities - md":                  "easton utilities",
	"easton utilities commision - md":        "easton utilities",
	"eugene water & electric board":          "eugene water and electric board",
	"eugene water and electric board (eweb)": "eugene water and electric board",
	"fpl. palm coast (fl)":                   "florida power and light",
	"gulf power company (now fpl) - fl":      "florida power and light",
	"idaho power - id":                       "idaho power",
	"lg&e kentucky utilities":                "louisville gas and electric",
	"lg&e/ku":                                "louisville gas and electric",
	"lge/ku":                                 "louisville gas and electric",
	"lge ku":                                 "louisville gas and electric",
	"lgeku":                                  "louisville gas and electric",
	"lg&e and ku":                            "louisville gas and electric",
	"lg&e and ku energy":                     "louisville gas and electric",
	"kentucky utilities":                     "louisville gas and electric",
	"kentucky utilities company":             "louisville gas and electric",
	"louisville gas & electric":              "louisville gas and electric",
	"louisville gas and electric - ky":       "louisville gas and electric",
	"memphis light, gas & water":             "memphis light, gas and water",
	"ppl electric utilities - pa":            "ppl electric utilities",
	"public service of oklahoma":             "public service company of oklahoma",
	"rhode island energy - ri":               "rhode island energy",
	"rhode island energy-ri":                 "rhode island energy",
	"surry-yadkin emc - nc":                  "surry-yadkin emc",
	"tennessee valley authority (tva)":       "tennessee valley authority",
	"town of apex - nc":                      "town of apex",
}

var gasAliases = map[string]string{
	"colombia gas of pennsylvania-pa":     "columbia gas of pennsylvania",
	"enbridge ohio":                       "enbridge gas ohio",
	"gas south avalon":                    "gas south",
	"georgia natural gas - avalon 2024":   "georgia natural gas",
	"georgia natural gas-atlanta area pm": "georgia natural gas",
	"liberty (nh)":                        "liberty utilities-nh",
	"liberty utilities (nh)":              "liberty utilities-nh",
	"liberty utilities - nh":              "liberty utilities-nh",
	"mdu (montana-dakota utilities)":      "montana-dakota utilities",
	"montana-dakota utilities co":         "montana-dakota utilities",
	"north western energy - mt":           "northwestern energy",
	"northwestern energy (mt)":            "northwestern energy",
	"peoples gas - pa":                    "peoples gas",
	"ugi utilities inc - pa":              "ugi utilities inc",
}

// nameToParent is the reverse index of parentGroups, lowercase.
var nameToParent = func() map[string]string {
	idx := make(map[string]string)
	for parent, names := range parentGroups {
		for _, n := range names {
			idx[strings.ToLower(n)] = parent
		}
	}
	return idx
}()

// stripPatterns remove generic and locational words before the core-name
// comparison ("Pud No 1 Of Clark County - (Wa)" vs "Clark Public Utilities").
var stripPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*-\s*\([a-z]{2}\)`),
	regexp.MustCompile(`\s*\([a-z]{2}\)`),
	regexp.MustCompile(`\bpud no \d+ of\b`),
	regexp.MustCompile(`\bcity of\b`),
	regexp.MustCompile(`\btown of\b`),
	regexp.MustCompile(`\binc\.?\b`),
	regexp.MustCompile(`\bcorp\.?\b`),
	regexp.MustCompile(`\bco\.?\b`),
	regexp.MustCompile(`\bllc\b`),
	regexp.MustCompile(`\belectric\b`),
	regexp.MustCompile(`\benergy\b`),
	regexp.MustCompile(`\bpower\b`),
	regexp.MustCompile(`\butilities\b`),
	regexp.MustCompile(`\bcooperative\b`),
	regexp.MustCompile(`\bcoop\b`),
	regexp.MustCompile(`\bmember\b`),
	regexp.MustCompile(`\bcorporation\b`),
}

var spaceRe = regexp.MustCompile(`\s+`)

// Comparison is the outcome of classifying one engine-vs-tenant pair.
type Comparison struct {
	Category Category
	Detail   string
	// TenantNormalized joins the tenant's comma-separated segments with " | ".
	TenantNormalized string
}

// Comparator classifies engine results against tenant-verified records.
// Immutable after construction; safe for concurrent use.
type Comparator struct {
	norm *normalize.Normalizer
}

// NewComparator builds a Comparator over the canonical normalizer.
func NewComparator(norm *normalize.Normalizer) *Comparator {
	return &Comparator{norm: norm}
}

// Compare classifies one utility slot. Tenant fields hold free text, often
// several providers at once ("Energy Texas, TXU Energy").
func (c *Comparator) Compare(engineName, tenantRaw string, utility model.UtilityType, state string, alternatives []model.Alternative) Comparison {
	tenantClean := strings.TrimSpace(tenantRaw)

	if engineName == "" && tenantClean == "" {
		return Comparison{Category: CategoryBothEmpty}
	}
	if isTenantNull(tenantClean) {
		if engineName != "" {
			return Comparison{Category: CategoryEngineOnly}
		}
		if tenantClean == "" {
			return Comparison{Category: CategoryBothEmpty}
		}
		return Comparison{Category: CategoryTenantNull, Detail: "null=" + tenantClean}
	}
	if utility == model.UtilityGas && normalize.IsPropane(tenantClean) {
		return Comparison{Category: CategoryTenantPropane, Detail: "propane=" + tenantClean}
	}
	if engineName == "" {
		return Comparison{Category: CategoryTenantOnly, Detail: "no_polygon_hit", TenantNormalized: tenantClean}
	}

	segments := c.segments(tenantClean)
	tenantNorm := strings.Join(originals(segments), " | ")

	for _, seg := range segments {
		if c.segmentMatches(engineName, seg, utility) {
			return Comparison{Category: CategoryMatch, TenantNormalized: tenantNorm}
		}
	}

	// Deregulated Texas electric: the engine names the wires company, the
	// tenant names whoever sends the bill.
	if strings.EqualFold(state, "TX") && utility == model.UtilityElectric && isTDU(engineName) && len(segments) > 0 {
		return Comparison{
			Category:         CategoryMatchTDU,
			Detail:           fmt.Sprintf("tdu=%s, rep=%s", engineName, tenantNorm),
			TenantNormalized: tenantNorm,
		}
	}

	// Deregulated Georgia gas: LDC vs marketer, either direction.
	if strings.EqualFold(state, "GA") && utility == model.UtilityGas {
		engLower := strings.ToLower(engineName)
		tenLower := strings.ToLower(tenantNorm)
		if (containsAny(engLower, gaGasLDCNames) && containsAny(tenLower, gaGasMarketerNames)) ||
			(containsAny(engLower, gaGasMarketerNames) && containsAny(tenLower, gaGasLDCNames)) {
			return Comparison{
				Category:         CategoryMatchTDU,
				Detail:           fmt.Sprintf("ga_gas_deregulated: ldc=%s, marketer=%s", engineName, tenantNorm),
				TenantNormalized: tenantNorm,
			}
		}
	}

	if parent := c.parentMatch(engineName, segments); parent != "" {
		return Comparison{
			Category:         CategoryMatchParent,
			Detail:           "parent=" + parent,
			TenantNormalized: tenantNorm,
		}
	}

	for _, alt := range alternatives {
		if alt.Provider == "" {
			continue
		}
		for _, seg := range segments {
			if c.segmentMatches(alt.Provider, seg, utility) {
				return Comparison{
					Category:         CategoryMatchAlt,
					Detail:           fmt.Sprintf("alt=%s, primary=%s", alt.Provider, engineName),
					TenantNormalized: tenantNorm,
				}
			}
		}
	}

	engineLower := strings.ToLower(engineName)
	stateUpper := strings.ToUpper(state)
	for _, o := range crossStateOverrides {
		if strings.Contains(engineLower, o.nameSubstring) && stateUpper == o.state {
			return Comparison{
				Category:         CategoryMismatch,
				Detail:           fmt.Sprintf("cross_state_override: engine=%s wrong for %s", engineName, stateUpper),
				TenantNormalized: tenantNorm,
			}
		}
	}
	if utility == model.UtilityElectric && gasOnlyProviders[engineLower] {
		return Comparison{
			Category:         CategoryMismatch,
			Detail:           "gas_provider_in_electric: engine=" + engineName,
			TenantNormalized: tenantNorm,
		}
	}

	if utility == model.UtilityGas {
		tenLower := strings.ToLower(tenantNorm)
		for _, kw := range electricKeywordsInGas {
			if strings.Contains(tenLower, kw) {
				return Comparison{
					Category:         CategoryMatch,
					Detail:           "tenant_electric_in_gas: tenant=" + tenantNorm,
					TenantNormalized: tenantNorm,
				}
			}
		}
	}

	return Comparison{
		Category:         CategoryMismatch,
		Detail:           fmt.Sprintf("engine=%s vs tenant=%s", engineName, tenantNorm),
		TenantNormalized: tenantNorm,
	}
}

// segment is one comma-separated slice of the tenant field, with the
// normalizer's view of it.
type segment struct {
	original string
	display  string
}

func (c *Comparator) segments(tenantRaw string) []segment {
	var segs []segment
	for _, part := range strings.Split(tenantRaw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s := segment{original: part, display: part}
		if m := c.norm.Normalize(part); m.DisplayName != "" {
			s.display = m.DisplayName
		}
		segs = append(segs, s)
	}
	return segs
}

func originals(segs []segment) []string {
	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.original
	}
	return names
}

// segmentMatches tries every strategy against both the tenant's original text
// and the normalizer's display form.
func (c *Comparator) segmentMatches(engineName string, seg segment, utility model.UtilityType) bool {
	names := []string{seg.original}
	if seg.display != seg.original {
		names = append(names, seg.display)
	}
	for _, n := range names {
		if c.namesMatch(engineName, n) {
			return true
		}
		switch utility {
		case model.UtilityWater, model.UtilitySewer:
			if normalize.WaterNamesMatch(engineName, n) {
				return true
			}
		case model.UtilityElectric:
			if resolveAlias(electricAliases, engineName) == resolveAlias(electricAliases, n) {
				return true
			}
		case model.UtilityGas:
			if resolveAlias(gasAliases, engineName) == resolveAlias(gasAliases, n) {
				return true
			}
		}
	}
	return false
}

// namesMatch layers the comparison strategies: exact, substring (>= 4 chars),
// stripped-core, then the canonical table.
func (c *Comparator) namesMatch(engineName, tenantName string) bool {
	e := strings.ToLower(strings.TrimSpace(engineName))
	t := strings.ToLower(strings.TrimSpace(tenantName))
	if e == "" || t == "" {
		return false
	}
	if e == t {
		return true
	}
	if len(e) >= 4 && len(t) >= 4 && (strings.Contains(e, t) || strings.Contains(t, e)) {
		return true
	}

	eCore := stripCore(e)
	tCore := stripCore(t)
	if len(eCore) >= 4 && len(tCore) >= 4 &&
		(eCore == tCore || strings.Contains(eCore, tCore) || strings.Contains(tCore, eCore)) {
		return true
	}

	em := c.norm.Normalize(engineName)
	tm := c.norm.Normalize(tenantName)
	if em.CanonicalID != "" && em.CanonicalID == tm.CanonicalID {
		return true
	}
	return c.norm.ProvidersMatch(engineName, tenantName)
}

// parentMatch reports the shared parent group, checking both directions and
// both tenant name forms.
func (c *Comparator) parentMatch(engineName string, segs []segment) string {
	engineParent := parentOf(engineName)
	if engineParent == "" {
		return ""
	}
	for _, seg := range segs {
		for _, n := range []string{seg.original, seg.display} {
			if p := parentOf(n); p != "" && p == engineParent {
				return p
			}
		}
	}
	return ""
}

func parentOf(name string) string {
	if name == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	if p, ok := nameToParent[lower]; ok {
		return p
	}
	for n, p := range nameToParent {
		if strings.Contains(lower, n) || strings.Contains(n, lower) {
			return p
		}
	}
	return ""
}

func stripCore(lower string) string {
	for _, re := range stripPatterns {
		lower = re.ReplaceAllString(lower, "")
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(lower, " "))
}

// isTenantNull extends the normalizer's placeholder set with the length
// heuristic: one or two characters never name a company.
func isTenantNull(value string) bool {
	clean := strings.TrimSpace(value)
	if normalize.IsNullValue(clean) {
		return true
	}
	return len(strings.ToLower(clean)) <= 2
}

func isTDU(name string) bool {
	upper := strings.ToUpper(name)
	for _, tdu := range tduNames {
		if strings.Contains(upper, tdu) {
			return true
		}
	}
	return false
}

func resolveAlias(table map[string]string, name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if resolved, ok := table[lower]; ok {
		return resolved
	}
	return lower
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
