package catalog

import (
	"regexp"
	"strings"

	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

// Match method constants, in descending order of authority.
const (
	MethodOverride      = "override"
	MethodExact         = "exact"
	MethodStateSpecific = "state_specific"
	MethodFuzzy         = "fuzzy"
	MethodFuzzySet      = "fuzzy_set"
	MethodNone          = "none"
)

// ConfidentScore is the minimum match score considered reliable.
const ConfidentScore = 85

// Match is a resolved catalog assignment.
type Match struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Score     int    `json:"match_score"`
	Method    string `json:"match_method"`
	Confident bool   `json:"confident"`
}

// IDOverride pins a provider name to a catalog ID. Overrides come from the
// corrections store.
type IDOverride struct {
	ProviderName string
	Utility      model.UtilityType
	CatalogID    int
}

type overrideKey struct {
	normalized string
	utility    model.UtilityType
}

// Matcher resolves display names against the catalog.
type Matcher struct {
	catalog   *Catalog
	overrides map[overrideKey]*Entry
}

// NewMatcher builds a Matcher over a loaded catalog.
func NewMatcher(c *Catalog) *Matcher {
	return &Matcher{
		catalog:   c,
		overrides: make(map[overrideKey]*Entry),
	}
}

// SetOverrides installs mapper ID corrections. Overrides referencing unknown
// catalog IDs are skipped.
func (m *Matcher) SetOverrides(overrides []IDOverride) {
	applied := 0
	for _, o := range overrides {
		entry, ok := m.catalog.byID[o.CatalogID]
		if !ok {
			zap.L().Warn("catalog: override references unknown id",
				zap.String("provider", o.ProviderName),
				zap.Int("catalog_id", o.CatalogID),
			)
			continue
		}
		m.overrides[overrideKey{NormalizeTitle(o.ProviderName), o.Utility}] = entry
		applied++
	}
	if applied > 0 {
		zap.L().Info("catalog: id overrides installed", zap.Int("count", applied))
	}
}

var capsWordRe = regexp.MustCompile(`[A-Z]+`)

// Match resolves a provider name to a catalog entry, or nil when nothing
// clears the thresholds. State narrows ambiguous names ("City of Monroe")
// to the entry carrying that state tag in its title.
func (m *Matcher) Match(providerName string, utility model.UtilityType, state string) *Match {
	if providerName == "" {
		return nil
	}
	candidates := m.catalog.ofType(utility)
	if len(candidates) == 0 {
		return nil
	}
	normalized := NormalizeTitle(providerName)
	if normalized == "" {
		return nil
	}

	if entry, ok := m.overrides[overrideKey{normalized, utility}]; ok {
		return result(entry, 100, MethodOverride)
	}

	for _, e := range candidates {
		if e.normalized == normalized {
			return result(e, 100, MethodExact)
		}
	}

	if state != "" {
		if best, score := bestScored(normalized, candidates, 70, func(e *Entry) bool {
			return containsToken(capsWordRe.FindAllString(strings.ToUpper(e.Title), -1), strings.ToUpper(state))
		}, normalize.TokenSortRatio); best != nil {
			return result(best, score, MethodStateSpecific)
		}
	}

	if best, score := bestScored(normalized, candidates, 82, nil, normalize.TokenSortRatio); best != nil {
		return result(best, score, MethodFuzzy)
	}

	// Token-set forgives extra words: "Duke Energy Carolinas" -> "Duke Energy".
	if best, score := bestScored(normalized, candidates, 90, nil, normalize.TokenSetRatio); best != nil {
		return result(best, score, MethodFuzzySet)
	}

	return nil
}

// AttachAll runs Match over a result and its alternatives, best-effort.
func (m *Matcher) AttachAll(r *model.ProviderResult, state string) {
	if r == nil {
		return
	}
	if match := m.Match(r.DisplayName, r.Utility, state); match != nil {
		r.CatalogID = match.ID
		r.CatalogTitle = match.Title
		r.IDMatchScore = match.Score
		r.IDConfident = match.Confident
		if r.Phone == "" {
			r.Phone = match.Phone
		}
		if r.Website == "" {
			r.Website = match.URL
		}
	}
	for i := range r.Alternatives {
		if match := m.Match(r.Alternatives[i].Provider, r.Utility, state); match != nil {
			r.Alternatives[i].CatalogID = match.ID
		}
	}
}

// Loaded reports whether the underlying catalog has entries.
func (m *Matcher) Loaded() bool { return m.catalog.Loaded() }

// bestScored returns the highest-scoring candidate at or above cutoff. Equal
// scores are broken by Jaro-Winkler distance on the normalized forms, which
// favors shared prefixes the token ratios ignore.
func bestScored(input string, candidates []*Entry, cutoff int, filter func(*Entry) bool, ratio func(a, b string) int) (*Entry, int) {
	var best *Entry
	bestScore := 0
	bestJW := 0.0
	for _, e := range candidates {
		if filter != nil && !filter(e) {
			continue
		}
		score := ratio(input, e.normalized)
		if score < cutoff || score < bestScore {
			continue
		}
		jw := smetrics.JaroWinkler(input, e.normalized, 0.7, 4)
		if best == nil || score > bestScore || jw > bestJW {
			best, bestScore, bestJW = e, score, jw
		}
	}
	return best, bestScore
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func result(e *Entry, score int, method string) *Match {
	return &Match{
		ID:        e.ID,
		Title:     e.Title,
		URL:       e.URL,
		Phone:     e.Phone,
		Score:     score,
		Method:    method,
		Confident: score >= ConfidentScore,
	}
}
