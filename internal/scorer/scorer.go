// Package scorer assigns base confidence to raw provider candidates, detects
// deregulated electric territories, and attaches contact metadata.
package scorer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

// baseConfidence maps a match method to its starting confidence.
var baseConfidence = map[model.MatchMethod]float64{
	model.MatchTenantVerified: 0.95,
	model.MatchEIAID:          0.90,
	model.MatchExact:          0.85,
	model.MatchFuzzy:          0.75,
	model.MatchSubstring:      0.75,
	model.MatchPassthrough:    0.60,
}

// defaultERCOTTDUs are the transmission/distribution utilities of the
// deregulated ERCOT market.
var defaultERCOTTDUs = []string{
	"Oncor",
	"CenterPoint Energy",
	"AEP Texas Central",
	"AEP Texas North",
	"Texas-New Mexico Power",
	"TNMP",
	"Lubbock Power & Light",
}

// Input is one raw candidate from a polygon or tabular source.
type Input struct {
	RawName     string
	EIAID       int
	State       string
	Utility     model.UtilityType
	Source      string
	AreaKM2     float64
	ControlArea string
	ShapeType   string
}

// Scorer resolves raw candidates against the canonical provider table.
// Immutable after construction; safe for concurrent use.
type Scorer struct {
	norm            *normalize.Normalizer
	contacts        *ContactTable
	canonicalStates map[string]map[string]bool
	maxConfidence   float64
	tduNames        []string
	lubbockDereg    bool
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithMaxConfidence caps every assigned confidence.
func WithMaxConfidence(v float64) Option {
	return func(s *Scorer) { s.maxConfidence = v }
}

// WithERCOTTDUs overrides the curated TDU name list.
func WithERCOTTDUs(names []string) Option {
	return func(s *Scorer) { s.tduNames = names }
}

// WithLubbockDeregulated toggles the Lubbock P&L exception (municipal but
// deregulated since 2024).
func WithLubbockDeregulated(b bool) Option {
	return func(s *Scorer) { s.lubbockDereg = b }
}

// WithContacts attaches a provider contact table.
func WithContacts(t *ContactTable) Option {
	return func(s *Scorer) { s.contacts = t }
}

// New builds a Scorer over a Normalizer. The per-canonical-entry state index
// is derived once here, for rejecting cross-state fuzzy matches.
func New(norm *normalize.Normalizer, opts ...Option) *Scorer {
	s := &Scorer{
		norm:          norm,
		contacts:      &ContactTable{},
		maxConfidence: 0.98,
		tduNames:      defaultERCOTTDUs,
		lubbockDereg:  true,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.canonicalStates = make(map[string]map[string]bool)
	for key, p := range norm.Providers() {
		text := key + " " + p.DisplayName + " " + strings.Join(p.Aliases, " ")
		if states := detectStates(text); len(states) > 0 {
			s.canonicalStates[key] = states
		}
	}
	zap.L().Debug("scorer ready",
		zap.Int("providers", len(norm.Providers())),
		zap.Int("state_tagged", len(s.canonicalStates)),
	)
	return s
}

// Resolve turns a raw source name into a scored candidate. It never fails:
// unresolvable names degrade to a cleaned passthrough.
func (s *Scorer) Resolve(in Input) model.CandidateProvider {
	// Water names never go through the canonical table, which holds electric
	// and gas utilities only. Fuzzy-matching "MANHATTAN, CITY OF" against
	// electric entries produces false matches.
	if in.Utility == model.UtilityWater {
		return model.CandidateProvider{
			RawName:     in.RawName,
			DisplayName: normalize.NormalizeWaterName(in.RawName),
			Utility:     in.Utility,
			Confidence:  s.clip(0.82),
			MatchMethod: model.MatchPassthrough,
			Source:      in.Source,
			State:       in.State,
		}
	}

	if in.EIAID != 0 {
		if key, ok := s.norm.ByEIAID(in.EIAID); ok {
			p, _ := s.norm.Provider(key)
			return s.finish(in, model.CandidateProvider{
				RawName:     in.RawName,
				CanonicalID: key,
				DisplayName: p.DisplayName,
				EIAID:       in.EIAID,
				MatchMethod: model.MatchEIAID,
			})
		}
	}

	m := s.norm.Normalize(in.RawName)
	switch m.MatchType {
	case normalize.MatchTypeExact, normalize.MatchTypeSubstring:
		return s.accept(in, m)
	case normalize.MatchTypeFuzzy:
		if s.fuzzyAcceptable(m, in.State) {
			return s.accept(in, m)
		}
	}

	return s.finish(in, model.CandidateProvider{
		RawName:     in.RawName,
		DisplayName: normalize.CleanDisplayName(in.RawName),
		MatchMethod: model.MatchPassthrough,
	})
}

// fuzzyAcceptable gates fuzzy hits on polygon names, which are formal legal
// names prone to cross-state false matches ("PUBLIC SERVICE CO OF NH" must
// not resolve to PNM).
func (s *Scorer) fuzzyAcceptable(m normalize.Match, state string) bool {
	state = strings.ToUpper(strings.TrimSpace(state))
	states := s.canonicalStates[m.CanonicalID]

	switch {
	case m.Similarity >= 95:
		return true
	case m.Similarity >= 90:
		// Mid-band hits need positive state agreement.
		return state != "" && states[state]
	default:
		// Low-band hits survive only when nothing contradicts them.
		if state == "" || len(states) == 0 {
			return true
		}
		return states[state]
	}
}

func (s *Scorer) accept(in Input, m normalize.Match) model.CandidateProvider {
	c := model.CandidateProvider{
		RawName:     in.RawName,
		CanonicalID: m.CanonicalID,
		DisplayName: m.DisplayName,
		MatchMethod: model.MatchMethod(m.MatchType),
	}
	if p, ok := s.norm.Provider(m.CanonicalID); ok {
		c.EIAID = p.EIAID
	}
	return s.finish(in, c)
}

// finish fills the fields common to every resolution path.
func (s *Scorer) finish(in Input, c model.CandidateProvider) model.CandidateProvider {
	c.Utility = in.Utility
	c.Source = in.Source
	c.State = in.State
	c.Confidence = s.clip(baseConfidence[c.MatchMethod])
	if in.Utility == model.UtilityElectric && s.isDeregulated(in) {
		c.IsDeregulated = true
		c.DeregulatedNote = "Address is in " + normalize.CleanDisplayName(in.RawName) +
			" TDU territory. Tenant chooses their Retail Electric Provider (REP)."
	}
	return c
}

// BoostTenantVerified raises a candidate's confidence when tenant-verified
// data agrees with it.
func (s *Scorer) BoostTenantVerified(c *model.CandidateProvider) {
	c.Confidence = min(0.98, c.Confidence+0.08)
	c.MatchMethod = model.MatchTenantVerified
}

// Contact returns phone and website for a resolved candidate, preferring
// entries labeled with the candidate's utility type.
func (s *Scorer) Contact(displayName, canonicalID string, utility model.UtilityType) (phone, website string) {
	return s.contacts.Find(displayName, canonicalID, utility)
}

// isDeregulated reports whether a polygon sits in the deregulated ERCOT
// market. Co-ops and municipals are exempt, with the Lubbock exception.
func (s *Scorer) isDeregulated(in Input) bool {
	name := strings.ToUpper(in.RawName)
	shapeType := strings.ToUpper(in.ShapeType)
	controlArea := strings.ToUpper(in.ControlArea)

	if strings.Contains(shapeType, "COOPERATIVE") || strings.Contains(shapeType, "MUNICIPAL") {
		return s.lubbockDereg && strings.Contains(name, "LUBBOCK")
	}
	for _, tdu := range s.tduNames {
		t := strings.ToUpper(tdu)
		if strings.Contains(name, t) || (name != "" && strings.Contains(t, name)) {
			return true
		}
	}
	return (controlArea == "ERCO" || controlArea == "ERCOT") && strings.Contains(shapeType, "INVESTOR")
}

func (s *Scorer) clip(v float64) float64 {
	return min(v, s.maxConfidence)
}

var stateAbbrevs = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true,
}

// detectStates finds state abbreviations appearing as standalone tokens, so
// "IN" inside "INDIANA" does not register.
func detectStates(text string) map[string]bool {
	var found map[string]bool
	tokens := strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		switch r {
		case ' ', '\t', ',', '-', '(', ')', '.':
			return true
		}
		return false
	})
	for _, tok := range tokens {
		if stateAbbrevs[tok] {
			if found == nil {
				found = make(map[string]bool)
			}
			found[tok] = true
		}
	}
	return found
}
