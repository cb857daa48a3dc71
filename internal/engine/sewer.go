package engine

import (
	"context"
	"strings"

	"github.com/sells-group/utility-lookup/internal/model"
)

// Sewer has no territory polygons. It inherits from water: a sewer catalog
// entry for the water provider, then city and county catalog probes, then
// the water name itself at low confidence.
const (
	sourceWaterInheritance = "water_inheritance"
	sourceSewerCity        = "sewer_city_match"
	sourceSewerCounty      = "sewer_county_match"
	sourceWaterFallback    = "water_fallback_no_sewer_id"
)

func (e *Engine) resolveSewer(ctx context.Context, s site, water *model.ProviderResult) *model.ProviderResult {
	if e.Matcher == nil {
		return e.sewerWaterFallback(water)
	}

	var candidates []model.CandidateProvider
	catalogIDs := map[string]int{}

	add := func(name, source string, conf float64, catalogID int) {
		candidates = append(candidates, model.CandidateProvider{
			RawName:     name,
			DisplayName: name,
			Utility:     model.UtilitySewer,
			Confidence:  conf,
			MatchMethod: model.MatchPassthrough,
			Source:      source,
			State:       s.state,
		})
		if catalogID != 0 {
			catalogIDs[strings.ToUpper(name)] = catalogID
		}
	}

	// P1: the water provider's own sewer catalog entry.
	if water != nil && water.DisplayName != "" {
		if m := e.Matcher.Match(water.DisplayName, model.UtilitySewer, s.state); m != nil && m.Score >= 80 {
			add(m.Title, sourceWaterInheritance, min(water.Confidence+0.05, 0.88), m.ID)
		}
	}

	// P2: city-derived catalog probes.
	if len(candidates) == 0 && s.city != "" {
		variants := []string{
			"City of " + s.city,
			s.city + " Sewer",
			s.city + " Utilities",
			s.city + " Public Works",
			s.city,
		}
		for _, v := range variants {
			if m := e.Matcher.Match(v, model.UtilitySewer, s.state); m != nil && m.Score >= 75 {
				add(m.Title, sourceSewerCity, 0.82, m.ID)
				break
			}
		}
	}

	// P3: county sanitary district.
	if len(candidates) == 0 && s.county != "" {
		county := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(s.county, " County"), " county"))
		for _, v := range []string{county + " County Sanitary", county + " Sanitary", county} {
			if m := e.Matcher.Match(v, model.UtilitySewer, s.state); m != nil && m.Score >= 70 {
				add(m.Title, sourceSewerCounty, 0.75, m.ID)
				break
			}
		}
	}

	// P4: the water name at low confidence, flagged for review.
	if len(candidates) == 0 {
		if water == nil || water.DisplayName == "" {
			return nil
		}
		add(water.DisplayName, sourceWaterFallback, 0.50, 0)
	}

	candidates = dedupeAndBoost(candidates)
	sortByConfidence(candidates)

	primary := &model.ProviderResult{CandidateProvider: candidates[0]}
	primary.Alternatives = buildAlternatives(primary.DisplayName, candidates[1:])
	for i := range primary.Alternatives {
		if id, ok := catalogIDs[strings.ToUpper(primary.Alternatives[i].Provider)]; ok {
			primary.Alternatives[i].CatalogID = id
		}
	}
	primary.SetNeedsReview()

	if id, ok := catalogIDs[strings.ToUpper(primary.DisplayName)]; ok {
		primary.CatalogID = id
		primary.CatalogTitle = primary.DisplayName
		primary.IDMatchScore = 100
		primary.IDConfident = true
	} else if m := e.Matcher.Match(primary.DisplayName, model.UtilitySewer, s.state); m != nil {
		primary.CatalogID = m.ID
		primary.CatalogTitle = m.Title
		primary.IDMatchScore = m.Score
		primary.IDConfident = m.Confident
	}

	phone, website := e.Scorer.Contact(primary.DisplayName, primary.CanonicalID, model.UtilitySewer)
	primary.Phone = phone
	primary.Website = website
	return primary
}

// sewerWaterFallback covers engines wired without a catalog: sewer service
// is assumed to follow the water provider.
func (e *Engine) sewerWaterFallback(water *model.ProviderResult) *model.ProviderResult {
	if water == nil || water.DisplayName == "" {
		return nil
	}
	r := &model.ProviderResult{CandidateProvider: model.CandidateProvider{
		RawName:     water.DisplayName,
		DisplayName: water.DisplayName,
		Utility:     model.UtilitySewer,
		Confidence:  0.50,
		MatchMethod: model.MatchPassthrough,
		Source:      sourceWaterFallback,
		State:       water.State,
	}}
	r.SetNeedsReview()
	return r
}
