package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/normalize"
	"github.com/sells-group/utility-lookup/internal/scorer"
)

// Source tags for candidates the engine itself produces. Tabular adapters
// and the state GIS client tag their own results.
const (
	sourceCorrectionAddress = "correction_address"
	sourceCorrectionZIP     = "correction_zip"
	sourceHIFLD             = "hifld_shapefile"
	sourceEIAZIP            = "eia_zip"
	sourceFindEnergy        = "findenergy_city"
	sourceGasDefault        = "state_gas_default"
)

// maxAlternatives caps the ranked runner-up list on a result.
const maxAlternatives = 4

// resolveUtility runs the per-utility pipeline: collect candidates from every
// applicable source in priority order, deduplicate, arbitrate, verify, and
// assemble the result. Returns nil when no source produced a candidate.
func (e *Engine) resolveUtility(ctx context.Context, s site, utility model.UtilityType) *model.ProviderResult {
	candidates := e.collectCandidates(ctx, s, utility)
	if len(candidates) == 0 {
		return nil
	}

	candidates = dedupeAndBoost(candidates)
	sortByConfidence(candidates)

	if utility == model.UtilityElectric {
		candidates = e.demoteLargeIOU(candidates)
	}

	primary := &model.ProviderResult{CandidateProvider: candidates[0]}

	if utility == model.UtilityElectric {
		e.verifyAgainstEIA(s.zip, primary)
	}

	primary.Alternatives = buildAlternatives(primary.DisplayName, candidates[1:])
	primary.SetNeedsReview()

	phone, website := e.Scorer.Contact(primary.DisplayName, primary.CanonicalID, utility)
	primary.Phone = phone
	primary.Website = website

	if e.Matcher != nil {
		e.Matcher.AttachAll(primary, s.state)
	}
	return primary
}

// collectCandidates queries each source that applies to this utility type.
// A correction hit short-circuits lower-priority sources for the primary
// slot; sources after the spatial index still contribute alternatives.
func (e *Engine) collectCandidates(ctx context.Context, s site, utility model.UtilityType) []model.CandidateProvider {
	var candidates []model.CandidateProvider

	add := func(raw string, eiaID int, state, source string, maxConf, setConf float64) {
		if raw == "" {
			return
		}
		if state == "" {
			state = s.state
		}
		c := e.Scorer.Resolve(scorer.Input{
			RawName: raw,
			EIAID:   eiaID,
			State:   state,
			Utility: utility,
			Source:  source,
		})
		switch {
		case setConf > 0:
			c.Confidence = setConf
		case maxConf > 0 && c.Confidence > maxConf:
			c.Confidence = maxConf
		}
		candidates = append(candidates, c)
	}

	// P0: corrections, address first, then ZIP.
	if e.Corrections != nil {
		if s.address != "" {
			if m, err := e.Corrections.LookupByAddress(ctx, s.address, utility); err == nil && m != nil {
				add(m.Name, 0, m.State, sourceCorrectionAddress, 0, 0.99)
			}
		}
		if len(candidates) == 0 && s.zip != "" {
			if m := e.Corrections.LookupByZIP(s.zip, utility); m != nil {
				conf := m.Confidence
				if conf <= 0 {
					conf = 0.98
				}
				add(m.Name, 0, m.State, sourceCorrectionZIP, 0, conf)
			}
		}
	}

	// P1: state GIS, with the water subdivision-name filter.
	if e.StateGIS != nil && s.state != "" {
		if gis, err := e.StateGIS.Query(ctx, s.lat, s.lon, s.state, utility); err == nil && gis != nil && gis.Name != "" {
			name := gis.Name
			keep := true
			if utility == model.UtilityWater && !normalize.LooksLikeWaterUtility(name) {
				// State water registries sometimes return subdivision or HOA
				// names. Fall back to the city utility, or drop the hit.
				if s.city != "" {
					zap.L().Info("water name override",
						zap.String("component", "engine"),
						zap.String("from", name),
						zap.String("to", "City of "+s.city),
					)
					name = "City of " + s.city
				} else {
					keep = false
				}
			}
			if keep {
				n := len(candidates)
				add(name, 0, gis.State, gis.Source, 0, 0)
				// State GIS is higher resolution than HIFLD; a passthrough
				// resolution must still outrank ZIP-table fallbacks.
				if len(candidates) > n && candidates[n].Confidence < 0.90 {
					candidates[n].Confidence = 0.90
				}
			}
		}
	}

	// P2: gas ZIP-prefix mapping.
	if utility == model.UtilityGas && e.GasZIP != nil && s.zip != "" && s.state != "" {
		if r := e.GasZIP.Query(s.zip, s.state); r != nil {
			add(r.Name, 0, r.State, r.Source, 0, 0)
		}
	}

	// P2.5: Georgia EMC by county. Split counties emit every EMC so the
	// alternatives carry the uncertainty.
	if utility == model.UtilityElectric && e.GeorgiaEMC != nil && strings.EqualFold(s.state, "GA") && s.county != "" {
		if r := e.GeorgiaEMC.Lookup(s.county); r != nil {
			add(r.Name, 0, "GA", r.Source, r.Confidence, 0)
			for _, alt := range r.Alternatives {
				add(alt, 0, "GA", r.Source, r.Confidence, 0)
			}
		}
	}

	// P2.7: county gas.
	if utility == model.UtilityGas && e.CountyGas != nil && s.state != "" && e.CountyGas.HasState(s.state) {
		if r := e.CountyGas.Lookup(s.state, s.county, s.city); r != nil {
			add(r.Name, 0, r.State, r.Source, r.Confidence, 0)
		}
	}

	// P3: HIFLD territory polygons, arbitrated before scoring.
	if hifld := e.spatialCandidate(ctx, s, utility); hifld != nil {
		candidates = append(candidates, *hifld)
	}

	// P3.5: remaining-states ZIP tables.
	if e.Remaining != nil && s.zip != "" && s.state != "" {
		if r := e.Remaining.Lookup(s.zip, s.state, utility); r != nil {
			add(r.Name, 0, r.State, r.Source, r.Confidence, 0)
		}
	}

	// P3.7: special water districts.
	if utility == model.UtilityWater && e.SpecialDistricts != nil && s.zip != "" {
		if r := e.SpecialDistricts.Lookup(s.zip); r != nil {
			add(r.Name, 0, r.State, r.Source, r.Confidence, 0)
		}
	}

	// P4: EIA ZIP fallback.
	if utility == model.UtilityElectric && e.EIAZIP != nil && s.zip != "" {
		if r := e.EIAZIP.LookupByZIP(s.zip); r != nil {
			add(r.Name, atoiSafe(r.EIAID), r.State, sourceEIAZIP, 0.70, 0)
		}
	}

	// P5: FindEnergy city cache.
	if (utility == model.UtilityElectric || utility == model.UtilityGas) &&
		e.FindEnergy != nil && s.city != "" && s.state != "" {
		if r := e.FindEnergy.Lookup(s.state, s.city, utility); r != nil {
			add(r.Name, 0, r.State, sourceFindEnergy, 0.65, 0)
		}
	}

	// P6: state gas default, last resort.
	if utility == model.UtilityGas && e.GasDefaults != nil && s.state != "" {
		if r := e.GasDefaults.Lookup(s.state); r != nil {
			add(r.Name, 0, r.State, sourceGasDefault, r.Confidence, 0)
		}
	}

	return candidates
}

// spatialCandidate queries the territory index and arbitrates overlapping
// polygons down to one scored candidate.
func (e *Engine) spatialCandidate(ctx context.Context, s site, utility model.UtilityType) *model.CandidateProvider {
	if e.Spatial == nil {
		return nil
	}
	polys, err := e.Spatial.QueryPoint(ctx, s.lat, s.lon, utility)
	if err != nil {
		zap.L().Debug("spatial query failed",
			zap.String("component", "engine"),
			zap.String("utility", string(utility)),
			zap.Error(err),
		)
		return nil
	}
	if len(polys) == 0 {
		return nil
	}

	best := e.arbitrate(polys, utility, s.state)

	c := e.Scorer.Resolve(scorer.Input{
		RawName:     best.Name,
		EIAID:       atoiSafe(best.EIAID),
		State:       best.State,
		Utility:     utility,
		Source:      sourceHIFLD,
		AreaKM2:     best.AreaKM2,
		ControlArea: best.ControlArea,
		ShapeType:   best.Type,
	})
	return &c
}

// dedupeAndBoost collapses candidates that resolve to the same provider,
// keeping the most confident and boosting it when multiple distinct sources
// agree. Group order follows first appearance so output is deterministic.
func dedupeAndBoost(candidates []model.CandidateProvider) []model.CandidateProvider {
	type group struct {
		best    model.CandidateProvider
		n       int
		sources map[string]bool
	}
	var order []string
	groups := make(map[string]*group)

	for _, c := range candidates {
		key := c.CanonicalID
		if key == "" {
			key = strings.ToUpper(strings.TrimSpace(c.DisplayName))
		} else {
			key = strings.ToUpper(key)
		}
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{best: c, n: 1, sources: map[string]bool{c.Source: true}}
			order = append(order, key)
			continue
		}
		g.n++
		g.sources[c.Source] = true
		if c.Confidence > g.best.Confidence {
			g.best = c
		}
	}

	deduped := make([]model.CandidateProvider, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.n > 1 {
			boost := 0.05 * float64(g.n-1)
			if boost > 0.10 {
				boost = 0.10
			}
			g.best.Confidence = min(0.98, g.best.Confidence+boost)
			if len(g.sources) > 1 {
				g.best.Source += fmt.Sprintf(" (+%d agree)", g.n-1)
			}
		}
		deduped = append(deduped, g.best)
	}
	return deduped
}

// sortByConfidence orders candidates best first, stably, so equal-confidence
// candidates keep their source-priority order.
func sortByConfidence(candidates []model.CandidateProvider) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}

// lowQualitySources never justify demoting an IOU primary.
var lowQualitySources = []string{sourceFindEnergy, sourceGasDefault}

// demoteLargeIOU prefers a credible local utility over a large
// investor-owned primary. HIFLD draws IOU polygons over the municipal and
// co-op carve-outs inside them, so when both appear the local one is almost
// always the actual provider.
func (e *Engine) demoteLargeIOU(candidates []model.CandidateProvider) []model.CandidateProvider {
	if len(candidates) < 2 || !isLargeIOU(candidates[0].DisplayName) {
		return candidates
	}
	for i := 1; i < len(candidates); i++ {
		alt := candidates[i]
		if !looksLikeLocalUtility(alt.DisplayName) || alt.Confidence < 0.70 {
			continue
		}
		src := strings.ToLower(alt.Source)
		lowQuality := false
		for _, s := range lowQualitySources {
			if strings.Contains(src, s) {
				lowQuality = true
				break
			}
		}
		if lowQuality {
			continue
		}
		promoted := append([]model.CandidateProvider{alt}, candidates[:i]...)
		return append(promoted, candidates[i+1:]...)
	}
	return candidates
}

// verifyAgainstEIA cross-checks an electric primary against the EIA per-ZIP
// table and applies the small confidence adjustment. Corrections and the EIA
// table itself are exempt.
func (e *Engine) verifyAgainstEIA(zip string, primary *model.ProviderResult) {
	if e.EIAZIP == nil || zip == "" {
		return
	}
	switch primary.Source {
	case sourceEIAZIP, sourceCorrectionAddress, sourceCorrectionZIP:
		return
	}
	v := e.EIAZIP.Verify(zip, primary.DisplayName)
	primary.Confidence = clamp01(primary.Confidence + v.Adjustment)
	if v.EIAID != 0 && primary.EIAID == 0 {
		primary.EIAID = int(v.EIAID)
	}
}

// buildAlternatives takes up to maxAlternatives runners-up, skipping any
// that duplicate the primary's display name.
func buildAlternatives(primaryName string, rest []model.CandidateProvider) []model.Alternative {
	seen := map[string]bool{strings.ToUpper(primaryName): true}
	var alts []model.Alternative
	for _, c := range rest {
		if len(alts) == maxAlternatives {
			break
		}
		key := strings.ToUpper(c.DisplayName)
		if seen[key] {
			continue
		}
		seen[key] = true
		alts = append(alts, model.Alternative{
			Provider:   c.DisplayName,
			Confidence: round3(c.Confidence),
			Source:     c.Source,
			EIAID:      c.EIAID,
		})
	}
	return alts
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
