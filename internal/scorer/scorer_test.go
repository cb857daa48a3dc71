package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
	"github.com/sells-group/utility-lookup/internal/normalize"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testScorer(t *testing.T, opts ...Option) *Scorer {
	t.Helper()
	norm, err := normalize.New(map[string]model.CanonicalProvider{
		"oncor": {
			DisplayName: "Oncor Electric Delivery",
			Aliases:     []string{"Oncor", "Oncor Electric Delivery Company"},
			EIAID:       44372,
		},
		"pso": {
			DisplayName: "Public Service Company of Oklahoma",
			Aliases:     []string{"PSO", "PSO - OK"},
			EIAID:       15474,
		},
		"austin energy": {
			DisplayName: "Austin Energy",
			EIAID:       1015,
		},
	})
	require.NoError(t, err)
	return New(norm, opts...)
}

func TestResolve_WaterSkipsCanonicalTable(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName: "CORIX UTILITIES",
		State:   "TX",
		Utility: model.UtilityWater,
		Source:  "state_gis",
	})
	assert.Equal(t, "Corix Utilities", c.DisplayName)
	assert.Equal(t, model.MatchPassthrough, c.MatchMethod)
	assert.Equal(t, 0.82, c.Confidence)
	assert.Empty(t, c.CanonicalID)
	assert.False(t, c.IsDeregulated)
}

func TestResolve_EIAIDMatch(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName: "ONCOR ELECTRIC DELIVERY COMPANY LLC",
		EIAID:   44372,
		State:   "TX",
		Utility: model.UtilityElectric,
	})
	assert.Equal(t, "Oncor Electric Delivery", c.DisplayName)
	assert.Equal(t, "oncor", c.CanonicalID)
	assert.Equal(t, model.MatchEIAID, c.MatchMethod)
	assert.Equal(t, 0.90, c.Confidence)
	assert.Equal(t, 44372, c.EIAID)
}

func TestResolve_ExactMatch(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{RawName: "Austin Energy", Utility: model.UtilityElectric})
	assert.Equal(t, model.MatchExact, c.MatchMethod)
	assert.Equal(t, 0.85, c.Confidence)
	assert.Equal(t, 1015, c.EIAID)
}

func TestResolve_FuzzyHighSimilarityIgnoresState(t *testing.T) {
	s := testScorer(t)

	// Same tokens in a different order: similarity 100, no exact alias hit.
	c := s.Resolve(Input{
		RawName: "Delivery Electric Oncor",
		State:   "OK",
		Utility: model.UtilityElectric,
	})
	assert.Equal(t, model.MatchFuzzy, c.MatchMethod)
	assert.Equal(t, "Oncor Electric Delivery", c.DisplayName)
	assert.Equal(t, 0.75, c.Confidence)
}

func TestResolve_FuzzyMidBandNeedsStateAgreement(t *testing.T) {
	s := testScorer(t)

	// "co" vs "company" scores in the low 90s against the PSO entry.
	in := Input{
		RawName: "PUBLIC SERVICE CO OF OKLAHOMA",
		Utility: model.UtilityElectric,
	}

	in.State = "OK"
	c := s.Resolve(in)
	assert.Equal(t, model.MatchFuzzy, c.MatchMethod)
	assert.Equal(t, "Public Service Company of Oklahoma", c.DisplayName)

	// Cross-state: reject, degrade to passthrough.
	in.State = "NH"
	c = s.Resolve(in)
	assert.Equal(t, model.MatchPassthrough, c.MatchMethod)
	assert.Equal(t, 0.60, c.Confidence)

	// No state on the polygon: mid-band needs positive agreement.
	in.State = ""
	c = s.Resolve(in)
	assert.Equal(t, model.MatchPassthrough, c.MatchMethod)
}

func TestResolve_FuzzyLowBandRejectsOnConflictOnly(t *testing.T) {
	s := testScorer(t)

	// Extra "electric" token drops similarity into the high 80s.
	in := Input{
		RawName: "OKLAHOMA PUBLIC SERVICE ELECTRIC CO",
		Utility: model.UtilityElectric,
	}

	in.State = "OK"
	c := s.Resolve(in)
	assert.Equal(t, model.MatchFuzzy, c.MatchMethod)
	assert.Equal(t, "pso", c.CanonicalID)

	in.State = ""
	c = s.Resolve(in)
	assert.Equal(t, model.MatchFuzzy, c.MatchMethod, "no contradiction available")

	in.State = "TX"
	c = s.Resolve(in)
	assert.Equal(t, model.MatchPassthrough, c.MatchMethod, "state conflict rejects")
}

func TestResolve_PassthroughCleansName(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName: "BIG COUNTRY ELECTRIC COOPERATIVE, INC",
		State:   "TX",
		Utility: model.UtilityElectric,
	})
	assert.Equal(t, model.MatchPassthrough, c.MatchMethod)
	assert.Equal(t, 0.60, c.Confidence)
	assert.NotEqual(t, c.RawName, c.DisplayName)
}

func TestResolve_MaxConfidenceClip(t *testing.T) {
	s := testScorer(t, WithMaxConfidence(0.80))

	c := s.Resolve(Input{RawName: "Austin Energy", Utility: model.UtilityElectric})
	assert.Equal(t, 0.80, c.Confidence)

	w := s.Resolve(Input{RawName: "Corix Utilities", Utility: model.UtilityWater})
	assert.Equal(t, 0.80, w.Confidence)
}

func TestDeregulation_TDU(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName:     "ONCOR ELECTRIC DELIVERY",
		State:       "TX",
		Utility:     model.UtilityElectric,
		ControlArea: "ERCO",
		ShapeType:   "INVESTOR OWNED",
	})
	assert.True(t, c.IsDeregulated)
	assert.Contains(t, c.DeregulatedNote, "TDU territory")
}

func TestDeregulation_CoopsExempt(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName:     "BLUEBONNET ELECTRIC COOPERATIVE",
		State:       "TX",
		Utility:     model.UtilityElectric,
		ControlArea: "ERCO",
		ShapeType:   "COOPERATIVE",
	})
	assert.False(t, c.IsDeregulated)
}

func TestDeregulation_LubbockException(t *testing.T) {
	in := Input{
		RawName:     "CITY OF LUBBOCK - (TX)",
		State:       "TX",
		Utility:     model.UtilityElectric,
		ControlArea: "ERCO",
		ShapeType:   "MUNICIPAL",
	}

	assert.True(t, testScorer(t).Resolve(in).IsDeregulated)
	assert.False(t, testScorer(t, WithLubbockDeregulated(false)).Resolve(in).IsDeregulated)
}

func TestDeregulation_ERCOTInvestorOwned(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName:     "SHARYLAND UTILITIES",
		State:       "TX",
		Utility:     model.UtilityElectric,
		ControlArea: "ERCOT",
		ShapeType:   "INVESTOR OWNED",
	})
	assert.True(t, c.IsDeregulated)

	// Outside ERCOT, the same shape type is regulated.
	c = s.Resolve(Input{
		RawName:     "SHARYLAND UTILITIES",
		State:       "TX",
		Utility:     model.UtilityElectric,
		ControlArea: "SWPP",
		ShapeType:   "INVESTOR OWNED",
	})
	assert.False(t, c.IsDeregulated)
}

func TestDeregulation_ElectricOnly(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{
		RawName:     "ONCOR ELECTRIC DELIVERY",
		State:       "TX",
		Utility:     model.UtilityGas,
		ControlArea: "ERCO",
		ShapeType:   "INVESTOR OWNED",
	})
	assert.False(t, c.IsDeregulated)
}

func TestBoostTenantVerified(t *testing.T) {
	s := testScorer(t)

	c := s.Resolve(Input{RawName: "Austin Energy", Utility: model.UtilityElectric})
	s.BoostTenantVerified(&c)
	assert.Equal(t, model.MatchTenantVerified, c.MatchMethod)
	assert.InDelta(t, 0.93, c.Confidence, 1e-9)

	// Never above 0.98.
	c.Confidence = 0.97
	s.BoostTenantVerified(&c)
	assert.Equal(t, 0.98, c.Confidence)
}

func TestDetectStates(t *testing.T) {
	states := detectStates("Public Service Company of Oklahoma PSO - OK")
	assert.True(t, states["OK"])
	assert.False(t, states["PS"])

	// "IN" inside a word does not count.
	assert.Nil(t, detectStates("Indiana Michigan Power Interconnect"))

	states = detectStates("City of Monroe - (NC)")
	assert.True(t, states["NC"])
}
