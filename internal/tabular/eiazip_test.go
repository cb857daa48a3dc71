package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eiaFixture(t *testing.T) *EIAZIPLookup {
	t.Helper()
	path := writeFile(t, t.TempDir(), "eia_zip_utility_lookup.json", `{
		"75201": [
			{"name": "Oncor Electric Delivery", "eiaid": 44372, "state": "TX", "ownership": "Investor Owned"}
		],
		"28801": [
			{"name": "French Broad Electric Membership Corp", "eiaid": 6842, "state": "NC", "ownership": "Cooperative"},
			{"name": "Duke Energy Progress", "eiaid": 3046, "state": "NC", "ownership": "Investor Owned"},
			{"name": "Duke Energy Progress", "eiaid": 3046, "state": "NC", "ownership": "Investor Owned"}
		]
	}`)
	e, err := NewEIAZIPLookup(path)
	require.NoError(t, err)
	return e
}

func TestEIAZIP_LookupByZIP_PrefersIOU(t *testing.T) {
	e := eiaFixture(t)

	res := e.LookupByZIP("28801")
	require.NotNil(t, res)
	assert.Equal(t, "Duke Energy Progress", res.Name)
	assert.Equal(t, 0.70, res.Confidence)
	assert.Equal(t, "eia_zip", res.Source)
	assert.Equal(t, "NC", res.State)
	assert.Equal(t, "3046", res.EIAID)
}

func TestEIAZIP_LookupByZIP_Miss(t *testing.T) {
	e := eiaFixture(t)
	assert.Nil(t, e.LookupByZIP("99999"))
}

func TestEIAZIP_UtilitiesDeduped(t *testing.T) {
	e := eiaFixture(t)
	assert.Len(t, e.Utilities("28801"), 2)
}

func TestEIAZIP_Verify_ExactMatch(t *testing.T) {
	e := eiaFixture(t)

	v := e.Verify("75201", "Oncor Electric Delivery")
	assert.True(t, v.Verified)
	assert.Equal(t, 0.05, v.Adjustment)
	assert.Equal(t, int64(44372), v.EIAID)
}

func TestEIAZIP_Verify_TokenOverlap(t *testing.T) {
	e := eiaFixture(t)

	// "Duke Progress" and "Duke Energy Progress" share both significant
	// tokens (energy is a stop word).
	v := e.Verify("28801", "Duke Progress")
	assert.True(t, v.Verified)
	assert.Equal(t, 0.03, v.Adjustment)
}

func TestEIAZIP_Verify_StopWordsDoNotVerify(t *testing.T) {
	e := eiaFixture(t)

	// Shares only "Electric"/"Energy"-class stop words with the EIA
	// entries; must count as a disagreement.
	v := e.Verify("28801", "Carolina Electric Power")
	assert.False(t, v.Verified)
	assert.Equal(t, -0.05, v.Adjustment)
	assert.Equal(t, "French Broad Electric Membership Corp", v.EIAName)
}

func TestEIAZIP_Verify_Substring(t *testing.T) {
	e := eiaFixture(t)

	// Token overlap is below half, but the EIA name is contained whole.
	v := e.Verify("75201", "Oncor Electric Delivery Texas Central Holdings Group")
	assert.True(t, v.Verified)
	assert.Equal(t, 0.02, v.Adjustment)
}

func TestEIAZIP_Verify_NoData(t *testing.T) {
	e := eiaFixture(t)

	v := e.Verify("99999", "Oncor Electric Delivery")
	assert.False(t, v.Verified)
	assert.Zero(t, v.Adjustment)
}

func TestEIAZIP_Verify_EmptyProvider(t *testing.T) {
	e := eiaFixture(t)

	v := e.Verify("75201", "")
	assert.False(t, v.Verified)
	assert.Zero(t, v.Adjustment)
	assert.Equal(t, "Oncor Electric Delivery", v.EIAName)
}
