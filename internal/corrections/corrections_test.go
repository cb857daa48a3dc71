package corrections

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func openStore(t *testing.T, correctionsDir string) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "corrections.db"), correctionsDir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLookupByAddress(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "")

	require.NoError(t, s.RecordCorrection(ctx, model.Correction{
		Address:            "123 Main St, Dallas, TX 75201",
		ZipCode:            "75201",
		State:              "TX",
		Utility:            model.UtilityElectric,
		CorrectedProvider:  "Oncor Electric Delivery",
		CorrectedCatalogID: 4120,
		OriginalProvider:   "TXU Energy",
		OriginalSource:     "hifld_shapefile",
	}))

	m, err := s.LookupByAddress(ctx, "123 Main St, Dallas, TX 75201", model.UtilityElectric)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Oncor Electric Delivery", m.Name)
	assert.Equal(t, 4120, m.CatalogID)
	assert.Equal(t, "TX", m.State)
	assert.Equal(t, "75201", m.ZipCode)
	assert.Equal(t, "correction_address", m.Source)
	assert.Equal(t, 0.99, m.Confidence)

	// Different utility type does not match.
	m, err = s.LookupByAddress(ctx, "123 Main St, Dallas, TX 75201", model.UtilityGas)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLookupByAddress_MostRecentWins(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "")

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, provider := range []string{"Old Provider", "New Provider"} {
		require.NoError(t, s.RecordCorrection(ctx, model.Correction{
			Address:           "9 Elm St",
			Utility:           model.UtilityWater,
			CorrectedProvider: provider,
			CorrectedAt:       base.Add(time.Duration(i) * time.Hour),
		}))
	}

	m, err := s.LookupByAddress(ctx, "9 Elm St", model.UtilityWater)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "New Provider", m.Name)
}

func TestLookupByLatLon(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "")

	require.NoError(t, s.RecordCorrection(ctx, model.Correction{
		Lat:               32.7767,
		Lon:               -96.7970,
		State:             "TX",
		Utility:           model.UtilityGas,
		CorrectedProvider: "Atmos Energy",
	}))

	// Within ~100m.
	m, err := s.LookupByLatLon(ctx, 32.7770, -96.7965, model.UtilityGas)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Atmos Energy", m.Name)
	assert.Equal(t, "mapper_correction", m.Source)
	assert.Equal(t, 0.99, m.Confidence)
	assert.Zero(t, m.CatalogID)

	// Too far away.
	m, err = s.LookupByLatLon(ctx, 32.79, -96.7970, model.UtilityGas)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLookupByZIP(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "electric_zip.json"),
		[]byte(`{"75001": "Oncor Electric Delivery", "75002": {"provider": "CoServ Electric", "confidence": 0.95}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gas_zip.json"),
		[]byte(`{"_metadata": {"updated": "2026-07-01"}, "corrections": {"75001": {"name": "Atmos Energy"}}}`), 0o644))

	s := openStore(t, dir)

	m := s.LookupByZIP("75001", model.UtilityElectric)
	require.NotNil(t, m)
	assert.Equal(t, "Oncor Electric Delivery", m.Name)
	assert.Equal(t, 0.98, m.Confidence)
	assert.Equal(t, "correction_zip", m.Source)

	// Object entry carries its own confidence.
	m = s.LookupByZIP("75002", model.UtilityElectric)
	require.NotNil(t, m)
	assert.Equal(t, "CoServ Electric", m.Name)
	assert.Equal(t, 0.95, m.Confidence)

	// Nested {corrections: ...} shape.
	m = s.LookupByZIP("75001", model.UtilityGas)
	require.NotNil(t, m)
	assert.Equal(t, "Atmos Energy", m.Name)

	assert.Nil(t, s.LookupByZIP("99999", model.UtilityElectric))
	assert.Nil(t, s.LookupByZIP("75001", model.UtilityWater))
}

func TestIDMappingOverride(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "")

	id, ok, err := s.IDMappingOverride(ctx, "Oncor", model.UtilityElectric)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, id)

	require.NoError(t, s.RecordIDMapping(ctx, "Oncor", model.UtilityElectric, 4120, ""))

	id, ok, err = s.IDMappingOverride(ctx, "Oncor", model.UtilityElectric)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4120, id)

	// Scoped by utility type.
	_, ok, err = s.IDMappingOverride(ctx, "Oncor", model.UtilityGas)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListIDMappings(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "")

	mappings, err := s.ListIDMappings(ctx)
	require.NoError(t, err)
	assert.Empty(t, mappings)

	require.NoError(t, s.RecordIDMapping(ctx, "Oncor", model.UtilityElectric, 4120, "reviewer"))
	require.NoError(t, s.RecordIDMapping(ctx, "Atmos", model.UtilityGas, 4130, ""))

	mappings, err = s.ListIDMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, IDMapping{ProviderName: "Oncor", Utility: model.UtilityElectric, CatalogID: 4120}, mappings[0])
}

func TestRecordCorrection_Validation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, "")

	assert.Error(t, s.RecordCorrection(ctx, model.Correction{
		Utility: model.UtilityElectric, CorrectedProvider: "Oncor",
	}), "needs an address or coordinates")
	assert.Error(t, s.RecordCorrection(ctx, model.Correction{
		Address: "1 Main St", Utility: model.UtilityElectric,
	}), "needs a provider")
}

func TestJSONOnlyStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "water_zip.json"),
		[]byte(`{"85281": "Tempe Water"}`), 0o644))

	s, err := Open(context.Background(), "", dir)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Loaded())
	assert.NotNil(t, s.LookupByZIP("85281", model.UtilityWater))

	m, err := s.LookupByAddress(context.Background(), "1 Main St", model.UtilityWater)
	require.NoError(t, err)
	assert.Nil(t, m)

	assert.Error(t, s.RecordCorrection(context.Background(), model.Correction{
		Address: "1 Main St", Utility: model.UtilityWater, CorrectedProvider: "X",
	}))
}

func TestEmptyStoreNotLoaded(t *testing.T) {
	s, err := Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.False(t, s.Loaded())
}
