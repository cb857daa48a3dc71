package spatial

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }
func i64Ptr(i int64) *int64     { return &i }

var postgisCols = []string{
	"name", "state", "provider_type", "area_km2", "customers",
	"eia_id", "pwsid", "holding_co", "control_area",
}

func TestPostGISIndex_QueryPoint(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT name, state, provider_type.*FROM utility\.electric_territories.*ST_Contains`).
		WithArgs(-96.8, 32.78).
		WillReturnRows(pgxmock.NewRows(postgisCols).
			AddRow("Oncor", strPtr("TX"), strPtr("IOU"), f64Ptr(140000.0), i64Ptr(3900000),
				strPtr("44372"), nil, nil, strPtr("ERCO")))

	idx := NewPostGISIndex(mock)
	hits, err := idx.QueryPoint(context.Background(), 32.78, -96.8, model.UtilityElectric)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	got := hits[0]
	assert.Equal(t, "Oncor", got.Name)
	assert.Equal(t, "TX", got.State)
	assert.Equal(t, "IOU", got.Type)
	assert.Equal(t, model.UtilityElectric, got.Utility)
	assert.Equal(t, 140000.0, got.AreaKM2)
	assert.Equal(t, 3900000, got.Customers)
	assert.Equal(t, "44372", got.EIAID)
	assert.Equal(t, "", got.PWSID)
	assert.Equal(t, "ERCO", got.ControlArea)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISIndex_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM utility\.water_territories`).
		WithArgs(-87.6, 41.8).
		WillReturnRows(pgxmock.NewRows(postgisCols))

	idx := NewPostGISIndex(mock)
	hits, err := idx.QueryPoint(context.Background(), 41.8, -87.6, model.UtilityWater)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISIndex_UnknownUtility(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPostGISIndex(mock)
	_, err = idx.QueryPoint(context.Background(), 41.8, -87.6, model.UtilityType("broadband"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no territory table")
}

func TestPostGISIndex_NullableColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM utility\.gas_territories`).
		WithArgs(-84.39, 33.75).
		WillReturnRows(pgxmock.NewRows(postgisCols).
			AddRow("Atlanta Gas Light", nil, nil, nil, nil, nil, nil, nil, nil))

	idx := NewPostGISIndex(mock)
	hits, err := idx.QueryPoint(context.Background(), 33.75, -84.39, model.UtilityGas)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	got := hits[0]
	assert.Equal(t, "Atlanta Gas Light", got.Name)
	assert.Zero(t, got.AreaKM2)
	assert.Zero(t, got.Customers)
	assert.Equal(t, "", got.State)
}
