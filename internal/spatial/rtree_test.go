package spatial

import (
	"context"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-lookup/internal/model"
)

// square returns a closed square polygon with the given corner and side.
func square(x, y, side float64) geom.Polygon {
	return geom.Polygon([]geom.Path{{
		{X: x, Y: y}, {X: x + side, Y: y},
		{X: x + side, Y: y + side}, {X: x, Y: y + side},
		{X: x, Y: y},
	}})
}

func TestMemoryIndex_QueryPoint(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Insert(square(-88, 41, 2), model.TerritoryPolygon{
		Name: "ComEd", State: "IL", Utility: model.UtilityElectric, AreaKM2: 30000,
	})
	idx.Insert(square(-98, 31, 4), model.TerritoryPolygon{
		Name: "Oncor", State: "TX", Utility: model.UtilityElectric, AreaKM2: 140000,
	})

	hits, err := idx.QueryPoint(context.Background(), 41.8, -87.6, model.UtilityElectric)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ComEd", hits[0].Name)
}

func TestMemoryIndex_Miss(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Insert(square(-88, 41, 2), model.TerritoryPolygon{
		Name: "ComEd", Utility: model.UtilityElectric,
	})

	hits, err := idx.QueryPoint(context.Background(), 10, 10, model.UtilityElectric)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_UtilityIsolation(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Insert(square(-88, 41, 2), model.TerritoryPolygon{
		Name: "ComEd", Utility: model.UtilityElectric,
	})
	idx.Insert(square(-88, 41, 2), model.TerritoryPolygon{
		Name: "Peoples Gas", Utility: model.UtilityGas,
	})

	gas, err := idx.QueryPoint(context.Background(), 41.8, -87.6, model.UtilityGas)
	require.NoError(t, err)
	require.Len(t, gas, 1)
	assert.Equal(t, "Peoples Gas", gas[0].Name)

	water, err := idx.QueryPoint(context.Background(), 41.8, -87.6, model.UtilityWater)
	require.NoError(t, err)
	assert.Empty(t, water)
}

func TestMemoryIndex_SmallestAreaFirst(t *testing.T) {
	idx := NewMemoryIndex()
	// Overlapping territories: a city inside an IOU footprint.
	idx.Insert(square(-98, 30, 10), model.TerritoryPolygon{
		Name: "Big IOU", Utility: model.UtilityElectric, AreaKM2: 140000,
	})
	idx.Insert(square(-97, 31, 1), model.TerritoryPolygon{
		Name: "City Municipal", Utility: model.UtilityElectric, AreaKM2: 500,
	})
	idx.Insert(square(-97.2, 30.8, 2), model.TerritoryPolygon{
		Name: "No Area Co-op", Utility: model.UtilityElectric,
	})

	hits, err := idx.QueryPoint(context.Background(), 31.5, -96.5, model.UtilityElectric)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "City Municipal", hits[0].Name)
	assert.Equal(t, "Big IOU", hits[1].Name)
	// Unknown area sorts last even though the polygon is small.
	assert.Equal(t, "No Area Co-op", hits[2].Name)
}

func TestMemoryIndex_BoundaryPointIncluded(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Insert(square(-88, 41, 2), model.TerritoryPolygon{
		Name: "ComEd", Utility: model.UtilityElectric,
	})

	// Point on the polygon edge counts as inside.
	hits, err := idx.QueryPoint(context.Background(), 41, -87, model.UtilityElectric)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestMemoryIndex_LoadedFlag(t *testing.T) {
	idx := NewMemoryIndex()
	assert.False(t, idx.Loaded())
	idx.MarkLoaded()
	assert.True(t, idx.Loaded())
}

func TestMemoryIndex_Counts(t *testing.T) {
	idx := NewMemoryIndex()
	idx.Insert(square(0, 0, 1), model.TerritoryPolygon{Name: "A", Utility: model.UtilityElectric})
	idx.Insert(square(2, 2, 1), model.TerritoryPolygon{Name: "B", Utility: model.UtilityElectric})
	idx.Insert(square(4, 4, 1), model.TerritoryPolygon{Name: "C", Utility: model.UtilityWater})

	assert.Equal(t, 2, idx.Count(model.UtilityElectric))
	assert.Equal(t, 1, idx.Count(model.UtilityWater))
	assert.Equal(t, 0, idx.Count(model.UtilityGas))
	assert.Equal(t, 3, idx.Len())
}
