// Package spatial answers point-in-polygon queries against utility service
// territory layers. Two backends are provided: an in-memory R-tree index
// built from shapefiles, and a PostGIS-backed index for deployments that
// keep territories in a database.
package spatial

import (
	"context"
	"sort"

	"github.com/sells-group/utility-lookup/internal/model"
)

// Index answers point-in-polygon queries for utility service territories.
type Index interface {
	// QueryPoint returns the territories of the given utility type that
	// contain the point, ordered smallest area first. A miss returns an
	// empty slice, not an error.
	QueryPoint(ctx context.Context, lat, lon float64, utility model.UtilityType) ([]model.TerritoryPolygon, error)
}

// sortByArea orders territories smallest first. Territories with unknown
// area sort last so a known small polygon always wins over an unmeasured one.
func sortByArea(polys []model.TerritoryPolygon) {
	sort.SliceStable(polys, func(i, j int) bool {
		ai, aj := polys[i].AreaKM2, polys[j].AreaKM2
		switch {
		case ai <= 0:
			return false
		case aj <= 0:
			return true
		default:
			return ai < aj
		}
	})
}
