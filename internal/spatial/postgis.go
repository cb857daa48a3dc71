package spatial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/utility-lookup/internal/model"
)

// territoryTables is an allowlist of per-utility territory tables. Table
// names are interpolated into SQL, so only these values may be used.
var territoryTables = map[model.UtilityType]string{
	model.UtilityElectric: "utility.electric_territories",
	model.UtilityGas:      "utility.gas_territories",
	model.UtilityWater:    "utility.water_territories",
	model.UtilitySewer:    "utility.sewer_territories",
	model.UtilityTrash:    "utility.trash_territories",
}

// Querier is the subset of pgxpool.Pool the PostGIS index needs. pgxmock
// satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostGISIndex implements Index against territory tables with GiST-indexed
// geometry columns.
type PostGISIndex struct {
	pool Querier
}

// NewPostGISIndex returns an index backed by the given pool.
func NewPostGISIndex(pool Querier) *PostGISIndex {
	return &PostGISIndex{pool: pool}
}

// QueryPoint implements Index using ST_Contains against the utility's
// territory table, smallest area first.
func (p *PostGISIndex) QueryPoint(ctx context.Context, lat, lon float64, utility model.UtilityType) ([]model.TerritoryPolygon, error) {
	table, ok := territoryTables[utility]
	if !ok {
		return nil, eris.Errorf("spatial: no territory table for utility %q", utility)
	}

	sql := fmt.Sprintf(`
		SELECT name, state, provider_type, area_km2, customers,
		       eia_id, pwsid, holding_co, control_area
		FROM %s
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY area_km2 ASC NULLS LAST`,
		table,
	)
	rows, err := p.pool.Query(ctx, sql, lon, lat)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: query %s", table)
	}
	defer rows.Close()

	var hits []model.TerritoryPolygon
	for rows.Next() {
		var t model.TerritoryPolygon
		var state, ptype, eiaID, pwsid, holdingCo, controlArea *string
		var areaKM2 *float64
		var customers *int64
		if err := rows.Scan(
			&t.Name, &state, &ptype, &areaKM2, &customers,
			&eiaID, &pwsid, &holdingCo, &controlArea,
		); err != nil {
			return nil, eris.Wrapf(err, "spatial: scan %s row", table)
		}
		t.Utility = utility
		t.State = deref(state)
		t.Type = deref(ptype)
		t.EIAID = deref(eiaID)
		t.PWSID = deref(pwsid)
		t.HoldingCo = deref(holdingCo)
		t.ControlArea = deref(controlArea)
		if areaKM2 != nil {
			t.AreaKM2 = *areaKM2
		}
		if customers != nil {
			t.Customers = int(*customers)
		}
		hits = append(hits, t)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "spatial: iterate %s rows", table)
	}
	return hits, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
