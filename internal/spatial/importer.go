package spatial

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const importBatchSize = 5000

// ImportPool is the subset of pgxpool.Pool the importer needs.
type ImportPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var importColumns = []string{
	"name", "state", "provider_type", "customers",
	"eia_id", "pwsid", "holding_co", "control_area", "geom",
}

// ImportLayer loads a shapefile layer into its PostGIS territory table,
// replacing any existing rows. Geometries are COPY-loaded as EWKB; area is
// measured afterwards on the geography type so it matches the equal-area
// figures the in-memory index computes.
func ImportLayer(ctx context.Context, pool ImportPool, layer Layer) (int64, error) {
	table, ok := territoryTables[layer.Utility]
	if !ok {
		return 0, eris.Errorf("spatial: no territory table for utility %q", layer.Utility)
	}
	schema, name, err := splitTable(table)
	if err != nil {
		return 0, err
	}

	log := zap.L().With(
		zap.String("component", "spatial.importer"),
		zap.String("layer", layer.Name),
		zap.String("table", table),
	)

	if err := ensureTerritoryTable(ctx, pool, schema, name); err != nil {
		return 0, err
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", pgx.Identifier{schema, name}.Sanitize())); err != nil {
		return 0, eris.Wrapf(err, "spatial: truncate %s", table)
	}

	rows, err := parseLayerRows(layer)
	if err != nil {
		return 0, err
	}

	var total int64
	for i := 0; i < len(rows); i += importBatchSize {
		end := i + importBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := pool.CopyFrom(ctx, pgx.Identifier{schema, name}, importColumns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "spatial: COPY into %s (batch %d-%d)", table, i, end)
		}
		total += n
	}

	// Measured on the geography type so vast northern territories are not
	// inflated the way planar degrees would inflate them.
	areaSQL := fmt.Sprintf(
		"UPDATE %s SET area_km2 = ST_Area(geom::geography) / 1000000.0 WHERE area_km2 IS NULL",
		pgx.Identifier{schema, name}.Sanitize(),
	)
	if _, err := pool.Exec(ctx, areaSQL); err != nil {
		return total, eris.Wrapf(err, "spatial: compute areas for %s", table)
	}

	log.Info("territory layer imported", zap.Int64("rows", total))
	return total, nil
}

func ensureTerritoryTable(ctx context.Context, pool ImportPool, schema, name string) error {
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())); err != nil {
		return eris.Wrapf(err, "spatial: create schema %s", schema)
	}

	table := pgx.Identifier{schema, name}.Sanitize()
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			state TEXT,
			provider_type TEXT,
			area_km2 DOUBLE PRECISION,
			customers BIGINT,
			eia_id TEXT,
			pwsid TEXT,
			holding_co TEXT,
			control_area TEXT,
			geom geometry(MultiPolygon, 4326)
		)`, table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "spatial: create table %s.%s", schema, name)
	}

	idx := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)",
		pgx.Identifier{fmt.Sprintf("idx_%s_geom", name)}.Sanitize(), table,
	)
	if _, err := pool.Exec(ctx, idx); err != nil {
		return eris.Wrapf(err, "spatial: create spatial index on %s.%s", schema, name)
	}
	return nil
}

// parseLayerRows reads the layer's shapefile into rows matching
// importColumns. Records with no name or unusable geometry are skipped.
func parseLayerRows(layer Layer) ([][]any, error) {
	reader, err := shp.Open(layer.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: open shapefile %s", layer.Path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToLower(strings.TrimRight(f.String(), "\x00"))] = i
	}
	attr := func(col string) any {
		if col == "" {
			return nil
		}
		i, ok := fieldIdx[strings.ToLower(col)]
		if !ok {
			return nil
		}
		v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		if v == "" {
			return nil
		}
		return v
	}

	var rows [][]any
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		wkb, encErr := encodeTerritoryGeom(shape)
		if encErr != nil || wkb == nil {
			skipped++
			continue
		}

		name, _ := attr(layer.Fields.Name).(string)
		if name == "" {
			skipped++
			continue
		}

		rows = append(rows, []any{
			name,
			attrOrDefault(attr(layer.Fields.State), layer.DefaultState),
			attrOrDefault(attr(layer.Fields.Type), layer.DefaultType),
			attr(layer.Fields.Customers),
			attr(layer.Fields.EIAID),
			attr(layer.Fields.PWSID),
			attr(layer.Fields.HoldingCo),
			attr(layer.Fields.ControlArea),
			wkb,
		})
	}

	if skipped > 0 {
		zap.L().Debug("spatial: skipped shapefile records",
			zap.String("layer", layer.Name),
			zap.Int("skipped", skipped),
		)
	}
	return rows, nil
}

func attrOrDefault(v any, fallback string) any {
	if v != nil {
		return v
	}
	if fallback == "" {
		return nil
	}
	return fallback
}

func splitTable(table string) (schema, name string, err error) {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) != 2 {
		return "", "", eris.Errorf("spatial: malformed table name %q", table)
	}
	return parts[0], parts[1], nil
}
