package spatial

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	tpgeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// encodeTerritoryGeom converts a shapefile polygon to EWKB bytes with SRID
// 4326 for COPY loading. Non-polygon shapes return nil, nil; territory
// layers are polygon-only.
func encodeTerritoryGeom(shape shp.Shape) ([]byte, error) {
	poly, ok := shape.(*shp.Polygon)
	if !ok || poly == nil || poly.NumParts == 0 || len(poly.Points) == 0 {
		return nil, nil
	}

	mp := tpgeom.NewMultiPolygon(tpgeom.XY).SetSRID(4326)

	for i := int32(0); i < poly.NumParts; i++ {
		start := poly.Parts[i]
		end := int32(len(poly.Points))
		if i+1 < poly.NumParts {
			end = poly.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, poly.Points[j].X, poly.Points[j].Y)
		}

		ring := tpgeom.NewLinearRingFlat(tpgeom.XY, flat)
		part := tpgeom.NewPolygon(tpgeom.XY)
		if err := part.Push(ring); err != nil {
			zap.L().Debug("spatial: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(part); err != nil {
			zap.L().Debug("spatial: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil, nil
	}

	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: encode territory geometry")
	}
	return data, nil
}
