package spatial

import (
	"math"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

const (
	wgs84Proj = "+proj=longlat +datum=WGS84 +no_defs"

	// Contiguous-US Albers equal-area, used only to measure territory area.
	albersProj = "+proj=aea +lat_1=29.5 +lat_2=45.5 +lat_0=37.5 +lon_0=-96 " +
		"+x_0=0 +y_0=0 +datum=NAD83 +units=m +no_defs"
)

// LoadManifestLayers decodes every layer in the manifest into the index and
// marks it loaded. Layers that fail to open are logged and skipped so one
// bad shapefile does not take down the whole index.
func LoadManifestLayers(idx *MemoryIndex, m *Manifest) error {
	log := zap.L().With(zap.String("component", "spatial.loader"))

	var loadedLayers int
	for _, layer := range m.Layers {
		n, err := LoadLayer(idx, layer)
		if err != nil {
			log.Warn("skipping territory layer",
				zap.String("layer", layer.Name),
				zap.String("path", layer.Path),
				zap.Error(err),
			)
			continue
		}
		loadedLayers++
		log.Info("territory layer loaded",
			zap.String("layer", layer.Name),
			zap.String("utility", string(layer.Utility)),
			zap.Int("polygons", n),
		)
	}
	if loadedLayers == 0 && len(m.Layers) > 0 {
		return eris.New("spatial: no territory layers could be loaded")
	}

	idx.MarkLoaded()
	return nil
}

// LoadLayer decodes one shapefile layer into the index and returns the
// number of polygons inserted.
func LoadLayer(idx *MemoryIndex, layer Layer) (int, error) {
	d, err := shp.NewDecoder(layer.Path)
	if err != nil {
		return 0, eris.Wrapf(err, "spatial: open shapefile %s", layer.Path)
	}
	defer d.Close()

	// Reproject to WGS84. Shapefiles without a .prj are assumed to
	// already be in geographic coordinates.
	wgs84, err := proj.Parse(wgs84Proj)
	if err != nil {
		return 0, eris.Wrap(err, "spatial: parse WGS84 projection")
	}
	var toWGS84 proj.Transformer
	if srcSR, srErr := d.SR(); srErr == nil {
		toWGS84, err = srcSR.NewTransform(wgs84)
		if err != nil {
			return 0, eris.Wrapf(err, "spatial: build transform for %s", layer.Name)
		}
	}

	albers, err := proj.Parse(albersProj)
	if err != nil {
		return 0, eris.Wrap(err, "spatial: parse equal-area projection")
	}
	toAlbers, err := wgs84.NewTransform(albers)
	if err != nil {
		return 0, eris.Wrap(err, "spatial: build equal-area transform")
	}

	cols := layer.columns()
	var inserted int
	for {
		g, fields, more := d.DecodeRowFields(cols...)
		if !more {
			break
		}
		if g == nil {
			continue
		}
		if toWGS84 != nil {
			g, err = g.Transform(toWGS84)
			if err != nil {
				continue
			}
		}
		poly, ok := g.(geom.Polygonal)
		if !ok {
			continue
		}

		name := strings.TrimSpace(fields[layer.Fields.Name])
		if name == "" {
			continue
		}

		attrs := model.TerritoryPolygon{
			Name:        name,
			State:       attrOr(fields, layer.Fields.State, layer.DefaultState),
			Type:        attrOr(fields, layer.Fields.Type, layer.DefaultType),
			Utility:     layer.Utility,
			AreaKM2:     equalAreaKM2(poly, toAlbers),
			Customers:   attrInt(fields, layer.Fields.Customers),
			EIAID:       attrOr(fields, layer.Fields.EIAID, ""),
			PWSID:       attrOr(fields, layer.Fields.PWSID, ""),
			HoldingCo:   attrOr(fields, layer.Fields.HoldingCo, ""),
			ControlArea: attrOr(fields, layer.Fields.ControlArea, ""),
		}
		idx.Insert(poly, attrs)
		inserted++
	}
	if err := d.Error(); err != nil {
		return inserted, eris.Wrapf(err, "spatial: decode %s", layer.Name)
	}
	return inserted, nil
}

// equalAreaKM2 measures a polygon's area in km² using an equal-area
// projection. Degenerate geometry measures as 0, which sorts it last.
func equalAreaKM2(poly geom.Polygonal, toAlbers proj.Transformer) float64 {
	g, err := poly.Transform(toAlbers)
	if err != nil {
		return 0
	}
	projected, ok := g.(geom.Polygonal)
	if !ok {
		return 0
	}
	return math.Abs(projected.Area()) / 1e6
}

func attrOr(fields map[string]string, col, fallback string) string {
	if col == "" {
		return fallback
	}
	v := strings.TrimSpace(fields[col])
	if v == "" {
		return fallback
	}
	return v
}

func attrInt(fields map[string]string, col string) int {
	if col == "" {
		return 0
	}
	v := strings.TrimSpace(fields[col])
	if v == "" {
		return 0
	}
	// Shapefile numeric attributes decode as "12345" or "12345.0".
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}
