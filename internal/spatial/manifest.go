package spatial

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/utility-lookup/internal/model"
)

// Manifest describes the shapefile layers that make up the territory index.
// It is loaded from a YAML file so layers can be added without a rebuild.
type Manifest struct {
	Layers []Layer `yaml:"layers"`
}

// Layer describes one shapefile layer and how its attribute columns map to
// territory fields.
type Layer struct {
	// Name labels the layer in logs, e.g. "hifld-electric-retail".
	Name string `yaml:"name"`

	// Path to the .shp file, relative to the manifest unless absolute.
	Path string `yaml:"path"`

	Utility model.UtilityType `yaml:"utility"`

	// DefaultType is used when the layer has no provider-type column,
	// e.g. "municipal" for a city-boundaries layer.
	DefaultType string `yaml:"default_type"`

	// DefaultState is used when the layer has no state column.
	DefaultState string `yaml:"default_state"`

	Fields LayerFields `yaml:"fields"`
}

// LayerFields maps shapefile attribute column names to territory fields.
// Only Name is required.
type LayerFields struct {
	Name        string `yaml:"name"`
	State       string `yaml:"state"`
	Type        string `yaml:"type"`
	Customers   string `yaml:"customers"`
	EIAID       string `yaml:"eia_id"`
	PWSID       string `yaml:"pwsid"`
	HoldingCo   string `yaml:"holding_co"`
	ControlArea string `yaml:"control_area"`
}

// LoadManifest reads a layer manifest from a YAML file. Relative layer paths
// are resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: read manifest")
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrap(err, "spatial: parse manifest")
	}

	base := filepath.Dir(path)
	for i := range m.Layers {
		l := &m.Layers[i]
		if l.Path == "" {
			return nil, eris.Errorf("spatial: layer %d (%s) has no path", i, l.Name)
		}
		if l.Fields.Name == "" {
			return nil, eris.Errorf("spatial: layer %d (%s) has no name field", i, l.Name)
		}
		switch l.Utility {
		case model.UtilityElectric, model.UtilityGas, model.UtilityWater, model.UtilitySewer, model.UtilityTrash:
		default:
			return nil, eris.Errorf("spatial: layer %d (%s) has invalid utility %q", i, l.Name, l.Utility)
		}
		if !filepath.IsAbs(l.Path) {
			l.Path = filepath.Join(base, l.Path)
		}
	}
	return &m, nil
}

// columns returns the attribute columns the loader must decode for this
// layer, skipping unset mappings.
func (l Layer) columns() []string {
	cols := []string{l.Fields.Name}
	for _, c := range []string{
		l.Fields.State, l.Fields.Type, l.Fields.Customers,
		l.Fields.EIAID, l.Fields.PWSID, l.Fields.HoldingCo, l.Fields.ControlArea,
	} {
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
