package spatial

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/utility-lookup/internal/model"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
layers:
  - name: hifld-electric-retail
    path: shapefiles/electric_retail.shp
    utility: electric
    fields:
      name: NAME
      state: STATE
      type: TYPE
      customers: CUSTOMERS
      eia_id: ID
      holding_co: HOLDING_CO
      control_area: CNTRL_AREA
  - name: water-service-areas
    path: /data/water.shp
    utility: water
    default_type: water_district
    fields:
      name: PWS_NAME
      state: STATE
      pwsid: PWSID
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Layers, 2)

	elec := m.Layers[0]
	assert.Equal(t, model.UtilityElectric, elec.Utility)
	assert.Equal(t, "NAME", elec.Fields.Name)
	assert.Equal(t, "CNTRL_AREA", elec.Fields.ControlArea)
	// Relative paths resolve against the manifest directory.
	assert.Equal(t, filepath.Join(filepath.Dir(path), "shapefiles/electric_retail.shp"), elec.Path)

	water := m.Layers[1]
	assert.Equal(t, "/data/water.shp", water.Path, "absolute paths pass through")
	assert.Equal(t, "water_district", water.DefaultType)
	assert.Equal(t, "PWSID", water.Fields.PWSID)
}

func TestLoadManifest_MissingPath(t *testing.T) {
	path := writeManifest(t, `
layers:
  - name: broken
    utility: electric
    fields:
      name: NAME
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no path")
}

func TestLoadManifest_MissingNameField(t *testing.T) {
	path := writeManifest(t, `
layers:
  - name: broken
    path: x.shp
    utility: gas
    fields:
      state: STATE
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name field")
}

func TestLoadManifest_InvalidUtility(t *testing.T) {
	path := writeManifest(t, `
layers:
  - name: broken
    path: x.shp
    utility: broadband
    fields:
      name: NAME
`)
	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid utility")
}

func TestLayerColumns(t *testing.T) {
	l := Layer{Fields: LayerFields{Name: "NAME", State: "STATE", EIAID: "ID"}}
	assert.Equal(t, []string{"NAME", "STATE", "ID"}, l.columns())

	minimal := Layer{Fields: LayerFields{Name: "NAME"}}
	assert.Equal(t, []string{"NAME"}, minimal.columns())
}
