package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/puma/internal/core/activity"
)

func TestLoadVehicles(t *testing.T) {
	path := writeFile(t, t.TempDir(), "vehicles_catalog.json", `{
  "vehicles": [
    {"barcode": " 12 ", "name": "Hilux", "location": "Yard"},
    {"barcode": "", "name": "No barcode"},
    {"barcode": "13", "name": ""},
    {"barcode": "14", "name": "Landcruiser", "category": "LV", "location": "Pit 4"},
    {"barcode": "12", "name": "Hilux SR5", "location": "Yard"}
  ]
}`)

	vehicles, err := LoadVehicles(path)
	require.NoError(t, err)
	require.Len(t, vehicles, 2)

	assert.Equal(t, "12", vehicles[0].Barcode)
	assert.Equal(t, "Hilux SR5", vehicles[0].Name)
	assert.Equal(t, DefaultVehicleCategory, vehicles[0].Category)
	assert.Equal(t, "LV", vehicles[1].Category)

	assert.Equal(t, []string{"Pit 4", "Yard"}, SiteOptions(vehicles))
}

func TestLoadVehicles_MissingFile(t *testing.T) {
	vehicles, err := LoadVehicles(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, vehicles)
}

func TestLoadVehicles_Malformed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "vehicles_catalog.json", `{"vehicles": [`)
	_, err := LoadVehicles(path)
	assert.Error(t, err)
}

func TestLoadActivityCatalog(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.json", `{
  "activity_codes": [
    {"code": "log", "label": "Logging"},
    {"code": "SAF"},
    {"code": " "}
  ]
}`)

	cat, err := LoadActivityCatalog(path)
	require.NoError(t, err)

	require.Len(t, cat.Codes, 2)
	assert.Equal(t, activity.Code{Code: "LOG", Label: "Logging"}, cat.Codes[0])
	assert.Equal(t, activity.Code{Code: "SAF", Label: "SAF"}, cat.Codes[1])
	assert.Equal(t, activity.DefaultTools, cat.Tools)
	assert.Equal(t, "Logging", cat.Label("log"))
}

func TestLoadActivityCatalog_Defaults(t *testing.T) {
	cat, err := LoadActivityCatalog(filepath.Join(t.TempDir(), "catalog.json"))
	require.NoError(t, err)
	assert.Equal(t, activity.DefaultCatalog(), cat)

	path := writeFile(t, t.TempDir(), "catalog.json", `{"activity_codes": [], "tools": []}`)
	cat, err = LoadActivityCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Codes, len(activity.DefaultCodes))
}
