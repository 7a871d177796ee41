package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/puma/internal/core/activity"
	"github.com/example/puma/internal/ports/primary"
)

// DefaultVehicleCategory is used when a catalog entry has no category.
const DefaultVehicleCategory = "Vehicle"

type vehicleFile struct {
	Vehicles []primary.Vehicle `yaml:"vehicles"`
}

// LoadVehicles reads a vehicle catalog of the form {"vehicles": [...]}.
// Entries without a barcode or name are skipped, and a repeated barcode keeps
// the last entry. A missing file yields an empty catalog.
func LoadVehicles(path string) ([]primary.Vehicle, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vehicle catalog: %w", err)
	}

	var file vehicleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vehicle catalog %s: %w", path, err)
	}

	index := make(map[string]int)
	var out []primary.Vehicle
	for _, v := range file.Vehicles {
		v = primary.Vehicle{
			Barcode:     strings.TrimSpace(v.Barcode),
			Name:        strings.TrimSpace(v.Name),
			Description: strings.TrimSpace(v.Description),
			Model:       strings.TrimSpace(v.Model),
			Category:    strings.TrimSpace(v.Category),
			Location:    strings.TrimSpace(v.Location),
		}
		if v.Barcode == "" || v.Name == "" {
			continue
		}
		if v.Category == "" {
			v.Category = DefaultVehicleCategory
		}
		if i, ok := index[v.Barcode]; ok {
			out[i] = v
			continue
		}
		index[v.Barcode] = len(out)
		out = append(out, v)
	}
	return out, nil
}

// SiteOptions returns the distinct vehicle locations, sorted.
func SiteOptions(vehicles []primary.Vehicle) []string {
	seen := make(map[string]bool)
	var sites []string
	for _, v := range vehicles {
		loc := strings.TrimSpace(v.Location)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		sites = append(sites, loc)
	}
	sort.Strings(sites)
	return sites
}

// LoadActivityCatalog reads the activity code catalog. A missing file, an
// empty code list or an empty tool list falls back to the defaults.
func LoadActivityCatalog(path string) (activity.Catalog, error) {
	def := activity.DefaultCatalog()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read activity catalog: %w", err)
	}

	var cat activity.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return def, fmt.Errorf("failed to parse activity catalog %s: %w", path, err)
	}

	var codes []activity.Code
	for _, c := range cat.Codes {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code == "" {
			continue
		}
		label := strings.TrimSpace(c.Label)
		if label == "" {
			label = code
		}
		codes = append(codes, activity.Code{Code: code, Label: label})
	}
	cat.Codes = codes
	if len(cat.Codes) == 0 {
		cat.Codes = def.Codes
	}
	if len(cat.Tools) == 0 {
		cat.Tools = def.Tools
	}
	if err := validate.Struct(cat); err != nil {
		return def, fmt.Errorf("activity catalog validation failed: %w", err)
	}
	return cat, nil
}
