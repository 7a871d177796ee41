package activity

import "strings"

// Codes offered when no catalog is configured.
var DefaultCodes = []string{"LOG", "CAL", "SAF", "ADM", "MTG", "DWN", "OTH"}

// DefaultTools are offered for tool-bearing codes when no catalog is configured.
var DefaultTools = []string{"Natural Gamma", "Density", "Neutron", "Other / Notes"}

// ToolCodes are the codes whose activities record a tool.
var ToolCodes = []string{"LOG", "CAL"}

// Code is one entry of the activity catalog.
type Code struct {
	Code  string `json:"code" yaml:"code" validate:"required"`
	Label string `json:"label" yaml:"label"`
}

// Catalog lists the activity codes and tools offered to users.
type Catalog struct {
	Codes []Code   `json:"activity_codes" yaml:"activity_codes" validate:"dive"`
	Tools []string `json:"tools" yaml:"tools"`
}

// DefaultCatalog returns the catalog used when none is configured. Labels
// default to the code itself.
func DefaultCatalog() Catalog {
	c := Catalog{Tools: append([]string(nil), DefaultTools...)}
	for _, code := range DefaultCodes {
		c.Codes = append(c.Codes, Code{Code: code, Label: code})
	}
	return c
}

// Label returns the label for code, falling back to the code when the
// catalog has no label for it.
func (c Catalog) Label(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, entry := range c.Codes {
		if strings.EqualFold(entry.Code, code) {
			if l := strings.TrimSpace(entry.Label); l != "" {
				return l
			}
			break
		}
	}
	return code
}

// TakesTool reports whether activities with code record a tool.
func TakesTool(code string) bool {
	for _, c := range ToolCodes {
		if strings.EqualFold(strings.TrimSpace(code), c) {
			return true
		}
	}
	return false
}
