package cache

import (
	"fmt"
	"strings"
)

// Well-known filter fields with short file names.
const (
	FieldZone       = "zone_climatique"
	FieldDepartment = "code_departement_ban"
)

// Key identifies one filter's cached result.
type Key struct {
	// Field is the filtered column (e.g., "zone_climatique")
	Field string

	// Value is the filter value (e.g., "H1a")
	Value string
}

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")

// Filename derives the cache file name.
//
// Example:
//
//	Key{Field: "zone_climatique", Value: "H1a"}.Filename()       // Dpe_H1a.csv
//	Key{Field: "code_departement_ban", Value: "92"}.Filename()   // Dpe_dep_92.csv
//	Key{Field: "classe_altitude", Value: "400-800m"}.Filename()  // Dpe_classe_altitude_400-800m.csv
func (k Key) Filename() string {
	value := unsafeName.Replace(k.Value)
	switch k.Field {
	case FieldZone:
		return fmt.Sprintf("Dpe_%s.csv", value)
	case FieldDepartment:
		return fmt.Sprintf("Dpe_dep_%s.csv", value)
	default:
		return fmt.Sprintf("Dpe_%s_%s.csv", unsafeName.Replace(k.Field), value)
	}
}

// String identifies the filter in logs and manifests.
// Format: dpe:field:value
func (k Key) String() string {
	return strings.Join([]string{"dpe", k.Field, k.Value}, ":")
}

// Validate reports whether the key can name a file.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Field) == "" {
		return fmt.Errorf("cache key: field is required")
	}
	if strings.TrimSpace(k.Value) == "" {
		return fmt.Errorf("cache key: value is required")
	}
	if k.Value == "." || k.Value == ".." {
		return fmt.Errorf("cache key: invalid value %q", k.Value)
	}
	return nil
}
