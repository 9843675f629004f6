package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/dpe-analyse/dpe-client/pkg/cache"
	"github.com/dpe-analyse/dpe-client/pkg/record"
)

// Source columns.
const (
	ColumnEnergy         = "type_energie_principale_chauffage"
	ColumnGenerator      = "type_generateur_chauffage_principal"
	ColumnTraversant     = "logement_traversant"
	ColumnRoofInsulation = "isolation_toiture"

	// TargetColumn is the final energy consumption for the five regulated uses.
	TargetColumn = "conso_5_usages_ef"
)

// Derived columns.
const (
	ColumnHeating         = "chauffage_simplifie"
	ColumnTraversantClean = "logement_traversant_clean"
	ColumnRoofClean       = "isolation_toiture_clean"
)

// EnergyElectric is the heating energy value the analysis keeps.
const EnergyElectric = "Électricité"

// TargetMax bounds plausible target values (exclusive).
const TargetMax = 100000

const unknown = "Inconnu"

// Heating system classes.
const (
	HeatingHeatPump = "Pompe à Chaleur (PAC)"
	HeatingJoule    = "Radiateur Électrique (Effet Joule)"
	HeatingBoiler   = "Chaudière Électrique"
	HeatingOther    = "Autre Élec"
	HeatingUnknown  = "Autre/Inconnu"
)

var (
	// NumericFeatures are used when present in the dataset.
	NumericFeatures = []string{
		"surface_habitable_logement",
		"annee_construction",
		"hauteur_sous_plafond",
	}

	// CategoricalFeatures are used when present in the dataset. The last
	// three are derived and always present.
	CategoricalFeatures = []string{
		"type_batiment",
		"zone_climatique",
		"classe_altitude",
		ColumnHeating,
		ColumnTraversantClean,
		ColumnRoofClean,
	}
)

var (
	heatPumpWords = []string{"pac", "pompe", "thermodynamique"}
	jouleWords    = []string{"radiateur", "convecteur", "panneau", "rayonnant", "standard"}
)

// SimplifyHeating maps a heating generator description to a heating class.
func SimplifyHeating(v record.Value) string {
	if v.IsNull() {
		return HeatingUnknown
	}
	s := strings.ToLower(v.Text())
	switch {
	case containsAny(s, heatPumpWords):
		return HeatingHeatPump
	case containsAny(s, jouleWords):
		return HeatingJoule
	case strings.Contains(s, "chaudière"):
		return HeatingBoiler
	default:
		return HeatingOther
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// flagLabel maps a 1/0 flag to yes/no, anything else to "Inconnu".
func flagLabel(v record.Value, yes, no string) string {
	f, ok := v.Float()
	switch {
	case !ok:
		return unknown
	case f == 1:
		return yes
	case f == 0:
		return no
	default:
		return unknown
	}
}

// Frame holds the model inputs, one row per dwelling.
type Frame struct {
	Numeric     []string
	Categorical []string

	// Num holds numeric features, NaN when missing
	Num [][]float64

	// Cat holds categorical features, "" when missing
	Cat [][]string

	Target []float64
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Target) }

// FrameStats counts rows through the filters.
type FrameStats struct {
	Rows int

	// EnergyFiltered is false when the energy column is absent and every row was kept
	EnergyFiltered bool
	ElectricRows   int

	// TargetRows is the number of rows with a plausible target
	TargetRows int
}

// BuildFrame selects electrically heated dwellings with a plausible target
// and extracts their features.
func BuildFrame(t *cache.Table) (*Frame, FrameStats, error) {
	stats := FrameStats{Rows: t.Len()}

	rows := t.Records
	if t.HasColumn(ColumnEnergy) {
		stats.EnergyFiltered = true
		rows = rows[:0:0]
		for _, rec := range t.Records {
			if v, ok := rec.Get(ColumnEnergy); ok && !v.IsNull() && v.Text() == EnergyElectric {
				rows = append(rows, rec)
			}
		}
	}
	stats.ElectricRows = len(rows)
	if len(rows) == 0 {
		return nil, stats, fmt.Errorf("%w after heating energy filter", ErrNoRows)
	}

	f := &Frame{}
	for _, c := range NumericFeatures {
		if t.HasColumn(c) {
			f.Numeric = append(f.Numeric, c)
		}
	}
	for _, c := range CategoricalFeatures {
		if isDerived(c) || t.HasColumn(c) {
			f.Categorical = append(f.Categorical, c)
		}
	}
	if !t.HasColumn(TargetColumn) {
		return nil, stats, fmt.Errorf("%w: %s", ErrMissingTarget, TargetColumn)
	}

	hasGenerator := t.HasColumn(ColumnGenerator)
	for _, rec := range rows {
		tv, _ := rec.Get(TargetColumn)
		y, ok := tv.Float()
		if !ok || math.IsNaN(y) || y <= 0 || y >= TargetMax {
			continue
		}

		derived := derive(rec, hasGenerator)

		num := make([]float64, len(f.Numeric))
		for i, c := range f.Numeric {
			num[i] = math.NaN()
			if v, ok := rec.Get(c); ok {
				if x, ok := v.Float(); ok {
					num[i] = x
				}
			}
		}

		cat := make([]string, len(f.Categorical))
		for i, c := range f.Categorical {
			if d, ok := derived[c]; ok {
				cat[i] = d
			} else if v, ok := rec.Get(c); ok && !v.IsNull() {
				cat[i] = v.Text()
			}
		}

		f.Num = append(f.Num, num)
		f.Cat = append(f.Cat, cat)
		f.Target = append(f.Target, y)
	}
	stats.TargetRows = f.Len()
	if f.Len() == 0 {
		return nil, stats, fmt.Errorf("%w after target filter", ErrNoRows)
	}
	return f, stats, nil
}

func isDerived(c string) bool {
	return c == ColumnHeating || c == ColumnTraversantClean || c == ColumnRoofClean
}

// derive computes the derived categorical columns of one record. Absent
// source columns yield "Inconnu".
func derive(rec record.Record, hasGenerator bool) map[string]string {
	out := map[string]string{
		ColumnHeating:         unknown,
		ColumnTraversantClean: unknown,
		ColumnRoofClean:       unknown,
	}
	if hasGenerator {
		v, _ := rec.Get(ColumnGenerator)
		out[ColumnHeating] = SimplifyHeating(v)
	}
	if v, ok := rec.Get(ColumnTraversant); ok {
		out[ColumnTraversantClean] = flagLabel(v, "Oui", "Non")
	}
	if v, ok := rec.Get(ColumnRoofInsulation); ok {
		out[ColumnRoofClean] = flagLabel(v, "Isolé", "Non Isolé")
	}
	return out
}
