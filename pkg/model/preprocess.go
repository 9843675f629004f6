package model

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type numericColumn struct {
	index  int
	name   string
	median float64
	mean   float64
	scale  float64
}

type categoricalColumn struct {
	index      int
	name       string
	fill       string
	categories []string
}

// Preprocessor turns frame rows into a design matrix. It is fitted on the
// training rows and then applied unchanged to any rows.
type Preprocessor struct {
	numeric     []numericColumn
	categorical []categoricalColumn
	width       int
}

// FitPreprocessor learns imputation values, scaling and categories from rows.
// Columns without a single observed value in rows are dropped.
func FitPreprocessor(f *Frame, rows []int) *Preprocessor {
	p := &Preprocessor{}

	for j, name := range f.Numeric {
		observed := make([]float64, 0, len(rows))
		for _, r := range rows {
			if x := f.Num[r][j]; !math.IsNaN(x) {
				observed = append(observed, x)
			}
		}
		if len(observed) == 0 {
			continue
		}
		med := median(observed)

		imputed := make([]float64, len(rows))
		for i, r := range rows {
			imputed[i] = f.Num[r][j]
			if math.IsNaN(imputed[i]) {
				imputed[i] = med
			}
		}
		mean, std := stat.PopMeanStdDev(imputed, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		p.numeric = append(p.numeric, numericColumn{index: j, name: name, median: med, mean: mean, scale: std})
	}

	for j, name := range f.Categorical {
		counts := make(map[string]int)
		for _, r := range rows {
			if c := f.Cat[r][j]; c != "" {
				counts[c]++
			}
		}
		if len(counts) == 0 {
			continue
		}
		fill := mostFrequent(counts)

		// The fill value is itself a category of the imputed column.
		categories := make([]string, 0, len(counts))
		for c := range counts {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		p.categorical = append(p.categorical, categoricalColumn{index: j, name: name, fill: fill, categories: categories})
	}

	p.width = len(p.numeric)
	for _, c := range p.categorical {
		p.width += len(c.categories)
	}
	return p
}

// Width returns the number of design matrix columns.
func (p *Preprocessor) Width() int { return p.width }

// FeatureNames returns the design matrix column names; one-hot columns are
// named "column=category".
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.width)
	for _, c := range p.numeric {
		names = append(names, c.name)
	}
	for _, c := range p.categorical {
		for _, cat := range c.categories {
			names = append(names, c.name+"="+cat)
		}
	}
	return names
}

// Transform builds the design matrix for rows. Categories not seen during
// fitting encode as all zeros.
func (p *Preprocessor) Transform(f *Frame, rows []int) *mat.Dense {
	x := mat.NewDense(len(rows), p.width, nil)
	for i, r := range rows {
		col := 0
		for _, c := range p.numeric {
			v := f.Num[r][c.index]
			if math.IsNaN(v) {
				v = c.median
			}
			x.Set(i, col, (v-c.mean)/c.scale)
			col++
		}
		for _, c := range p.categorical {
			v := f.Cat[r][c.index]
			if v == "" {
				v = c.fill
			}
			if k := sort.SearchStrings(c.categories, v); k < len(c.categories) && c.categories[k] == v {
				x.Set(i, col+k, 1)
			}
			col += len(c.categories)
		}
	}
	return x
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// mostFrequent returns the most common value, the smallest one on ties.
func mostFrequent(counts map[string]int) string {
	best, bestN := "", -1
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}
