package model

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds analyzer configuration.
type Config struct {
	// DataRoot is the directory holding one sub-directory per department
	DataRoot string

	// Pattern locates a department file below DataRoot ("" = DefaultPattern)
	Pattern string

	// TestFraction is the share of rows held out for scoring
	TestFraction float64

	// Seed makes the split reproducible
	Seed int64

	// RidgeAlpha is the ridge penalty
	RidgeAlpha float64
}

// DefaultConfig returns the default analyzer configuration.
func DefaultConfig() Config {
	return Config{
		DataRoot:     ".",
		Pattern:      DefaultPattern,
		TestFraction: 0.2,
		Seed:         42,
		RidgeAlpha:   1.0,
	}
}

// ModelResult is the test score of one fitted model.
type ModelResult struct {
	Model string `json:"model"`
	Score
	Err error `json:"-"`
}

// Report is the outcome of one department's analysis.
type Report struct {
	Department string
	Path       string
	Stats      FrameStats
	Features   []string
	TrainRows  int
	TestRows   int
	Results    []ModelResult

	// Best indexes Results, -1 when no model could be scored
	Best     int
	Duration time.Duration
}

// BestResult returns the model with the highest R².
func (r *Report) BestResult() (ModelResult, bool) {
	if r == nil || r.Best < 0 || r.Best >= len(r.Results) {
		return ModelResult{}, false
	}
	return r.Results[r.Best], true
}

// Analyzer fits and scores the models for each department.
type Analyzer struct {
	config Config
	logger zerolog.Logger
}

// NewAnalyzer creates a new analyzer. Zero fields fall back to DefaultConfig.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.DataRoot == "" {
		cfg.DataRoot = def.DataRoot
	}
	if cfg.Pattern == "" {
		cfg.Pattern = def.Pattern
	}
	if cfg.TestFraction == 0 {
		cfg.TestFraction = def.TestFraction
	}
	return &Analyzer{
		config: cfg,
		logger: log.With().Str("component", "dpe-model").Logger(),
	}
}

func (a *Analyzer) models() []Regressor {
	return []Regressor{
		&LinearRegression{},
		&Ridge{Alpha: a.config.RidgeAlpha},
		NewRandomForest(a.config.Seed),
		NewGradientBoosting(),
	}
}

// Run analyzes one department.
func (a *Analyzer) Run(department string) (*Report, error) {
	start := time.Now()
	logger := a.logger.With().Str("department", department).Logger()

	path, err := FindDataset(a.config.DataRoot, department, a.config.Pattern)
	if err != nil {
		return nil, err
	}
	table, err := LoadDataset(path)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("file", path).Int("records", table.Len()).Msg("Dataset loaded")

	frame, stats, err := BuildFrame(table)
	if err != nil {
		return nil, fmt.Errorf("department %s: %w", department, err)
	}
	if !stats.EnergyFiltered {
		logger.Warn().Str("column", ColumnEnergy).Msg("Heating energy column missing - keeping every row")
	}
	logger.Debug().
		Int("rows", stats.Rows).
		Int("electric_rows", stats.ElectricRows).
		Int("target_rows", stats.TargetRows).
		Msg("Frame built")

	train, test, err := TrainTestSplit(frame.Len(), a.config.TestFraction, a.config.Seed)
	if err != nil {
		return nil, fmt.Errorf("department %s: %w", department, err)
	}

	pre := FitPreprocessor(frame, train)
	if pre.Width() == 0 {
		return nil, fmt.Errorf("department %s: no usable features", department)
	}
	xTrain := pre.Transform(frame, train)
	xTest := pre.Transform(frame, test)
	yTrain := pick(frame.Target, train)
	yTest := pick(frame.Target, test)

	report := &Report{
		Department: department,
		Path:       path,
		Stats:      stats,
		Features:   pre.FeatureNames(),
		TrainRows:  len(train),
		TestRows:   len(test),
		Best:       -1,
	}

	for _, m := range a.models() {
		res := ModelResult{Model: m.Name()}
		if err := m.Fit(xTrain, yTrain); err != nil {
			res.Err = err
			res.Score = Score{RMSE: math.NaN(), R2: math.NaN()}
			logger.Error().Err(err).Str("model", m.Name()).Msg("Model fit failed")
		} else {
			res.Score = Evaluate(yTest, m.Predict(xTest))
			logger.Info().
				Str("model", m.Name()).
				Float64("rmse", res.RMSE).
				Float64("r2", res.R2).
				Msg("Model scored")
		}
		report.Results = append(report.Results, res)

		if res.Err == nil && (report.Best < 0 || better(res.R2, report.Results[report.Best].R2)) {
			report.Best = len(report.Results) - 1
		}
	}
	report.Duration = time.Since(start)

	if best, ok := report.BestResult(); ok {
		logger.Info().
			Str("model", best.Model).
			Float64("r2", best.R2).
			Dur("duration", report.Duration).
			Msg("Best model")
	}
	return report, nil
}

// RunAll analyzes each department in turn. A failing department is logged
// and reported in errs; it does not stop the others.
func (a *Analyzer) RunAll(departments []string) (reports []*Report, errs map[string]error) {
	errs = make(map[string]error)
	for _, dep := range departments {
		report, err := a.Run(dep)
		if err != nil {
			a.logger.Warn().Err(err).Str("department", dep).Msg("Department skipped")
			errs[dep] = err
			continue
		}
		reports = append(reports, report)
	}
	return reports, errs
}

func pick(xs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}
