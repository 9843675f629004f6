// Package model estimates the final energy consumption of electrically heated
// dwellings from cached DPE records.
//
// For each department the analyzer loads the department's cache file, keeps
// the electrically heated dwellings, derives a few categorical features,
// then fits and scores four models on a fixed 80/20 split: ordinary least
// squares, ridge, a random forest and gradient boosting. The best model is
// the one with the highest R² on the held-out rows.
//
//	analyzer := model.NewAnalyzer(model.DefaultConfig())
//	report, err := analyzer.Run("92")
//	if errors.Is(err, model.ErrDatasetNotFound) {
//		// No cache file for this department.
//	}
//	best, _ := report.BestResult()
//
// Numeric features are median-imputed and standardised; categorical features
// are imputed with their most frequent value and one-hot encoded. Both steps
// are fitted on the training rows only.
//
// The tree models grow CART trees on squared error over histogram-binned
// features (at most 255 split points per feature), seeded for repeatable
// results.
package model
