package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dpe-analyse/dpe-client/pkg/cache"
)

// DefaultPattern locates a department's cache file below the data root.
// {dep} is replaced by the department code.
const DefaultPattern = "{dep}/*Dpe_dep_*{dep}*.csv"

var (
	// ErrDatasetNotFound indicates no file matched the department pattern
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrMissingTarget indicates the dataset has no target column
	ErrMissingTarget = errors.New("target column missing")

	// ErrNoRows indicates no usable rows were left after filtering
	ErrNoRows = errors.New("no usable rows")

	// ErrTooFewRows indicates the rows cannot be split into train and test sets
	ErrTooFewRows = errors.New("too few rows to split")
)

// FindDataset returns the first file under root matching pattern for the
// department. An empty pattern means DefaultPattern.
func FindDataset(root, department, pattern string) (string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	glob := filepath.Join(root, strings.ReplaceAll(pattern, "{dep}", department))

	matches, err := filepath.Glob(glob)
	if err != nil {
		return "", fmt.Errorf("bad dataset pattern %q: %w", glob, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no file matches %s", ErrDatasetNotFound, glob)
	}
	return matches[0], nil
}

// LoadDataset reads a cache file.
func LoadDataset(path string) (*cache.Table, error) {
	t, err := cache.ReadTable(path)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	return t, nil
}
