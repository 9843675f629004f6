package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dpe-analyse/dpe-client/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrFetchInterrupted is returned when the run's context ended during the
// fetch. Nothing is written for an interrupted fetch, whatever the policy.
var ErrFetchInterrupted = errors.New("fetch interrupted")

// FetchFunc runs the fetch for key to completion.
type FetchFunc func(ctx context.Context, key Key) *pagination.Result

// GateConfig holds gate configuration.
type GateConfig struct {
	// Dir is the directory holding the cache files
	Dir string

	// Policy decides which results are persisted
	Policy Policy

	// Store records manifests (optional)
	Store *ManifestStore

	// RunID is written into manifests (optional)
	RunID string
}

// Outcome describes what Ensure did.
type Outcome struct {
	Key  Key
	Path string

	// Hit is true when an existing file was loaded
	Hit bool

	// Written is true when a new file was persisted
	Written bool

	// Table holds the records, loaded or fetched
	Table *Table

	// Result is the pagination result; nil on a hit
	Result *pagination.Result

	// Manifest is the stored manifest, if any
	Manifest *Manifest
}

// Gate loads a filter's records from its cache file, fetching and writing
// the file first when it does not exist yet.
type Gate struct {
	config GateConfig
	logger zerolog.Logger
}

// NewGate creates a new cache gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if cfg.Policy.Name == "" {
		cfg.Policy = LegacyPolicy()
	}
	return &Gate{
		config: cfg,
		logger: log.With().Str("component", "dpe-cache").Logger(),
	}, nil
}

// Policy returns the write policy in use.
func (g *Gate) Policy() Policy {
	return g.config.Policy
}

// Path returns the cache file path for key.
func (g *Gate) Path(key Key) string {
	return filepath.Join(g.config.Dir, key.Filename())
}

// Ensure returns the records for key. An existing cache file is loaded
// without calling fetch. Otherwise fetch runs, and its result is persisted
// when the policy allows; a refused result is still returned in the Outcome,
// together with an error wrapping ErrIncompleteFetch. When ctx is canceled
// or times out during the fetch, nothing is written and the error wraps both
// ErrFetchInterrupted and the context error.
func (g *Gate) Ensure(ctx context.Context, key Key, fetch FetchFunc) (*Outcome, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	path := g.Path(key)
	logger := g.logger.With().
		Str("field", key.Field).
		Str("value", key.Value).
		Str("file", path).
		Logger()

	outcome, err := g.load(ctx, key, path, logger)
	if err != nil || outcome != nil {
		return outcome, err
	}

	CacheMisses.Inc()
	logger.Info().Msg("Cache miss - fetching")

	result := fetch(ctx, key)
	table := NewTable(result.Records)
	outcome = &Outcome{
		Key:    key,
		Path:   path,
		Table:  table,
		Result: result,
	}

	if err := interrupted(ctx, result); err != nil {
		CacheWrites.WithLabelValues("interrupted").Inc()
		logger.Error().
			Err(err).
			Int("records", table.Len()).
			Int("pages", result.Pages).
			Msg("Fetch interrupted - nothing cached")
		return outcome, err
	}

	if err := g.config.Policy.Check(result); err != nil {
		CacheWrites.WithLabelValues("refused").Inc()
		logger.Error().
			Err(err).
			Str("policy", g.config.Policy.Name).
			Int("records", table.Len()).
			Msg("Fetch result not cached")
		return outcome, err
	}
	if !result.Complete() {
		logger.Warn().
			Str("stop", string(result.Stop)).
			Int("records", table.Len()).
			Msg("Caching an incomplete fetch - later runs will treat it as complete")
	}

	size, err := WriteTable(path, table)
	if err != nil {
		CacheWrites.WithLabelValues("error").Inc()
		return outcome, fmt.Errorf("write cache file %s: %w", path, err)
	}
	CacheWrites.WithLabelValues("written").Inc()
	CacheSize.WithLabelValues(key.Filename()).Set(float64(size))
	outcome.Written = true

	logger.Info().
		Int("records", table.Len()).
		Int("columns", len(table.Columns)).
		Int64("size", size).
		Msg("Cache file written")

	if g.config.Store != nil {
		m := newManifest(key, table, result, g.config.RunID, size)
		if err := g.config.Store.Set(ctx, path, m); err != nil {
			// The file is already in place; a missing manifest only makes
			// a strict run refetch it.
			logger.Warn().Err(err).Msg("Failed to store cache manifest")
		} else {
			outcome.Manifest = m
		}
	}

	return outcome, nil
}

// interrupted returns an error when the run's context ended before or while
// result was fetched.
func interrupted(ctx context.Context, result *pagination.Result) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrFetchInterrupted, err)
	}
	if errors.Is(result.Err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrFetchInterrupted, result.Err)
	}
	return nil
}

// load returns a hit outcome, or nil when the file must be fetched.
func (g *Gate) load(ctx context.Context, key Key, path string, logger zerolog.Logger) (*Outcome, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat cache file: %w", err)
	}

	var manifest *Manifest
	if g.config.Policy.VerifyManifest && g.config.Store != nil {
		manifest, err = g.config.Store.Get(ctx, path)
		switch {
		case errors.Is(err, ErrManifestMiss):
			logger.Warn().Msg("Cache file has no manifest - refetching")
			return nil, nil
		case err != nil:
			logger.Warn().Err(err).Msg("Cache manifest unreadable - refetching")
			return nil, nil
		case !manifest.Vouches(info.Size()):
			logger.Warn().
				Bool("complete", manifest.Complete).
				Int64("manifest_size", manifest.Size).
				Int64("file_size", info.Size()).
				Msg("Cache file not backed by a complete fetch - refetching")
			return nil, nil
		}
	}

	table, err := ReadTable(path)
	if err != nil {
		return nil, fmt.Errorf("load cache file: %w", err)
	}

	CacheHits.Inc()
	logger.Info().
		Int("records", table.Len()).
		Msg("Cache hit - skipping fetch")

	return &Outcome{
		Key:      key,
		Path:     path,
		Hit:      true,
		Table:    table,
		Manifest: manifest,
	}, nil
}
