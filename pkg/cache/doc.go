// Package cache makes a filter's fetch idempotent across runs by persisting
// its records as a CSV file.
//
// The Gate checks for the file derived from the filter before touching the
// network. When the file exists it is loaded as-is; otherwise the fetch runs
// to completion and the result is written atomically.
//
// # Basic Usage
//
//	gate, err := cache.NewGate(cache.GateConfig{
//		Dir:    "data",
//		Policy: cache.StrictPolicy(),
//		Store:  cache.NewManifestStore(redisClient),
//	})
//
//	key := cache.Key{Field: "zone_climatique", Value: "H1a"}
//	outcome, err := gate.Ensure(ctx, key, func(ctx context.Context, key cache.Key) *pagination.Result {
//		return driver.Run(ctx, dpeClient.Endpoint(), dpeClient.Filter(key.Field, key.Value))
//	})
//	if errors.Is(err, cache.ErrIncompleteFetch) {
//		// Nothing was written; outcome.Table still holds what was fetched.
//	}
//
// # Write Policy
//
// File existence is the only signal a later run sees, so persisting a failed
// or empty fetch marks the filter as done forever. LegacyPolicy always writes,
// including an empty file. StrictPolicy writes only complete fetches with at
// least one record, and with a ManifestStore configured it refetches files
// that have no complete manifest behind them. A fetch cut short by the run's
// own context (Ctrl-C, deadline) is never written, under any policy; Ensure
// returns an error wrapping ErrFetchInterrupted instead.
//
// Manifests are keyed by the absolute path of the cache file (see
// ManifestKey), so two filters sharing a file name share a manifest.
//
// # Metrics
//
//   - dpe_cache_hits_total - Files loaded without fetching
//   - dpe_cache_misses_total - Files missing or rejected
//   - dpe_cache_writes_total{outcome} - written, refused, interrupted, error
//   - dpe_cache_size_bytes{file} - Size of the last write per file
//   - dpe_manifest_errors_total{operation} - Manifest store errors
package cache
