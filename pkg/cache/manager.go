package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrManifestMiss indicates no manifest exists for the key
	ErrManifestMiss = errors.New("manifest miss")

	// ErrInvalidManifest indicates the stored manifest is corrupted
	ErrInvalidManifest = errors.New("invalid manifest")
)

// manifestPrefix namespaces manifest keys in Redis.
const manifestPrefix = "dpe:manifest:"

// ManifestKey returns the Redis key of the manifest for the cache file at
// path. Keys follow the file, not the filter: filters that share a file name
// share a manifest, and the same filter cached in two directories does not.
func ManifestKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return manifestPrefix + filepath.Clean(path)
}

// ManifestStore keeps cache manifests in Redis, one per cache file path.
// Manifests never expire: a cache file stays valid until it is deleted.
type ManifestStore struct {
	redis *redis.Client
}

// NewManifestStore creates a new manifest store with Redis backend.
func NewManifestStore(redisClient *redis.Client) *ManifestStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &ManifestStore{
		redis: redisClient,
	}
}

// Get retrieves the manifest for the cache file at path.
// Returns ErrManifestMiss if there is none.
func (s *ManifestStore) Get(ctx context.Context, path string) (*Manifest, error) {
	data, err := s.redis.Get(ctx, ManifestKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrManifestMiss
		}
		ManifestErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		ManifestErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Set stores the manifest for the cache file at path.
func (s *ManifestStore) Set(ctx context.Context, path string, m *Manifest) error {
	if m == nil {
		return fmt.Errorf("manifest cannot be nil")
	}

	data, err := json.Marshal(m)
	if err != nil {
		ManifestErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal manifest: %w", err)
	}

	if err := s.redis.Set(ctx, ManifestKey(path), data, 0).Err(); err != nil {
		ManifestErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the manifest for the cache file at path.
func (s *ManifestStore) Delete(ctx context.Context, path string) error {
	if err := s.redis.Del(ctx, ManifestKey(path)).Err(); err != nil {
		ManifestErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
