package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*ManifestStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewManifestStore(client), mr
}

func TestNewManifestStore_Panic(t *testing.T) {
	assert.Panics(t, func() { NewManifestStore(nil) })
}

func TestManifestKey(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "dpe:manifest:"+filepath.Join(dir, "Dpe_H1a.csv"), ManifestKey(filepath.Join(dir, "Dpe_H1a.csv")))
	assert.Equal(t,
		ManifestKey(filepath.Join(dir, "Dpe_H1a.csv")),
		ManifestKey(filepath.Join(dir, "sub", "..", "Dpe_H1a.csv")),
		"paths are cleaned")

	abs, err := filepath.Abs("Dpe_H1a.csv")
	require.NoError(t, err)
	assert.Equal(t, "dpe:manifest:"+abs, ManifestKey("Dpe_H1a.csv"), "relative paths are made absolute")
}

func TestManifestStore_SetAndGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	key := Key{Field: "zone_climatique", Value: "H1a"}
	path := filepath.Join(t.TempDir(), key.Filename())

	m := &Manifest{
		Key:       key.String(),
		File:      key.Filename(),
		Records:   3,
		Columns:   12,
		Pages:     2,
		Stop:      "exhausted",
		Complete:  true,
		RunID:     "run-1",
		FetchedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Size:      2048,
	}
	require.NoError(t, store.Set(ctx, path, m))

	assert.True(t, mr.Exists(ManifestKey(path)))
	assert.Zero(t, mr.TTL(ManifestKey(path)), "manifests must not expire")

	got, err := store.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestManifestStore_Miss(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), filepath.Join(t.TempDir(), "Dpe_H3.csv"))
	assert.ErrorIs(t, err, ErrManifestMiss)
}

func TestManifestStore_Invalid(t *testing.T) {
	store, mr := newTestStore(t)
	path := filepath.Join(t.TempDir(), "Dpe_H2d.csv")
	require.NoError(t, mr.Set(ManifestKey(path), "{not json"))

	_, err := store.Get(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestManifestStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	key := Key{Field: "code_departement_ban", Value: "13"}
	path := filepath.Join(t.TempDir(), key.Filename())

	require.NoError(t, store.Set(ctx, path, &Manifest{Key: key.String(), Complete: true}))
	require.NoError(t, store.Delete(ctx, path))

	_, err := store.Get(ctx, path)
	assert.ErrorIs(t, err, ErrManifestMiss)
}

func TestManifestStore_SetNil(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.Set(context.Background(), filepath.Join(t.TempDir(), "Dpe_v.csv"), nil))
}

func TestManifest_Vouches(t *testing.T) {
	var nilManifest *Manifest
	assert.False(t, nilManifest.Vouches(0))
	assert.True(t, (&Manifest{Complete: true, Size: 10}).Vouches(10))
	assert.False(t, (&Manifest{Complete: true, Size: 10}).Vouches(11))
	assert.False(t, (&Manifest{Complete: false, Size: 10}).Vouches(10))
}
