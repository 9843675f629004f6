package cache

import (
	"time"

	"github.com/dpe-analyse/dpe-client/pkg/pagination"
)

// Manifest records how a cache file was produced.
type Manifest struct {
	// Key is the filter the file was fetched for (see Key.String)
	Key string `json:"key"`

	// File is the cache file name
	File string `json:"file"`

	Records int `json:"records"`
	Columns int `json:"columns"`
	Pages   int `json:"pages"`

	// Stop is the pagination stop reason
	Stop string `json:"stop"`

	// Complete is true when the fetch ran out of data rather than failed
	Complete bool `json:"complete"`

	// RunID identifies the run that wrote the file
	RunID string `json:"run_id,omitempty"`

	// FetchedAt is when the file was written
	FetchedAt time.Time `json:"fetched_at"`

	// Size is the file size in bytes
	Size int64 `json:"size"`
}

// newManifest describes a freshly written file.
func newManifest(key Key, t *Table, result *pagination.Result, runID string, size int64) *Manifest {
	return &Manifest{
		Key:       key.String(),
		File:      key.Filename(),
		Records:   t.Len(),
		Columns:   len(t.Columns),
		Pages:     result.Pages,
		Stop:      string(result.Stop),
		Complete:  result.Complete(),
		RunID:     runID,
		FetchedAt: time.Now().UTC(),
		Size:      size,
	}
}

// Vouches reports whether the manifest backs a file of the given size as a
// complete fetch.
func (m *Manifest) Vouches(size int64) bool {
	return m != nil && m.Complete && m.Size == size
}
