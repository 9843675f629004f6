package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache files loaded without fetching
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dpe_cache_hits_total",
			Help: "Total number of DPE cache hits",
		},
	)

	// CacheMisses tracks cache files that had to be fetched
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dpe_cache_misses_total",
			Help: "Total number of DPE cache misses",
		},
	)

	// CacheWrites tracks write decisions by outcome
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpe_cache_writes_total",
			Help: "Total number of DPE cache write attempts by outcome",
		},
		[]string{"outcome"}, // "written", "refused", "error"
	)

	// CacheSize tracks the size of each cache file in bytes
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dpe_cache_size_bytes",
			Help: "Size of DPE cache files in bytes",
		},
		[]string{"file"},
	)

	// ManifestErrors tracks manifest store errors
	ManifestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dpe_manifest_errors_total",
			Help: "Total number of manifest store errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
