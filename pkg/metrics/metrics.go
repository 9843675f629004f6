// Package metrics exposes the Prometheus metrics of the DPE client.
// The metrics themselves are defined in their respective packages (client,
// pagination, cache, ratelimit) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the DPE client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - dpe_requests_total{status} (Counter): Requests by HTTP status, or network_error / rate_limited
//   - dpe_request_duration_seconds (Histogram): Request duration
//   - dpe_errors_total{class} (Counter): Errors by class (decode, end_of_range, rate_limit, client, server, network)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - dpe_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - dpe_rate_limit_blocks_total (Counter): Requests blocked on an exhausted quota
//
// Pagination Metrics (pkg/pagination):
//   - dpe_pages_fetched_total (Counter): Pages fetched
//   - dpe_records_fetched_total (Counter): Records accumulated
//   - dpe_pagination_stops_total{reason} (Counter): Runs by stop reason (exhausted, empty_page, error)
//
// Cache Metrics (pkg/cache):
//   - dpe_cache_hits_total (Counter): Cache files loaded without fetching
//   - dpe_cache_misses_total (Counter): Cache files fetched
//   - dpe_cache_writes_total{outcome} (Counter): written, refused, interrupted, error
//   - dpe_cache_size_bytes{file} (Gauge): Size of each written cache file
//   - dpe_manifest_errors_total{operation} (Counter): Manifest store errors
//
// Example Prometheus Queries:
//
//   # Share of runs that ended on a failure
//   sum(rate(dpe_pagination_stops_total{reason="error"}[1d])) /
//   sum(rate(dpe_pagination_stops_total[1d]))
//
//   # Refused cache writes
//   increase(dpe_cache_writes_total{outcome="refused"}[1d])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(dpe_request_duration_seconds_bucket[5m]))
