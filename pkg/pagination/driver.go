package pagination

import (
	"context"
	"time"

	"github.com/dpe-analyse/dpe-client/pkg/client"
	"github.com/dpe-analyse/dpe-client/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination runs.
var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpe_pages_fetched_total",
		Help: "Total pages successfully fetched",
	})

	recordsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpe_records_fetched_total",
		Help: "Total records accumulated across pagination runs",
	})

	paginationStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpe_pagination_stops_total",
		Help: "Pagination runs by stop reason",
	}, []string{"reason"})
)

// StopReason tells why a run ended.
type StopReason string

const (
	// StopExhausted means the last page carried no continuation link.
	StopExhausted StopReason = "exhausted"

	// StopEmptyPage means a page came back without records.
	StopEmptyPage StopReason = "empty_page"

	// StopError means a page could not be fetched; see Result.Err.
	StopError StopReason = "error"
)

// Config holds driver configuration.
type Config struct {
	// ProgressEvery logs a checkpoint each time the accumulated record count
	// crosses a multiple of this value. Zero disables checkpoints.
	ProgressEvery int
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		ProgressEvery: 500000,
	}
}

// PageFetcher fetches a single page. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, req client.Request) (*client.Page, error)
}

// Result is the outcome of one run.
type Result struct {
	// Records holds every record fetched, in server order.
	Records []record.Record

	// Pages is the number of pages successfully fetched.
	Pages int

	// Requests is the number of fetch calls made, failed ones included.
	Requests int

	// Total is the last total advertised by the server, -1 when unknown.
	Total int64

	Stop StopReason

	// Err is the error that stopped the run, if any.
	Err error

	Duration time.Duration
}

// Complete reports whether the run ended because the data ran out rather
// than because of a failure.
func (r *Result) Complete() bool {
	switch r.Stop {
	case StopExhausted, StopEmptyPage:
		return true
	case StopError:
		return client.IsExpectedEnd(r.Err)
	default:
		return false
	}
}

// Driver runs a filter to completion, one page at a time.
type Driver struct {
	fetcher PageFetcher
	config  Config
}

// NewDriver creates a new driver.
func NewDriver(fetcher PageFetcher, config Config) *Driver {
	if config.ProgressEvery < 0 {
		config.ProgressEvery = 0
	}
	return &Driver{
		fetcher: fetcher,
		config:  config,
	}
}

// Run fetches every page matching filter, starting at endpoint.
func (d *Driver) Run(ctx context.Context, endpoint string, filter client.Filter) *Result {
	start := time.Now()
	result := &Result{Total: -1}

	logger := log.With().
		Str("field", filter.Field).
		Str("value", filter.Value).
		Logger()

	logger.Info().
		Str("endpoint", endpoint).
		Int("page_size", filter.PageSize).
		Msg("Starting paginated fetch")

	req := client.InitialRequest(endpoint, filter)
	for {
		if err := ctx.Err(); err != nil {
			result.Stop = StopError
			result.Err = err
			break
		}

		result.Requests++
		page, err := d.fetcher.FetchPage(ctx, req)
		if err != nil {
			result.Stop = StopError
			result.Err = err
			if client.IsExpectedEnd(err) {
				logger.Info().
					Int("page", result.Requests).
					Int("records", len(result.Records)).
					Msg("Server refused further pages - end of range")
			} else {
				logger.Warn().
					Err(err).
					Str("error_class", string(client.ClassOf(err))).
					Int("page", result.Requests).
					Int("records", len(result.Records)).
					Msg("Page fetch failed - stopping")
			}
			break
		}

		result.Pages++
		pagesFetchedTotal.Inc()
		if page.TotalKnown {
			result.Total = page.Total
		}

		if len(page.Records) == 0 {
			result.Stop = StopEmptyPage
			logger.Info().
				Int("page", result.Requests).
				Msg("Empty page - no more data")
			break
		}

		before := len(result.Records)
		result.Records = append(result.Records, page.Records...)
		recordsFetchedTotal.Add(float64(len(page.Records)))
		d.checkpoint(logger, before, len(result.Records), result.Total)

		if !page.HasNext() {
			result.Stop = StopExhausted
			break
		}
		req = client.ContinuationRequest(page.Next)
	}

	result.Duration = time.Since(start)
	paginationStopsTotal.WithLabelValues(string(result.Stop)).Inc()

	logger.Info().
		Int("records", len(result.Records)).
		Int("pages", result.Pages).
		Int("requests", result.Requests).
		Str("stop", string(result.Stop)).
		Bool("complete", result.Complete()).
		Dur("duration", result.Duration).
		Msg("Paginated fetch finished")

	return result
}

// checkpoint logs progress when the count crosses a ProgressEvery multiple.
func (d *Driver) checkpoint(logger zerolog.Logger, before, after int, total int64) {
	every := d.config.ProgressEvery
	if every <= 0 || after/every == before/every {
		return
	}
	ev := logger.Info().Int("records", after)
	if total >= 0 {
		ev = ev.Int64("total", total)
	}
	ev.Msg("Fetch progress")
}
