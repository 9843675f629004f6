package pagination

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dpe-analyse/dpe-client/internal/testutil"
	"github.com/dpe-analyse/dpe-client/pkg/client"
	"github.com/dpe-analyse/dpe-client/pkg/record"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// fakeFetcher replays a fixed sequence of pages or errors.
type fakeFetcher struct {
	pages    []*client.Page
	errs     []error
	requests []client.Request
}

func (f *fakeFetcher) FetchPage(ctx context.Context, req client.Request) (*client.Page, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.pages) {
		return &client.Page{}, nil
	}
	return f.pages[i], nil
}

func makeRecords(prefix string, n int) []record.Record {
	out := make([]record.Record, n)
	for i := range out {
		r := record.New()
		r.Set("numero_dpe", record.Str(fmt.Sprintf("%s%d", prefix, i)))
		out[i] = r
	}
	return out
}

func newMockClient(t *testing.T, mock *testutil.MockDPE, pageSize int) *client.Client {
	t.Helper()

	cfg := client.DefaultConfig("DPEAnalyse/1.0 (test@example.com)")
	cfg.BaseURL = mock.Endpoint()
	cfg.PageSize = pageSize
	cfg.Timeout = 2 * time.Second
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func TestRun_ZoneTwoPages(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H1a",
		`{"numero_dpe": "A1", "zone_climatique": "H1a"}`,
		`{"numero_dpe": "A2", "zone_climatique": "H1a"}`,
		`{"numero_dpe": "A3", "zone_climatique": "H1a"}`,
	)

	c := newMockClient(t, mock, 2)
	driver := NewDriver(c, DefaultConfig())
	result := driver.Run(context.Background(), c.Endpoint(), c.Filter("zone_climatique", "H1a"))

	if len(result.Records) != 3 {
		t.Fatalf("len(Records) = %d, want 3", len(result.Records))
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}
	if result.Requests != 2 || result.Pages != 2 {
		t.Errorf("Requests = %d, Pages = %d, want 2 and 2", result.Requests, result.Pages)
	}
	if result.Stop != StopExhausted {
		t.Errorf("Stop = %q, want %q", result.Stop, StopExhausted)
	}
	if !result.Complete() {
		t.Error("run should be complete")
	}
	if result.Total != 3 {
		t.Errorf("Total = %d, want 3", result.Total)
	}
	for i, want := range []string{"A1", "A2", "A3"} {
		v, _ := result.Records[i].Get("numero_dpe")
		if v.Text() != want {
			t.Errorf("record %d = %q, want %q", i, v.Text(), want)
		}
	}

	// The first request carries the filter, the second only the next link.
	queries := mock.GetQueries()
	if got := queries[0].Get("qs"); got != "zone_climatique:H1a" {
		t.Errorf("first qs = %q", got)
	}
	if got := queries[1].Get("after"); got != "2" {
		t.Errorf("second request after = %q, want 2", got)
	}
}

func TestRun_EndOfRangeOnSecondPage(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("code_departement_ban", "92",
		`{"numero_dpe": "B1"}`, `{"numero_dpe": "B2"}`,
		`{"numero_dpe": "B3"}`, `{"numero_dpe": "B4"}`,
	)
	mock.SetPageResponse(2, testutil.NewEndOfRangeResponse())

	c := newMockClient(t, mock, 2)
	result := NewDriver(c, DefaultConfig()).Run(context.Background(), c.Endpoint(), c.Filter("code_departement_ban", "92"))

	if len(result.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(result.Records))
	}
	if result.Stop != StopError {
		t.Errorf("Stop = %q, want %q", result.Stop, StopError)
	}
	if client.ClassOf(result.Err) != client.ErrorClassEndOfRange {
		t.Errorf("error class = %q, want end_of_range", client.ClassOf(result.Err))
	}
	if !result.Complete() {
		t.Error("end of range should count as complete")
	}
}

func TestRun_TimeoutOnFirstPage(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H2b", `{"numero_dpe": "C1"}`)
	mock.SetPageResponse(1, testutil.MockDPEResponse{Delay: time.Second})

	cfg := client.DefaultConfig("DPEAnalyse/1.0")
	cfg.BaseURL = mock.Endpoint()
	cfg.Timeout = 50 * time.Millisecond
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	result := NewDriver(c, DefaultConfig()).Run(context.Background(), c.Endpoint(), c.Filter("zone_climatique", "H2b"))

	if len(result.Records) != 0 {
		t.Errorf("len(Records) = %d, want 0", len(result.Records))
	}
	if result.Requests != 1 {
		t.Errorf("Requests = %d, want 1", result.Requests)
	}
	if client.ClassOf(result.Err) != client.ErrorClassNetwork {
		t.Errorf("error class = %q, want network", client.ClassOf(result.Err))
	}
	if result.Complete() {
		t.Error("timeout must not count as complete")
	}
}

func TestRun_ServerErrorKeepsPartial(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []*client.Page{
			{Records: makeRecords("a", 3), Next: "http://x/lines?after=3"},
		},
		errs: []error{nil, &client.FetchError{StatusCode: 502, Class: client.ErrorClassServer}},
	}

	result := NewDriver(fetcher, DefaultConfig()).Run(context.Background(), "http://x/lines", client.Filter{Field: "f", Value: "v", PageSize: 3})

	if len(result.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3", len(result.Records))
	}
	if result.Complete() {
		t.Error("server error must not count as complete")
	}
	if result.Total != -1 {
		t.Errorf("Total = %d, want -1 when never advertised", result.Total)
	}
}

func TestRun_EmptyPageStops(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []*client.Page{
			{Records: makeRecords("a", 2), Next: "http://x/lines?after=2"},
			{Next: "http://x/lines?after=4"},
			{Records: makeRecords("never", 2)},
		},
	}

	result := NewDriver(fetcher, DefaultConfig()).Run(context.Background(), "http://x/lines", client.Filter{Field: "f", Value: "v", PageSize: 2})

	if result.Stop != StopEmptyPage {
		t.Errorf("Stop = %q, want %q", result.Stop, StopEmptyPage)
	}
	if len(result.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(result.Records))
	}
	if len(fetcher.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(fetcher.requests))
	}
}

func TestRun_EmptyPageFromServer(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H3", `{"n": 1}`, `{"n": 2}`)
	mock.SetNextOnLastPage(true)

	c := newMockClient(t, mock, 2)
	result := NewDriver(c, DefaultConfig()).Run(context.Background(), c.Endpoint(), c.Filter("zone_climatique", "H3"))

	if result.Stop != StopEmptyPage {
		t.Errorf("Stop = %q, want %q", result.Stop, StopEmptyPage)
	}
	if len(result.Records) != 2 || mock.GetRequestCount() != 2 {
		t.Errorf("records = %d, requests = %d, want 2 and 2", len(result.Records), mock.GetRequestCount())
	}
}

func TestRun_ContinuationRequestsCarryNoFilter(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: []*client.Page{
			{Records: makeRecords("a", 1), Next: "http://x/lines?after=1"},
			{Records: makeRecords("b", 1), Next: "http://x/lines?after=2"},
			{Records: makeRecords("c", 1)},
		},
	}
	filter := client.Filter{Field: "zone_climatique", Value: "H1a", PageSize: 1}

	result := NewDriver(fetcher, DefaultConfig()).Run(context.Background(), "http://x/lines", filter)

	if len(result.Records) != 3 {
		t.Fatalf("len(Records) = %d, want 3", len(result.Records))
	}
	if f, ok := fetcher.requests[0].Filter(); !ok || f != filter {
		t.Errorf("first request filter = %+v, %v", f, ok)
	}
	for i, req := range fetcher.requests[1:] {
		if !req.IsContinuation() {
			t.Errorf("request %d is not a continuation", i+2)
		}
	}
	if got, _ := fetcher.requests[2].URL(); got != "http://x/lines?after=2" {
		t.Errorf("third URL = %q", got)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	fetcher := &fakeFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewDriver(fetcher, DefaultConfig()).Run(ctx, "http://x/lines", client.Filter{Field: "f", Value: "v", PageSize: 1})

	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", result.Err)
	}
	if len(fetcher.requests) != 0 {
		t.Errorf("requests = %d, want 0", len(fetcher.requests))
	}
}

func TestRun_ProgressCheckpoint(t *testing.T) {
	var buf bytes.Buffer
	saved := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = saved }()

	fetcher := &fakeFetcher{
		pages: []*client.Page{
			{Records: makeRecords("a", 3), Next: "n1", Total: 10, TotalKnown: true},
			{Records: makeRecords("b", 3), Next: "n2"},
			{Records: makeRecords("c", 3), Next: "n3"},
			{Records: makeRecords("d", 1)},
		},
	}

	NewDriver(fetcher, Config{ProgressEvery: 4}).Run(context.Background(), "http://x/lines", client.Filter{Field: "f", Value: "v", PageSize: 3})

	// Crossings at 6 (past 4) and 9 (past 8); 3 and 10 cross nothing.
	if got := strings.Count(buf.String(), `"message":"Fetch progress"`); got != 2 {
		t.Errorf("progress checkpoints = %d, want 2\n%s", got, buf.String())
	}
}

func TestResult_Complete(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		expected bool
	}{
		{name: "exhausted", result: Result{Stop: StopExhausted}, expected: true},
		{name: "empty page", result: Result{Stop: StopEmptyPage}, expected: true},
		{name: "end of range", result: Result{Stop: StopError, Err: &client.FetchError{StatusCode: http.StatusBadRequest, Class: client.ErrorClassEndOfRange}}, expected: true},
		{name: "decode", result: Result{Stop: StopError, Err: &client.FetchError{Class: client.ErrorClassDecode}}, expected: false},
		{name: "no stop", result: Result{}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Complete(); got != tt.expected {
				t.Errorf("Complete() = %v, want %v", got, tt.expected)
			}
		})
	}
}
