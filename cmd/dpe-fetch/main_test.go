package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dpe-analyse/dpe-client/internal/config"
	"github.com/dpe-analyse/dpe-client/internal/testutil"
	"github.com/dpe-analyse/dpe-client/pkg/cache"
)

func testConfig(t *testing.T, mock *testutil.MockDPE, policy string) *config.Config {
	t.Helper()
	return &config.Config{
		API: config.APIConfig{
			BaseURL:   mock.Endpoint(),
			UserAgent: "DPEAnalyse/1.0 (test@example.com)",
			PageSize:  2,
			Timeout:   2 * time.Second,
		},
		Fetch: config.FetchConfig{Field: "zone_climatique", Value: "H1a", ProgressEvery: 500000},
		Cache: config.CacheConfig{Dir: t.TempDir(), Policy: policy},
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(newServer(":0").Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	// Unlabelled collectors are exported as soon as they are registered.
	if !strings.Contains(string(body), "dpe_cache_hits_total") {
		t.Error("Expected metrics output to contain dpe_cache_hits_total")
	}
}

func TestRun_FetchesThenHitsCache(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H1a",
		`{"numero_dpe": "A1", "zone_climatique": "H1a"}`,
		`{"numero_dpe": "A2", "zone_climatique": "H1a"}`,
		`{"numero_dpe": "A3", "zone_climatique": "H1a"}`,
	)
	cfg := testConfig(t, mock, "legacy")

	outcome, err := run(context.Background(), cfg, nil, "run-1")
	if err != nil {
		t.Fatalf("run() failed: %v", err)
	}
	if !outcome.Written || outcome.Table.Len() != 3 {
		t.Fatalf("Written = %v, records = %d, want true and 3", outcome.Written, outcome.Table.Len())
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}

	path := filepath.Join(cfg.Cache.Dir, "Dpe_H1a.csv")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	outcome, err = run(context.Background(), cfg, nil, "run-2")
	if err != nil {
		t.Fatalf("second run() failed: %v", err)
	}
	if !outcome.Hit {
		t.Error("second run should hit the cache")
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("second run sent requests: total %d, want 2", mock.GetRequestCount())
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("cache file changed on a hit")
	}
}

func TestRun_StrictPolicyRefusesFailedFetch(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H1a", `{"numero_dpe": "A1"}`)
	mock.SetPageResponse(1, testutil.NewServerErrorResponse())
	cfg := testConfig(t, mock, "strict")

	_, err := run(context.Background(), cfg, nil, "run-1")
	if !errors.Is(err, cache.ErrIncompleteFetch) {
		t.Fatalf("err = %v, want ErrIncompleteFetch", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Cache.Dir, "Dpe_H1a.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("strict policy must not write a file, stat err = %v", err)
	}
}

func TestRun_InterruptedRunWritesNothing(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H1a", `{"numero_dpe": "A1"}`, `{"numero_dpe": "A2"}`)
	cfg := testConfig(t, mock, "legacy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := run(ctx, cfg, nil, "run-1")
	if !errors.Is(err, cache.ErrFetchInterrupted) {
		t.Fatalf("err = %v, want ErrFetchInterrupted", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Cache.Dir, "Dpe_H1a.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("an interrupted run must not write a file, stat err = %v", err)
	}

	// The next run starts from scratch.
	outcome, err := run(context.Background(), cfg, nil, "run-2")
	if err != nil {
		t.Fatalf("run() after interruption failed: %v", err)
	}
	if !outcome.Written || outcome.Table.Len() != 2 {
		t.Errorf("Written = %v, records = %d, want true and 2", outcome.Written, outcome.Table.Len())
	}
}

func TestRun_InvalidPolicy(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	cfg := testConfig(t, mock, "sometimes")

	if _, err := run(context.Background(), cfg, nil, "run-1"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("requests = %d, want 0", mock.GetRequestCount())
	}
}
