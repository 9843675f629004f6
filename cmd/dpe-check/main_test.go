package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dpe-analyse/dpe-client/internal/config"
	"github.com/dpe-analyse/dpe-client/internal/testutil"
)

func TestRunChecks(t *testing.T) {
	var out bytes.Buffer
	ok := runChecks(context.Background(), &out, []check{
		{name: "first", fn: func(ctx context.Context) (string, error) { return "fine", nil }},
		{name: "second", fn: func(ctx context.Context) (string, error) { return "", errors.New("broken") }},
		{name: "third", fn: func(ctx context.Context) (string, error) { return "also fine", nil }},
	})

	if ok {
		t.Error("runChecks() = true with a failing check")
	}
	want := "✓ first: fine\n✗ second: broken\n✓ third: also fine\n"
	if out.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", out.String(), want)
	}
}

func TestCheckCacheDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	if _, err := checkCacheDir(dir); err != nil {
		t.Fatalf("checkCacheDir() failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}

func TestCheckRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	if _, err := checkRedis(context.Background(), &redis.Options{Addr: mr.Addr()}); err != nil {
		t.Errorf("checkRedis() failed: %v", err)
	}

	mr.Close()
	if _, err := checkRedis(context.Background(), &redis.Options{Addr: mr.Addr()}); err == nil {
		t.Error("checkRedis() succeeded against a stopped server")
	}
}

func TestCheckAPI(t *testing.T) {
	mock := testutil.NewMockDPE()
	defer mock.Close()
	mock.AddRecords("zone_climatique", "H1a", `{"numero_dpe": "A1"}`, `{"numero_dpe": "A2"}`)

	cfg := &config.Config{
		API: config.APIConfig{
			BaseURL:   mock.Endpoint(),
			UserAgent: "DPEAnalyse/1.0 (test@example.com)",
			PageSize:  1000,
			Timeout:   2 * time.Second,
		},
		Fetch: config.FetchConfig{Field: "zone_climatique", Value: "H1a"},
	}

	detail, err := checkAPI(context.Background(), cfg)
	if err != nil {
		t.Fatalf("checkAPI() failed: %v", err)
	}
	if !strings.Contains(detail, "2 records match") {
		t.Errorf("detail = %q", detail)
	}
	if got := mock.GetQueries()[0].Get("size"); got != "1" {
		t.Errorf("size = %q, want 1", got)
	}

	mock.SetPageResponse(1, testutil.NewServerErrorResponse())
	if _, err := checkAPI(context.Background(), cfg); err == nil {
		t.Error("checkAPI() succeeded against a failing server")
	}
}

func TestChecks_Selection(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Dir: t.TempDir()}}
	if got := len(checks(cfg, true)); got != 1 {
		t.Errorf("offline checks without redis = %d, want 1", got)
	}
	cfg.Redis.Address = "localhost:6379"
	if got := len(checks(cfg, false)); got != 3 {
		t.Errorf("checks = %d, want 3", got)
	}
}
