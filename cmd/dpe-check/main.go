// Command dpe-check verifies that the environment can run dpe-fetch and
// dpe-train: configuration, cache directory, Redis and API reachability.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dpe-analyse/dpe-client/internal/config"
	"github.com/dpe-analyse/dpe-client/pkg/client"
	"github.com/dpe-analyse/dpe-client/pkg/logging"
)

// check is one named environment probe. It returns a short detail on success.
type check struct {
	name string
	fn   func(ctx context.Context) (string, error)
}

func main() {
	configPath := flag.String("config", "", "YAML config file (default: dpe.yaml in . or ./configs)")
	offline := flag.Bool("offline", false, "skip the API request")
	flag.Parse()

	// Checks print their own results; keep the log quiet.
	logging.Setup(logging.Config{Level: logging.LevelError, Output: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stdout, "✗ config: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "✓ config: %s=%s, cache %s (%s policy)\n", cfg.Fetch.Field, cfg.Fetch.Value, cfg.CacheDir(), cfg.Cache.Policy)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout+10*time.Second)
	defer cancel()

	if !runChecks(ctx, os.Stdout, checks(cfg, *offline)) {
		os.Exit(1)
	}
}

func checks(cfg *config.Config, offline bool) []check {
	list := []check{
		{name: "cache dir", fn: func(ctx context.Context) (string, error) { return checkCacheDir(cfg.CacheDir()) }},
	}
	if cfg.Redis.Enabled() {
		list = append(list, check{name: "redis", fn: func(ctx context.Context) (string, error) {
			return checkRedis(ctx, cfg.Redis.Options())
		}})
	}
	if !offline {
		list = append(list, check{name: "api", fn: func(ctx context.Context) (string, error) {
			return checkAPI(ctx, cfg)
		}})
	}
	return list
}

// runChecks runs every check, printing one ✓ or ✗ line each, and reports
// whether all passed.
func runChecks(ctx context.Context, w io.Writer, list []check) bool {
	ok := true
	for _, c := range list {
		detail, err := c.fn(ctx)
		if err != nil {
			ok = false
			fmt.Fprintf(w, "✗ %s: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(w, "✓ %s: %s\n", c.name, detail)
	}
	return ok
}

// checkCacheDir creates dir if needed and confirms files can be created in it.
func checkCacheDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, ".dpe-check-*")
	if err != nil {
		return "", fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return "", err
	}
	return dir + " is writable", nil
}

func checkRedis(ctx context.Context, opts *redis.Options) (string, error) {
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return "", err
	}
	return "reachable at " + opts.Addr, nil
}

// checkAPI requests a single record of the configured filter.
func checkAPI(ctx context.Context, cfg *config.Config) (string, error) {
	cc := cfg.ClientConfig(nil)
	cc.PageSize = 1
	c, err := client.New(cc)
	if err != nil {
		return "", err
	}
	defer c.Close()

	page, err := c.FetchPage(ctx, client.InitialRequest(c.Endpoint(), c.Filter(cfg.Fetch.Field, cfg.Fetch.Value)))
	if err != nil {
		var fe *client.FetchError
		if errors.As(err, &fe) && fe.Expected() {
			return "answered (no records for this filter)", nil
		}
		return "", err
	}
	if page.TotalKnown {
		return fmt.Sprintf("answered, %d records match %s=%s", page.Total, cfg.Fetch.Field, cfg.Fetch.Value), nil
	}
	return fmt.Sprintf("answered with %d record(s)", len(page.Records)), nil
}
