package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Header names read from API responses.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dpe_rate_limit_remaining",
		Help: "Requests remaining in the current Data Fair rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dpe_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the quota was exhausted",
	})
)

// Tracker stores the API quota in Redis and gates requests on it.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current state from Redis.
// It returns nil and no error when nothing has been recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	vals, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyResetTimestamp, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}
	if vals[0] == nil {
		return nil, nil
	}

	remaining, err := strconv.Atoi(fmt.Sprint(vals[0]))
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}

	state := &State{Remaining: remaining}
	if vals[1] != nil {
		ts, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse reset timestamp: %w", err)
		}
		state.ResetAt = time.Unix(ts, 0)
	}
	if vals[2] != nil {
		ts, err := strconv.ParseInt(fmt.Sprint(vals[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
		state.LastUpdate = time.Unix(ts, 0)
	}

	return state, nil
}

// UpdateFromHeaders records the quota advertised by a response.
// Responses without rate limit headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := strings.TrimSpace(headers.Get(HeaderRemaining))
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	now := time.Now()
	resetAt := now
	if resetStr := strings.TrimSpace(headers.Get(HeaderReset)); resetStr != "" {
		resetAt, err = parseReset(resetStr, now)
		if err != nil {
			return err
		}
	}

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRemaining, remain, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, resetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, now.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	rateLimitRemaining.Set(float64(remain))

	state := State{Remaining: remain, ResetAt: resetAt, LastUpdate: now}
	switch {
	case state.Exhausted():
		t.logger.Error().
			Int("remaining", remain).
			Time("reset_at", resetAt).
			Msg("Rate limit exhausted - further requests will be blocked")
	case state.Low():
		t.logger.Warn().
			Int("remaining", remain).
			Time("reset_at", resetAt).
			Msg("Rate limit low")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Time("reset_at", resetAt).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be issued now.
// It never waits: an exhausted quota is reported as false.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, err
	}
	if state == nil {
		return true, nil
	}

	if state.Exhausted() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Rate limit exhausted - blocking request")
		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	return true, nil
}

// parseReset accepts either a delay in seconds or an absolute Unix timestamp.
func parseReset(value string, now time.Time) (time.Time, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}
	if n < 0 {
		return time.Time{}, errors.New("negative " + HeaderReset + " header")
	}
	// Values beyond a year of seconds can only be epoch timestamps.
	if n > 365*24*3600 {
		return time.Unix(n, 0), nil
	}
	return now.Add(time.Duration(n) * time.Second), nil
}
