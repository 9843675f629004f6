// Package ratelimit gates Data Fair API requests on the quota advertised by
// the X-RateLimit-Remaining and X-RateLimit-Reset response headers.
//
// State lives in Redis so that several batch runs (one per climate zone or
// department) sharing the same quota see each other's consumption.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "dpe:rate_limit:remaining"
	RedisKeyResetTimestamp = "dpe:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "dpe:rate_limit:last_update"
)

// Thresholds on the remaining quota.
const (
	// RemainingCritical blocks requests when the remaining quota falls below it.
	RemainingCritical = 1

	// RemainingWarning logs a warning when the remaining quota falls below it.
	RemainingWarning = 10
)

// State is the last quota reported by the API.
type State struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Exhausted reports whether requests must be blocked until ResetAt.
// An exhausted quota whose window already reset is not exhausted anymore.
func (s *State) Exhausted() bool {
	return s.Remaining < RemainingCritical && s.TimeUntilReset() > 0
}

// Low reports whether the remaining quota is in the warning band.
func (s *State) Low() bool {
	return s.Remaining < RemainingWarning && !s.Exhausted()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}
