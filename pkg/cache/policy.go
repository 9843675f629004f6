package cache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dpe-analyse/dpe-client/pkg/pagination"
)

// ErrIncompleteFetch is returned when the write policy refuses a result.
var ErrIncompleteFetch = errors.New("incomplete fetch not cached")

// Policy decides whether a fetch result may become a cache file.
type Policy struct {
	// Name is used in logs and configuration
	Name string

	// MinRecords is the smallest record count worth persisting
	MinRecords int

	// RequireComplete refuses results that stopped on a failure
	RequireComplete bool

	// VerifyManifest ignores existing files without a complete manifest
	VerifyManifest bool
}

// LegacyPolicy persists every result, empty or partial ones included.
func LegacyPolicy() Policy {
	return Policy{Name: "legacy"}
}

// StrictPolicy persists only complete, non-empty results.
func StrictPolicy() Policy {
	return Policy{
		Name:            "strict",
		MinRecords:      1,
		RequireComplete: true,
		VerifyManifest:  true,
	}
}

// ParsePolicy returns the policy called name.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "legacy":
		return LegacyPolicy(), nil
	case "strict":
		return StrictPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown cache policy %q (want legacy or strict)", name)
	}
}

// Check returns an error wrapping ErrIncompleteFetch when result must not be
// persisted.
func (p Policy) Check(result *pagination.Result) error {
	if p.RequireComplete && !result.Complete() {
		if result.Err != nil {
			return fmt.Errorf("%w: stopped on %s: %v", ErrIncompleteFetch, result.Stop, result.Err)
		}
		return fmt.Errorf("%w: stopped on %s", ErrIncompleteFetch, result.Stop)
	}
	if len(result.Records) < p.MinRecords {
		return fmt.Errorf("%w: %d records, need at least %d", ErrIncompleteFetch, len(result.Records), p.MinRecords)
	}
	return nil
}
