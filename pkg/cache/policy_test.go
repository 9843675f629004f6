package cache

import (
	"testing"

	"github.com/dpe-analyse/dpe-client/pkg/client"
	"github.com/dpe-analyse/dpe-client/pkg/pagination"
	"github.com/dpe-analyse/dpe-client/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, LegacyPolicy(), p)

	p, err = ParsePolicy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, StrictPolicy(), p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestPolicy_Check(t *testing.T) {
	two := []record.Record{record.New(), record.New()}
	timeout := &client.FetchError{Class: client.ErrorClassNetwork, Message: "request failed"}
	endOfRange := &client.FetchError{StatusCode: 400, Class: client.ErrorClassEndOfRange}

	tests := []struct {
		name    string
		policy  Policy
		result  *pagination.Result
		refused bool
	}{
		{name: "legacy empty timeout", policy: LegacyPolicy(), result: &pagination.Result{Stop: pagination.StopError, Err: timeout}},
		{name: "legacy partial", policy: LegacyPolicy(), result: &pagination.Result{Records: two, Stop: pagination.StopError, Err: timeout}},
		{name: "strict complete", policy: StrictPolicy(), result: &pagination.Result{Records: two, Stop: pagination.StopExhausted}},
		{name: "strict end of range", policy: StrictPolicy(), result: &pagination.Result{Records: two, Stop: pagination.StopError, Err: endOfRange}},
		{name: "strict partial", policy: StrictPolicy(), result: &pagination.Result{Records: two, Stop: pagination.StopError, Err: timeout}, refused: true},
		{name: "strict empty", policy: StrictPolicy(), result: &pagination.Result{Stop: pagination.StopEmptyPage}, refused: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Check(tt.result)
			if tt.refused {
				assert.ErrorIs(t, err, ErrIncompleteFetch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
