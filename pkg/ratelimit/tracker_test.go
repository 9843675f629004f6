package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTracker(client, zerolog.Nop()), mr
}

func TestTracker_GetState_Empty(t *testing.T) {
	tracker, _ := newTestTracker(t)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state != nil {
		t.Errorf("GetState() = %+v, want nil for empty store", state)
	}

	allowed, err := tracker.ShouldAllowRequest(context.Background())
	if err != nil || !allowed {
		t.Errorf("ShouldAllowRequest() = %v, %v; want true, nil", allowed, err)
	}
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	tests := []struct {
		name          string
		remaining     string
		reset         string
		wantErr       bool
		wantRemaining int
		wantAllowed   bool
	}{
		{name: "healthy", remaining: "600", reset: "60", wantRemaining: 600, wantAllowed: true},
		{name: "low", remaining: "4", reset: "60", wantRemaining: 4, wantAllowed: true},
		{name: "exhausted", remaining: "0", reset: "60", wantRemaining: 0, wantAllowed: false},
		{name: "exhausted without reset", remaining: "0", reset: "", wantRemaining: 0, wantAllowed: true},
		{name: "invalid remaining", remaining: "lots", reset: "60", wantErr: true},
		{name: "invalid reset", remaining: "10", reset: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, _ := newTestTracker(t)
			ctx := context.Background()

			headers := http.Header{}
			headers.Set(HeaderRemaining, tt.remaining)
			if tt.reset != "" {
				headers.Set(HeaderReset, tt.reset)
			}

			err := tracker.UpdateFromHeaders(ctx, headers)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateFromHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Remaining != tt.wantRemaining {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.wantRemaining)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.wantAllowed)
			}
		})
	}
}

func TestTracker_UpdateFromHeaders_NoHeaders(t *testing.T) {
	tracker, mr := newTestTracker(t)

	if err := tracker.UpdateFromHeaders(context.Background(), http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if mr.Exists(RedisKeyRemaining) {
		t.Error("state must not be written when headers are absent")
	}
}

func TestParseReset(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	got, err := parseReset("30", now)
	if err != nil || !got.Equal(now.Add(30*time.Second)) {
		t.Errorf("parseReset(30) = %v, %v", got, err)
	}

	epoch := strconv.FormatInt(now.Add(time.Hour).Unix(), 10)
	got, err = parseReset(epoch, now)
	if err != nil || !got.Equal(now.Add(time.Hour)) {
		t.Errorf("parseReset(epoch) = %v, %v", got, err)
	}

	if _, err := parseReset("-5", now); err == nil {
		t.Error("parseReset(-5) should fail")
	}
}
