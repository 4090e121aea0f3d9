package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeStore struct {
	setNXResult bool
	setNXErr    error
	setNXKeys   []string
	ttlResult   time.Duration
	ttlErr      error
}

func (f *fakeStore) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.setNXKeys = append(f.setNXKeys, key)
	return redis.NewBoolResult(f.setNXResult, f.setNXErr)
}

func (f *fakeStore) TTL(ctx context.Context, key string) *redis.DurationCmd {
	return redis.NewDurationResult(f.ttlResult, f.ttlErr)
}

func TestMinIntervalAllowFirstCallerWins(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	client := NewWithStore(store)

	allowed, retryAfter, err := client.MinIntervalAllow(context.Background(), "driver_location:10", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("first caller must be allowed")
	}
	if retryAfter != 0 {
		t.Fatalf("expected no wait got %v", retryAfter)
	}
	if len(store.setNXKeys) != 1 || store.setNXKeys[0] != "fl:rate_limit:driver_location:10" {
		t.Fatalf("unexpected key %v", store.setNXKeys)
	}
}

func TestMinIntervalAllowReportsRemainingWait(t *testing.T) {
	store := &fakeStore{setNXResult: false, ttlResult: 3 * time.Second}
	client := NewWithStore(store)

	allowed, retryAfter, err := client.MinIntervalAllow(context.Background(), "driver_location:10", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("caller inside the window must be throttled")
	}
	if retryAfter != 3*time.Second {
		t.Fatalf("expected 3s wait got %v", retryAfter)
	}
}

func TestMinIntervalAllowFallsBackToIntervalOnTTLError(t *testing.T) {
	store := &fakeStore{setNXResult: false, ttlErr: errors.New("ttl failed")}
	client := NewWithStore(store)

	allowed, retryAfter, err := client.MinIntervalAllow(context.Background(), "scope", 5*time.Second)
	if err != nil {
		t.Fatalf("ttl failure must not fail the check, got %v", err)
	}
	if allowed {
		t.Fatal("expected throttled")
	}
	if retryAfter != 5*time.Second {
		t.Fatalf("expected interval fallback got %v", retryAfter)
	}
}

func TestMinIntervalAllowPropagatesSetNXError(t *testing.T) {
	store := &fakeStore{setNXErr: errors.New("connection refused")}
	client := NewWithStore(store)

	_, _, err := client.MinIntervalAllow(context.Background(), "scope", 5*time.Second)
	if err == nil {
		t.Fatal("expected error from SetNX failure")
	}
}

func TestKeyNamespacing(t *testing.T) {
	client := NewWithStore(&fakeStore{})

	if got := client.RateLimitKey("driver_location:10"); got != "fl:rate_limit:driver_location:10" {
		t.Fatalf("unexpected rate limit key %q", got)
	}
}
