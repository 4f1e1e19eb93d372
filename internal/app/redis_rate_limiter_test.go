package app

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisFixRateLimiter_NormalizesPrefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "geopledge:rate_limit:pledge_fix:abc"},
		{prefix: "  custom: ", want: "custom:pledge_fix:abc"},
		{prefix: "custom", want: "custom:pledge_fix:abc"},
	}
	for _, tt := range tests {
		got := NewRedisFixRateLimiter(nil, tt.prefix).Key("pledge_fix", "abc")
		if got != tt.want {
			t.Fatalf("prefix %q: expected key %q, got %q", tt.prefix, tt.want, got)
		}
	}
}

func TestRedisFixRateLimiter_NoClientConsumesNothing(t *testing.T) {
	limiter := NewRedisFixRateLimiter(nil, "")
	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "pledge_fix", "abc", 10, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected no-op, got count=%d retry=%d err=%v", count, retry, err)
	}
}

func TestParseWindowReply(t *testing.T) {
	count, retry, err := parseWindowReply([]interface{}{int64(4), int64(1500)}, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 || retry != 2 {
		t.Fatalf("expected count=4 retry=2, got count=%d retry=%d", count, retry)
	}

	_, retry, err = parseWindowReply([]interface{}{int64(1), int64(-1)}, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retry != 60 {
		t.Fatalf("expected negative ttl to fall back to window, got %d", retry)
	}

	if _, _, err := parseWindowReply("nope", 60000); err == nil {
		t.Fatal("expected error for malformed reply")
	}
	if _, _, err := parseWindowReply([]interface{}{"x", int64(1)}, 60000); err == nil {
		t.Fatal("expected error for non-integer count")
	}
}
