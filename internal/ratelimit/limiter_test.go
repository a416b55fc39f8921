package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(1, 2)
	now := time.Now()

	if !l.Allow("10.0.0.1", now) {
		t.Fatalf("expected first request allowed")
	}
	if !l.Allow("10.0.0.1", now) {
		t.Fatalf("expected second request allowed")
	}
	if l.Allow("10.0.0.1", now) {
		t.Fatalf("expected third request limited")
	}

	later := now.Add(1500 * time.Millisecond)
	if !l.Allow("10.0.0.1", later) {
		t.Fatalf("expected refill to allow after time")
	}
	if l.Allow("10.0.0.1", later) {
		t.Fatalf("expected half a token to be insufficient")
	}
}

func TestLimiterDifferentKeys(t *testing.T) {
	l := NewLimiter(1, 1)
	now := time.Now()

	if !l.Allow("10.0.0.1", now) {
		t.Fatalf("expected first key allowed")
	}
	if !l.Allow("10.0.0.2", now) {
		t.Fatalf("expected second key allowed")
	}
	if l.Allow("10.0.0.1", now) {
		t.Fatalf("expected first key limited")
	}
}

func TestLimiterDisabled(t *testing.T) {
	l := NewLimiter(0, 0)
	now := time.Now()
	for i := 0; i < 100; i++ {
		if !l.Allow("10.0.0.1", now) {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}

	var nilLimiter *Limiter
	if !nilLimiter.Allow("x", now) {
		t.Fatalf("nil limiter rejected request")
	}
	if nilLimiter.Len() != 0 || nilLimiter.Prune(now) != 0 {
		t.Fatalf("nil limiter reported buckets")
	}
}

func TestLimiterClockSkew(t *testing.T) {
	l := NewLimiter(1, 1)
	now := time.Now()
	l.Allow("k", now)
	if l.Allow("k", now.Add(-time.Hour)) {
		t.Fatalf("going back in time must not refill the bucket")
	}
}

func TestLimiterPrune(t *testing.T) {
	l := NewLimiter(2, 4)
	now := time.Now()
	l.Allow("a", now)
	l.Allow("b", now.Add(time.Second))

	if got := l.Prune(now.Add(2 * time.Second)); got != 1 {
		t.Fatalf("expected 1 pruned bucket, got %d", got)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 remaining bucket, got %d", l.Len())
	}
}

func TestClientKey(t *testing.T) {
	cases := map[string]string{
		"10.0.0.1:5555": "10.0.0.1",
		"[::1]:80":      "::1",
		"unix":          "unix",
	}
	for in, want := range cases {
		if got := ClientKey(in); got != want {
			t.Fatalf("ClientKey(%q) = %q, want %q", in, got, want)
		}
	}
}
