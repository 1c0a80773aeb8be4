package backend

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestThrottle_IgnoresNonThrottlingStatus(t *testing.T) {
	th := NewThrottle()
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{"Retry-After": []string{"10"}}}
	th.Observe(resp)
	if !th.CooldownUntil().IsZero() {
		t.Fatalf("200 must not start a cooldown")
	}
}

func TestThrottle_WaitReleasesAfterCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	th := NewThrottle()
	th.now = func() time.Time { return now }

	th.Observe(&http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Retry-After": []string{"5"}}})
	if got := th.CooldownUntil(); !got.Equal(now.Add(5 * time.Second)) {
		t.Fatalf("cooldown = %v", got)
	}

	now = now.Add(6 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := th.Wait(ctx); err != nil {
		t.Fatalf("Wait after cooldown: %v", err)
	}
}

func TestThrottle_ShorterRetryAfterDoesNotShrinkCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	th := NewThrottle()
	th.now = func() time.Time { return now }

	th.Observe(&http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"60"}}})
	th.Observe(&http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"1"}}})
	if got := th.CooldownUntil(); !got.Equal(now.Add(60 * time.Second)) {
		t.Fatalf("cooldown = %v", got)
	}
}

func TestThrottle_NilIsNoop(t *testing.T) {
	var th *Throttle
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("nil throttle Wait: %v", err)
	}
	th.Observe(&http.Response{StatusCode: http.StatusTooManyRequests})
}
