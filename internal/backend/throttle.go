package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Throttle holds requests back while the service has asked clients to slow
// down via Retry-After on 429 or 503 answers.
type Throttle struct {
	mu       sync.Mutex
	now      func() time.Time
	cooldown time.Time
	notifyCh chan struct{}
}

func NewThrottle() *Throttle {
	return &Throttle{
		now:      time.Now,
		notifyCh: make(chan struct{}),
	}
}

// Wait blocks until no cooldown is active or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Wait: nil context")
	}
	if t == nil {
		return nil
	}
	for {
		t.mu.Lock()
		now := t.now()
		if !now.Before(t.cooldown) {
			t.mu.Unlock()
			return nil
		}
		until := t.cooldown
		ch := t.notifyCh
		t.mu.Unlock()

		timer := time.NewTimer(until.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-ch:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// CooldownUntil returns the end of the active cooldown, or the zero time.
func (t *Throttle) CooldownUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.now().Before(t.cooldown) {
		return t.cooldown
	}
	return time.Time{}
}

// Observe extends the cooldown from a Retry-After header (seconds or HTTP date).
func (t *Throttle) Observe(resp *http.Response) {
	if t == nil || resp == nil {
		return
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return
	}
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var until time.Time
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		if seconds <= 0 {
			return
		}
		until = t.now().Add(time.Duration(seconds) * time.Second)
	} else if at, err := http.ParseTime(retryAfter); err == nil {
		until = at
	} else {
		return
	}

	if until.After(t.cooldown) {
		t.cooldown = until
		close(t.notifyCh)
		t.notifyCh = make(chan struct{})
	}
}
