package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type httpErr int

func (e httpErr) Error() string   { return http.StatusText(int(e)) }
func (e httpErr) StatusCode() int { return int(e) }

var retryUnavailable = IfStatus(http.StatusServiceUnavailable)

func TestDo_RetriesOnUnavailableThenSucceeds(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     retryUnavailable,
	}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", httpErr(http.StatusServiceUnavailable)
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected %q, got %q", "ok", result)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnNonRetryableStatus(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     retryUnavailable,
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("fetch: %w", httpErr(http.StatusNotFound))
	})

	var he httpErr
	if !errors.As(err, &he) || he != http.StatusNotFound {
		t.Fatalf("expected wrapped 404, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retries), got %d", calls)
	}
}

func TestDo_NilPredicateNeverRetries(t *testing.T) {
	calls := 0
	_, err := Do(t.Context(), Config{MaxAttempts: 3}, func(_ context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RespectsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxAttempts: 100,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		RetryIf:     retryUnavailable,
	}

	_, err := Do(ctx, cfg, func(_ context.Context) (int, error) {
		return 0, httpErr(http.StatusServiceUnavailable)
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     retryUnavailable,
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", httpErr(http.StatusServiceUnavailable)
	})

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		RetryIf:     retryUnavailable,
	}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (int, error) {
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %d", result)
	}
}

func TestAny(t *testing.T) {
	timeout := errors.New("timeout")
	pred := Any(nil, IfStatus(http.StatusBadGateway), func(err error) bool { return errors.Is(err, timeout) })

	if !pred(httpErr(http.StatusBadGateway)) {
		t.Fatal("502 not retried")
	}
	if !pred(fmt.Errorf("get: %w", timeout)) {
		t.Fatal("wrapped timeout not retried")
	}
	if pred(httpErr(http.StatusBadRequest)) {
		t.Fatal("400 retried")
	}
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	cfg := Config{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}

	d0 := backoff(cfg, 0) // 100ms
	d1 := backoff(cfg, 1) // 200ms
	d2 := backoff(cfg, 2) // 400ms
	d3 := backoff(cfg, 3) // 800ms → capped at 500ms

	if d0 != 100*time.Millisecond {
		t.Fatalf("attempt 0: expected 100ms, got %v", d0)
	}
	if d1 != 200*time.Millisecond {
		t.Fatalf("attempt 1: expected 200ms, got %v", d1)
	}
	if d2 != 400*time.Millisecond {
		t.Fatalf("attempt 2: expected 400ms, got %v", d2)
	}
	if d3 != 500*time.Millisecond {
		t.Fatalf("attempt 3: expected 500ms (capped), got %v", d3)
	}
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, Jitter: 0.5}
	for range 100 {
		d := backoff(cfg, 0)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±50%%", d)
		}
	}
}
