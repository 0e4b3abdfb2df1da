package feeds

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/breaker"
	"github.com/urdh/homepage/ratelimit"
	"github.com/urdh/homepage/retry"
)

// GuardConfig tunes the resilience wrapper around one upstream.
type GuardConfig struct {
	// RPS and Burst bound outgoing calls. RPS <= 0 disables limiting.
	RPS   float64
	Burst int

	Breaker breaker.Config
	Retry   retry.Config
}

// DefaultGuardConfig suits the site's upstreams: a handful of calls every
// few minutes, occasional transient 5xx.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RPS:   1,
		Burst: 5,
		Breaker: breaker.Config{
			FailureThreshold:   5,
			OpenTimeout:        30 * time.Second,
			HalfOpenMaxSuccess: 1,
		},
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
		},
	}
}

// Guard protects one upstream API. Every attempt waits for a rate-limit
// token and passes through a circuit breaker; transient failures are
// retried with backoff.
type Guard struct {
	source  string
	limiter *ratelimit.Limiter
	breaker *breaker.Breaker
	retry   retry.Config
}

// NewGuard creates a Guard for the upstream called source.
func NewGuard(source string, cfg GuardConfig, logger hclog.Logger) *Guard {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	bcfg := cfg.Breaker
	if bcfg.IsFailure == nil {
		bcfg.IsFailure = upstreamFault
	}
	if bcfg.OnStateChange == nil {
		bcfg.OnStateChange = func(from, to breaker.State) {
			logger.Warn("circuit breaker changed state", "upstream", source, "from", from, "to", to)
		}
	}
	rcfg := cfg.Retry
	if rcfg.RetryIf == nil {
		rcfg.RetryIf = transient
	}
	return &Guard{
		source:  source,
		limiter: ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		breaker: breaker.New(bcfg),
		retry:   rcfg,
	}
}

// State returns the state of the guard's circuit breaker.
func (g *Guard) State() breaker.State { return g.breaker.State() }

// Call runs fn under g. A nil guard runs fn directly.
func Call[T any](ctx context.Context, g *Guard, fn func(context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	return retry.Do(ctx, g.retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := g.limiter.Wait(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				return zero, &Error{Source: g.source, Status: http.StatusServiceUnavailable, Msg: "too many upstream requests", Err: err}
			}
			return zero, err
		}
		v, err := breaker.Do(g.breaker, func() (T, error) { return fn(ctx) })
		if errors.Is(err, breaker.ErrOpen) {
			return zero, &Error{Source: g.source, Status: http.StatusServiceUnavailable, Msg: g.source + " is unavailable", Err: err}
		}
		return v, err
	})
}

// upstreamFault reports whether err says something about the upstream's
// health. Client errors mean it answered and count as successes.
func upstreamFault(err error) bool {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode() >= 500 || sc.StatusCode() == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

var retryableStatus = retry.IfStatus(
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
)

// transient reports whether another attempt might succeed. Our own breaker
// and rate limiter are never retried.
func transient(err error) bool {
	if errors.Is(err, breaker.ErrOpen) || errors.Is(err, ratelimit.ErrLimited) {
		return false
	}
	// Connection failures and timeouts, with no response at all.
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return retryableStatus(err)
}
