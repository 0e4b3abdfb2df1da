// Package ratelimit provides token-bucket rate limiting backed by
// golang.org/x/time/rate. It gates both outbound calls to upstream feed APIs
// and inbound RPCs.
package ratelimit

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// ErrLimited is returned by Wait when the request would have to wait past
// the context deadline.
var ErrLimited = errors.New("ratelimit: limit exceeded")

// Limiter wraps a token bucket shared by every caller of one upstream or
// one listener.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps events per second with the
// given burst size. A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

// Allow reports whether a single event may happen now, consuming a token if
// so.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until a token is available or ctx is done. When the wait could
// never finish before the deadline it fails immediately with ErrLimited.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrLimited
	}
	return nil
}
