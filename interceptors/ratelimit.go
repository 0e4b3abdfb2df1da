package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/urdh/homepage/ratelimit"
)

// errRateLimited is allocated once to avoid per-request allocations on the hot path.
var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// RateLimitUnary returns a unary server interceptor that rejects requests
// once l has been exhausted.
func RateLimitUnary(l *ratelimit.Limiter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !l.Allow() {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}
