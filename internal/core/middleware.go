package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// Fixed priorities for the feeds RPC interceptors. Lower values run first,
// so recovery wraps everything and the IP check runs before any work is
// charged against the rate limit.
const (
	OrderRecovery  = 0
	OrderRequestID = 100
	OrderTracing   = 200
	OrderLogging   = 300
	OrderIPBlock   = 400
	OrderRateLimit = 500
)

// middleware is a single unary interceptor with a deterministic execution
// order.
type middleware struct {
	Unary grpc.UnaryServerInterceptor
	Order int
}

// MiddlewareBuilder collects interceptors and produces a sorted slice ready
// for chaining.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers an interceptor with the given order. Nil interceptors are
// ignored.
func (b *MiddlewareBuilder) Add(order int, unary grpc.UnaryServerInterceptor) {
	if unary == nil {
		return
	}
	b.entries = append(b.entries, middleware{Unary: unary, Order: order})
}

// Len returns the number of registered interceptors.
func (b *MiddlewareBuilder) Len() int { return len(b.entries) }

// Build sorts the collected interceptors by Order (stable) and returns them.
func (b *MiddlewareBuilder) Build() []grpc.UnaryServerInterceptor {
	slices.SortStableFunc(b.entries, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})

	unary := make([]grpc.UnaryServerInterceptor, 0, len(b.entries))
	for _, m := range b.entries {
		unary = append(unary, m.Unary)
	}
	return unary
}
