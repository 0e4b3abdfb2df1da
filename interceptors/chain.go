// Package interceptors holds the unary server interceptors installed on the
// feeds RPC server.
package interceptors

import (
	"context"

	"google.golang.org/grpc"
)

// ChainUnary composes multiple unary interceptors into a single one.
// Interceptors execute in the order they appear in the slice.
func ChainUnary(interceptors []grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		curr := handler
		for i := len(interceptors) - 1; i > 0; i-- {
			next := curr
			ic := interceptors[i]
			curr = func(ctx context.Context, req any) (any, error) {
				return ic(ctx, req, info, next)
			}
		}
		return interceptors[0](ctx, req, info, curr)
	}
}
