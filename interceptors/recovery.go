package interceptors

import (
	"context"
	"runtime/debug"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/urdh/homepage/contextx"
)

// RecoveryUnary returns a unary server interceptor that recovers from panics,
// logs them and returns an Internal gRPC error instead of crashing the
// process.
func RecoveryUnary(logger hclog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in RPC handler",
					"method", info.FullMethod,
					"request_id", contextx.RequestIDFromContext(ctx),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				resp = nil
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
