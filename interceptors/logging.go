package interceptors

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/urdh/homepage/contextx"
)

// LoggingUnary returns a unary server interceptor that logs every call once
// it completes. Failed calls are logged at warn level.
func LoggingUnary(logger hclog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		st, _ := status.FromError(err)
		args := []any{
			"method", info.FullMethod,
			"code", st.Code().String(),
			"duration", time.Since(start),
			"request_id", contextx.RequestIDFromContext(ctx),
		}
		if err != nil {
			logger.Warn("rpc failed", append(args, "error", st.Message())...)
		} else {
			logger.Debug("rpc", args...)
		}
		return resp, err
	}
}
