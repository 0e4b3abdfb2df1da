package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/urdh/homepage/contextx"
)

var requestIDKey = strings.ToLower(contextx.RequestIDHeader)

// RequestIDUnary returns a unary server interceptor that puts a request ID in
// the context. A valid ID sent by the client is reused; otherwise a new one
// is generated. The ID is echoed in the response header.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		id := contextx.RequestIDFromContext(ctx)
		if id == "" {
			if md, ok := metadata.FromIncomingContext(ctx); ok {
				if vals := md.Get(requestIDKey); len(vals) > 0 && contextx.ValidRequestID(vals[0]) {
					id = vals[0]
				}
			}
		}
		if id == "" {
			id = contextx.NewRequestID()
		}
		// Fails only outside a real transport, e.g. in unit tests.
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, id))
		return handler(contextx.WithRequestID(ctx, id), req)
	}
}
