package core

import "google.golang.org/grpc"

// BuildServerOptions translates an interceptor slice into grpc.ServerOption
// values that can be passed to grpc.NewServer, followed by any extra
// options. This keeps the wiring logic isolated from the public API surface.
func BuildServerOptions(
	unary []grpc.UnaryServerInterceptor,
	chainUnary func([]grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor,
	extra ...grpc.ServerOption,
) []grpc.ServerOption {
	var opts []grpc.ServerOption

	if len(unary) > 0 {
		if u := chainUnary(unary); u != nil {
			opts = append(opts, grpc.UnaryInterceptor(u))
		}
	}

	return append(opts, extra...)
}
