// Package contextx carries request-scoped values shared by the HTTP handler
// and the RPC server.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	requestIDKey contextKey = iota
)

// RequestIDHeader is the HTTP header and gRPC metadata key carrying the
// request ID.
const RequestIDHeader = "X-Request-Id"
