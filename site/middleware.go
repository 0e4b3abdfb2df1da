package site

import (
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/contextx"
	"github.com/urdh/homepage/security"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares from left to right, i.e. Chain(A, B)(h) => A(B(h)).
func Chain(mw ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Recovery turns a panicking handler into an empty 500 response and logs the
// panic with its stack.
func Recovery(logger hclog.Logger) Middleware {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(logger.StandardLogger(&hclog.StandardLoggerOptions{ForceLevel: hclog.Error})),
		handlers.PrintRecoveryStack(true),
	)
}

// RequestID tags the request context with an ID and echoes it in the
// response. A well-formed X-Request-Id from the client is reused.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(contextx.RequestIDHeader)
		if !contextx.ValidRequestID(id) {
			id = contextx.NewRequestID()
		}
		w.Header().Set(contextx.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(contextx.WithRequestID(r.Context(), id)))
	})
}

// AccessLog logs every request once it has been served. Server errors are
// logged at warn level.
func AccessLog(logger hclog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", m.Code,
				"bytes", m.Written,
				"duration", m.Duration,
				"remote", security.ClientAddr(r),
				"request_id", contextx.RequestIDFromContext(r.Context()),
			}
			if m.Code >= http.StatusInternalServerError {
				logger.Warn("request failed", args...)
			} else {
				logger.Debug("request", args...)
			}
		})
	}
}

// NormalizePath merges runs of slashes in the request path. Trailing
// slashes are kept.
func NormalizePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			r = r.WithContext(r.Context())
			u := *r.URL
			u.Path = mergeSlashes(u.Path)
			u.RawPath = ""
			r.URL = &u
		}
		next.ServeHTTP(w, r)
	})
}

func mergeSlashes(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if p[i] == '/' && i > 0 && p[i-1] == '/' {
			continue
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

// Compress gzip- or deflate-encodes responses for clients that accept it.
func Compress(next http.Handler) http.Handler {
	return handlers.CompressHandler(next)
}
