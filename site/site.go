// Package site is the public HTTP surface of the homepage: the cached JSON
// feeds, the embedded static pages, the legacy redirect table and the
// middleware around all of it.
package site

import (
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/feeds"
	"github.com/urdh/homepage/security"
	"github.com/urdh/homepage/tracing"
)

// Options configures the handler returned by New.
type Options struct {
	// Memo caches the feed documents. Required when Feeds is non-empty.
	Memo *cache.Memo

	// Feeds are served on their own paths.
	Feeds feeds.Set

	Logger hclog.Logger

	// Tracing enables request spans. Nil disables them.
	Tracing *tracing.TracingConfig

	// Metrics, if set, is served on /metrics to clients MetricsGuard allows.
	Metrics      http.Handler
	MetricsGuard *security.IPBlocker
}

// New returns the site handler.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	mux := http.NewServeMux()
	for _, f := range opts.Feeds {
		h := allowCORS.Handler(feedHandler(opts.Memo, f, logger))
		mux.Handle("GET "+f.Path, h)
		mux.Handle("OPTIONS "+f.Path, h)
	}
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /latexhax.html", latexhax)
	if opts.Metrics != nil {
		m := opts.Metrics
		if opts.MetricsGuard != nil {
			m = opts.MetricsGuard.Handler(m)
		}
		mux.Handle("GET /metrics", m)
	}
	mux.Handle("/", fallback(http.HandlerFunc(serveStatic)))

	// Recovery sits inside ErrorPages so a panic is answered with 500.html
	// and still shows up in the access log and the request span.
	return Chain(
		RequestID,
		AccessLog(logger),
		tracing.HTTPMiddleware(opts.Tracing),
		NormalizePath,
		Compress,
		ErrorPages(errorPages()),
		Recovery(logger),
		ETag,
	)(mux)
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}
