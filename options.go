package homepage

import (
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/feeds"
)

// Option configures a Server.
type Option func(*options)

// options holds the internal configuration assembled via functional options.
type options struct {
	logger         hclog.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	store          cache.Store
	feeds          feeds.Set
	httpClient     *http.Client
	recovery       bool
}

// WithLogger sets the root logger. Components log through named
// sub-loggers of it.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer registers the server's metrics on reg instead of a private
// registry. If reg is also a prometheus.Gatherer, MetricsHandler serves it.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithTracerProvider enables request and cache spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithStore replaces the store selected by the configuration. The caller
// keeps ownership of it.
func WithStore(s cache.Store) Option {
	return func(o *options) { o.store = s }
}

// WithFeeds replaces the upstream integrations.
func WithFeeds(set feeds.Set) Option {
	return func(o *options) { o.feeds = set }
}

// WithHTTPClient sets the client used for upstream API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRecovery installs a panic-recovery interceptor on the feeds RPC server
// so that a panicking handler returns codes.Internal instead of crashing the
// process. The HTTP site always recovers.
func WithRecovery() Option {
	return func(o *options) { o.recovery = true }
}
