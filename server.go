// Package homepage wires the personal-site backend together: a cache shared
// by three upstream feed integrations, the HTTP site that serves them and an
// optional gRPC service exposing the same feeds.
package homepage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/feeds"
	"github.com/urdh/homepage/feeds/github"
	"github.com/urdh/homepage/feeds/goodreads"
	"github.com/urdh/homepage/feeds/lastfm"
	"github.com/urdh/homepage/interceptors"
	"github.com/urdh/homepage/internal/core"
	"github.com/urdh/homepage/ratelimit"
	"github.com/urdh/homepage/rpc"
	"github.com/urdh/homepage/security"
	"github.com/urdh/homepage/site"
	"github.com/urdh/homepage/tracing"
)

// ShutdownTimeout bounds how long Serve waits for in-flight HTTP requests
// once its context ends.
const ShutdownTimeout = 10 * time.Second

// Server owns the cache, the feeds and the listeners serving them.
//
//	cfg, err := homepage.LoadConfig(".env")
//	srv, err := homepage.NewServer(cfg, homepage.DefaultOptions()...)
//	err = srv.Serve(ctx)
type Server struct {
	cfg     *Config
	logger  hclog.Logger
	store   cache.Store
	closer  io.Closer // store, when we created it
	memo    *cache.Memo
	feeds   feeds.Set
	handler http.Handler
	metrics http.Handler
	grpc    *grpc.Server
}

// NewServer builds a Server from cfg. The feeds RPC server is only created
// when cfg.GRPCAddr is set. Interceptor execution order is determined by
// fixed priority levels (see internal/core), not by the order options are
// passed.
func NewServer(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Server{cfg: cfg, logger: logger}

	reg := o.registerer
	if reg == nil {
		r := prometheus.NewRegistry()
		r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg = r
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		s.metrics = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	} else {
		s.metrics = promhttp.Handler()
	}

	store, closer, err := newStore(cfg, o.store, logger.Named("cache"))
	if err != nil {
		return nil, err
	}
	s.store, s.closer = store, closer

	memoOpts := []cache.MemoOption{
		cache.WithLogger(logger.Named("cache")),
		cache.WithMetrics(cache.NewMetrics(reg)),
	}
	var tcfg *tracing.TracingConfig
	if o.tracerProvider != nil {
		memoOpts = append(memoOpts, cache.WithTracerProvider(o.tracerProvider))
		tcfg = &tracing.TracingConfig{TracerProvider: o.tracerProvider}
	}
	s.memo = cache.NewMemo(store, memoOpts...)

	s.feeds = o.feeds
	if s.feeds == nil {
		hc := o.httpClient
		if hc == nil {
			hc = feeds.NewHTTPClient(feeds.DefaultTimeout)
		}
		s.feeds = defaultFeeds(cfg, hc, logger)
	}

	metricsGuard, err := security.NewIPBlocker(security.Config{
		Mode:           security.AllowList,
		CIDRs:          cfg.MetricsAllow,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("metrics allow list: %w", err)
	}

	s.handler = site.New(site.Options{
		Memo:         s.memo,
		Feeds:        s.feeds,
		Logger:       logger.Named("http"),
		Tracing:      tcfg,
		Metrics:      s.metrics,
		MetricsGuard: metricsGuard,
	})

	if cfg.GRPCAddr != "" {
		s.grpc, err = newGRPCServer(cfg, o, tcfg, logger.Named("rpc"))
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		rpc.Register(s.grpc, rpc.NewService(s.memo, s.feeds, logger.Named("rpc")))
	}

	return s, nil
}

// newStore picks the cache backend: the caller's, a bounded L1 when
// CacheMaxEntries is set, or the unbounded in-memory store.
func newStore(cfg *Config, given cache.Store, logger hclog.Logger) (cache.Store, io.Closer, error) {
	if given != nil {
		return given, nil, nil
	}
	if cfg.CacheMaxEntries > 0 {
		l1, err := cache.NewL1(cfg.CacheMaxEntries)
		if err != nil {
			return nil, nil, fmt.Errorf("cache: %w", err)
		}
		return l1, l1, nil
	}
	m := cache.NewMemory(
		cache.WithCleanupInterval(cfg.CacheCleanupInterval),
		cache.WithMemoryLogger(logger),
	)
	return m, m, nil
}

// defaultFeeds builds the three upstream integrations, each behind its own
// guard.
func defaultFeeds(cfg *Config, hc *http.Client, logger hclog.Logger) feeds.Set {
	guard := func(source string) (*feeds.Guard, hclog.Logger) {
		l := logger.Named("feeds." + source)
		return feeds.NewGuard(source, feeds.DefaultGuardConfig(), l), l
	}

	grGuard, grLog := guard("goodreads")
	ghGuard, ghLog := guard("github")
	lfGuard, lfLog := guard("lastfm")

	return feeds.Set{
		feeds.Books(goodreads.New(cfg.GoodreadsAPIKey,
			goodreads.WithHTTPClient(hc), goodreads.WithGuard(grGuard), goodreads.WithLogger(grLog))),
		feeds.Commits(github.New(github.WithToken(cfg.GitHubToken),
			github.WithHTTPClient(hc), github.WithGuard(ghGuard), github.WithLogger(ghLog))),
		feeds.Tracks(lastfm.New(cfg.LastFMAPIKey,
			lastfm.WithHTTPClient(hc), lastfm.WithGuard(lfGuard), lastfm.WithLogger(lfLog))),
	}
}

// newGRPCServer assembles the interceptor chain of the feeds RPC server.
func newGRPCServer(cfg *Config, o options, tcfg *tracing.TracingConfig, logger hclog.Logger) (*grpc.Server, error) {
	var b core.MiddlewareBuilder
	if o.recovery {
		b.Add(core.OrderRecovery, interceptors.RecoveryUnary(logger))
	}
	b.Add(core.OrderRequestID, interceptors.RequestIDUnary())
	if tcfg != nil {
		b.Add(core.OrderTracing, tracing.UnaryServerInterceptor(tcfg))
	}
	b.Add(core.OrderLogging, interceptors.LoggingUnary(logger))
	if len(cfg.GRPCAllow) > 0 {
		blocker, err := security.NewIPBlocker(security.Config{
			Mode:           security.AllowList,
			CIDRs:          cfg.GRPCAllow,
			TrustedProxies: cfg.TrustedProxies,
		})
		if err != nil {
			return nil, fmt.Errorf("grpc allow list: %w", err)
		}
		b.Add(core.OrderIPBlock, interceptors.IPBlockUnary(blocker))
	}
	if cfg.GRPCRPS > 0 {
		b.Add(core.OrderRateLimit, interceptors.RateLimitUnary(ratelimit.NewLimiter(cfg.GRPCRPS, cfg.GRPCBurst)))
	}

	return grpc.NewServer(core.BuildServerOptions(b.Build(), interceptors.ChainUnary)...), nil
}

// Handler returns the HTTP site.
func (s *Server) Handler() http.Handler { return s.handler }

// GRPC returns the feeds RPC server, or nil when it is disabled.
func (s *Server) GRPC() *grpc.Server { return s.grpc }

// Memo returns the memoizing cache shared by the site and the RPC service.
func (s *Server) Memo() *cache.Memo { return s.memo }

// Feeds returns the served feeds.
func (s *Server) Feeds() feeds.Set { return s.feeds }

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func (s *Server) MetricsHandler() http.Handler { return s.metrics }

// Serve listens on the configured addresses and serves until ctx ends, then
// shuts down gracefully. Errors from every listener are returned together.
func (s *Server) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	httpLn, err := lc.Listen(ctx, "tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	var grpcLn net.Listener
	if s.grpc != nil {
		grpcLn, err = lc.Listen(ctx, "tcp", s.cfg.GRPCAddr)
		if err != nil {
			httpLn.Close()
			return fmt.Errorf("grpc listen: %w", err)
		}
	}
	return s.serve(ctx, httpLn, grpcLn)
}

func (s *Server) serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	hs := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.logger.Named("http").StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}

	errCh := make(chan error, 2)
	running := 1
	s.logger.Info("serving http", "addr", httpLn.Addr().String())
	go func() {
		err := hs.Serve(httpLn)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			err = fmt.Errorf("http: %w", err)
		}
		errCh <- err
	}()
	if grpcLn != nil {
		running++
		s.logger.Info("serving grpc", "addr", grpcLn.Addr().String())
		go func() {
			err := s.grpc.Serve(grpcLn)
			if err != nil {
				err = fmt.Errorf("grpc: %w", err)
			}
			errCh <- err
		}()
	}

	var result *multierror.Error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err := <-errCh:
		running--
		if err != nil {
			result = multierror.Append(result, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
	}
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	for ; running > 0; running-- {
		if err := <-errCh; err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := s.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Close releases the store if the Server created it.
func (s *Server) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}
