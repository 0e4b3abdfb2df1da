package homepage

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/feeds"
	"github.com/urdh/homepage/rpc"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.GoodreadsAPIKey = "goodreads-key"
	cfg.LastFMAPIKey = "lastfm-key"
	cfg.CacheCleanupInterval = 0
	return cfg
}

// countingFeeds returns a single commits feed and the number of times its
// producer ran.
func countingFeeds() (feeds.Set, *atomic.Int32) {
	var calls atomic.Int32
	return feeds.Set{feeds.Commits(cache.ProducerFunc(func(context.Context) (any, error) {
		calls.Add(1)
		return []string{"abc123"}, nil
	}))}, &calls
}

func newTestServer(t *testing.T, cfg *Config, opts ...Option) *Server {
	t.Helper()
	s, err := NewServer(cfg, opts...)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewServer_Defaults(t *testing.T) {
	s := newTestServer(t, testConfig())
	if s.Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
	if s.GRPC() != nil {
		t.Fatal("GRPC() should be nil without a gRPC address")
	}
	if s.MetricsHandler() == nil {
		t.Fatal("MetricsHandler() returned nil")
	}
	if got := s.Feeds().Names(); !slices.Equal(got, []string{"books", "commits", "tracks"}) {
		t.Fatalf("feeds = %v", got)
	}
	if _, ok := s.Memo().Store().(*cache.Memory); !ok {
		t.Fatalf("store is %T, want *cache.Memory", s.Memo().Store())
	}
}

func TestNewServer_BoundedStore(t *testing.T) {
	cfg := testConfig()
	cfg.CacheMaxEntries = 100
	s := newTestServer(t, cfg)
	if _, ok := s.Memo().Store().(*cache.L1); !ok {
		t.Fatalf("store is %T, want *cache.L1", s.Memo().Store())
	}
}

func TestNewServer_WithStore(t *testing.T) {
	store := cache.NewMemory(cache.WithCleanupInterval(0))
	s := newTestServer(t, testConfig(), WithStore(store))
	if s.Memo().Store() != cache.Store(store) {
		t.Fatal("WithStore was ignored")
	}
}

func TestNewServer_InvalidAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAllow = []string{"not-a-cidr"}
	if _, err := NewServer(cfg); err == nil {
		t.Fatal("expected an error for an invalid allow list")
	}
}

func TestHandler_ServesFeeds(t *testing.T) {
	set, calls := countingFeeds()
	s := newTestServer(t, testConfig(), WithFeeds(set))

	for range 2 {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recent-commits.json", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if rec.Body.String() != `["abc123"]` {
			t.Fatalf("body = %s", rec.Body.String())
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("producer called %d times, want 1", n)
	}
}

func TestMetricsHandler_ExposesCacheMetrics(t *testing.T) {
	set, _ := countingFeeds()
	reg := prometheus.NewRegistry()
	s := newTestServer(t, testConfig(), WithFeeds(set), WithRegisterer(reg))

	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/recent-commits.json", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `homepage_cache_lookups_total{key="commits",result="miss"} 1`) {
		t.Fatalf("cache metrics missing from:\n%s", rec.Body.String())
	}
}

func dialBufconn(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = s.GRPC().Serve(lis) }()
	t.Cleanup(func() { s.GRPC().Stop() })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPC_SharesCacheWithSite(t *testing.T) {
	set, calls := countingFeeds()
	cfg := testConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	s := newTestServer(t, cfg, append(DefaultOptions(), WithFeeds(set))...)
	conn := dialBufconn(t, s)

	resp := new(rpc.FeedResponse)
	if err := conn.Invoke(t.Context(), "/homepage.Feeds/Get", &rpc.FeedRequest{Name: "commits"}, resp); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(resp.Data) != `["abc123"]` {
		t.Fatalf("data = %s", resp.Data)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recent-commits.json", nil))
	if rec.Body.String() != `["abc123"]` {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("producer called %d times, want 1", n)
	}
}

func TestGRPC_IPBlockReturnsPermissionDenied(t *testing.T) {
	set, _ := countingFeeds()
	cfg := testConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	// The bufconn peer is never inside this range.
	cfg.GRPCAllow = []string{"192.168.0.0/16"}
	s := newTestServer(t, cfg, WithRecovery(), WithFeeds(set))
	conn := dialBufconn(t, s)

	err := conn.Invoke(t.Context(), "/homepage.Feeds/Ping", &rpc.PingRequest{Message: "hi"}, new(rpc.PingResponse))
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected gRPC status error, got %v", err)
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", st.Code())
	}
}

func TestGRPC_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.GRPCRPS = 0.001
	cfg.GRPCBurst = 1
	s := newTestServer(t, cfg, WithFeeds(feeds.Set{}))
	conn := dialBufconn(t, s)

	ping := func() error {
		return conn.Invoke(t.Context(), "/homepage.Feeds/Ping", &rpc.PingRequest{}, new(rpc.PingResponse))
	}
	if err := ping(); err != nil {
		t.Fatalf("first Ping: %v", err)
	}
	if err := ping(); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("second Ping code = %v, want ResourceExhausted", status.Code(err))
	}
}

func TestServe_ShutsDownWhenContextEnds(t *testing.T) {
	set, _ := countingFeeds()
	s := newTestServer(t, testConfig(), WithFeeds(set))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln, nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "OK" {
		t.Fatalf("body = %q, want OK", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
