package security

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// fakePeerAddr implements net.Addr for testing purposes.
type fakePeerAddr struct{ addr string }

func (f fakePeerAddr) Network() string { return "tcp" }
func (f fakePeerAddr) String() string  { return f.addr }

func mustBlocker(t *testing.T, cfg Config) *IPBlocker {
	t.Helper()
	b, err := NewIPBlocker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestEvaluate_RPC(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		peer  net.Addr
		md    metadata.MD
		allow bool
	}{
		{
			name:  "deny list blocks match",
			cfg:   Config{Mode: DenyList, CIDRs: []string{"10.0.0.0/8"}},
			peer:  fakePeerAddr{"10.1.2.3:5000"},
			allow: false,
		},
		{
			name:  "deny list allows others",
			cfg:   Config{Mode: DenyList, CIDRs: []string{"10.0.0.0/8"}},
			peer:  fakePeerAddr{"192.168.1.1:5000"},
			allow: true,
		},
		{
			name:  "allow list allows match",
			cfg:   Config{Mode: AllowList, CIDRs: []string{"192.168.0.0/16"}},
			peer:  fakePeerAddr{"192.168.1.50:8080"},
			allow: true,
		},
		{
			name:  "allow list blocks others",
			cfg:   Config{Mode: AllowList, CIDRs: []string{"192.168.0.0/16"}},
			peer:  fakePeerAddr{"10.0.0.1:8080"},
			allow: false,
		},
		{
			name:  "trusted proxy header is used",
			cfg:   Config{Mode: DenyList, CIDRs: []string{"203.0.113.0/24"}, TrustedProxies: []string{"10.0.0.1"}},
			peer:  fakePeerAddr{"10.0.0.1:9000"},
			md:    metadata.Pairs("x-real-ip", "203.0.113.42"),
			allow: false,
		},
		{
			name:  "untrusted proxy header is ignored",
			cfg:   Config{Mode: DenyList, CIDRs: []string{"203.0.113.0/24"}, TrustedProxies: []string{"10.0.0.1"}},
			peer:  fakePeerAddr{"172.16.0.5:9000"},
			md:    metadata.Pairs("x-real-ip", "203.0.113.42"),
			allow: true,
		},
		{
			name:  "left-most forwarded address wins",
			cfg:   Config{Mode: AllowList, CIDRs: []string{"198.51.100.0/24"}, TrustedProxies: []string{"10.0.0.0/8"}},
			peer:  fakePeerAddr{"10.0.0.2:9000"},
			md:    metadata.Pairs("x-forwarded-for", " , 198.51.100.7, 10.0.0.3"),
			allow: true,
		},
		{
			name:  "custom header priority",
			cfg:   Config{Mode: AllowList, CIDRs: []string{"172.16.0.0/12"}, TrustedProxies: []string{"10.0.0.1"}, HeaderPriority: []string{"x-custom-ip"}},
			peer:  fakePeerAddr{"10.0.0.1:9000"},
			md:    metadata.Pairs("x-custom-ip", "172.16.5.5", "x-real-ip", "8.8.8.8"),
			allow: true,
		},
		{
			name:  "real TCP address",
			cfg:   Config{Mode: DenyList, CIDRs: []string{"192.0.2.0/24"}},
			peer:  &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 1234},
			allow: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mustBlocker(t, tt.cfg)
			ctx := peer.NewContext(t.Context(), &peer.Peer{Addr: tt.peer})
			if got := b.Evaluate(ctx, tt.md); got != tt.allow {
				t.Fatalf("Evaluate = %v, want %v", got, tt.allow)
			}
		})
	}
}

func TestEvaluate_NoPeerDenies(t *testing.T) {
	b := mustBlocker(t, Config{Mode: DenyList})
	if b.Evaluate(t.Context(), nil) {
		t.Fatal("expected a call without peer to be denied")
	}
}

func TestNewIPBlocker_Invalid(t *testing.T) {
	if _, err := NewIPBlocker(Config{CIDRs: []string{"not-a-cidr"}}); err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
	if _, err := NewIPBlocker(Config{TrustedProxies: []string{"bad"}}); err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}

func TestHandler_MetricsAllowList(t *testing.T) {
	b := mustBlocker(t, Config{Mode: AllowList, CIDRs: DefaultPrivateCIDRs, TrustedProxies: []string{"127.0.0.1"}})
	h := b.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	}))

	tests := []struct {
		remote string
		xff    string
		want   int
	}{
		{"127.0.0.1:4000", "", http.StatusOK},
		{"[::1]:4000", "", http.StatusOK},
		{"192.168.1.2:4000", "", http.StatusOK},
		{"203.0.113.9:4000", "", http.StatusForbidden},
		{"127.0.0.1:4000", "203.0.113.9", http.StatusForbidden},
		{"203.0.113.9:4000", "10.0.0.1", http.StatusForbidden},
		{"garbage", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("remote=%s xff=%q: status %d, want %d", tt.remote, tt.xff, rec.Code, tt.want)
		}
	}
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::ffff:192.0.2.1]:80"
	if got := ClientAddr(req); got != "192.0.2.1" {
		t.Fatalf("ClientAddr = %q", got)
	}
}
