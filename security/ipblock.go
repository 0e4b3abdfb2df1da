// Package security restricts endpoints to a set of client networks. The same
// IPBlocker guards the /metrics route and the feeds RPC server.
package security

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"

	"google.golang.org/grpc/metadata"
)

// DefaultPrivateCIDRs are the loopback and private ranges allowed to scrape
// metrics when nothing else is configured.
var DefaultPrivateCIDRs = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

// Mode controls how the CIDR list is interpreted.
type Mode int

const (
	// AllowList only permits IPs that match at least one CIDR.
	AllowList Mode = iota
	// DenyList blocks IPs that match any CIDR and allows all others.
	DenyList
)

// Config holds the configuration for an IPBlocker.
type Config struct {
	Mode           Mode
	CIDRs          []string
	TrustedProxies []string
	HeaderPriority []string
}

// IPBlocker evaluates whether a client IP is allowed or denied based on the
// configured Mode and CIDR ranges.
type IPBlocker struct {
	mode           Mode
	cidrs          []netip.Prefix
	trustedProxies []netip.Prefix
	headerPriority []string
}

// NewIPBlocker creates an IPBlocker from the given Config.  It parses all CIDR
// strings and trusted-proxy strings up-front and returns an error if any entry
// is invalid.
func NewIPBlocker(cfg Config) (*IPBlocker, error) {
	cidrs, err := parsePrefixes(cfg.CIDRs)
	if err != nil {
		return nil, fmt.Errorf("ipblock: invalid CIDR: %w", err)
	}

	proxies, err := parsePrefixes(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("ipblock: invalid trusted proxy: %w", err)
	}

	hp := cfg.HeaderPriority
	if len(hp) == 0 {
		hp = defaultHeaderPriority
	}

	return &IPBlocker{
		mode:           cfg.Mode,
		cidrs:          cidrs,
		trustedProxies: proxies,
		headerPriority: hp,
	}, nil
}

// Evaluate determines whether the RPC identified by ctx and md is allowed.
//
// In AllowList mode the IP must match at least one CIDR to be allowed.
// In DenyList mode the IP must not match any CIDR to be allowed.
// If the client IP cannot be determined the request is denied.
func (b *IPBlocker) Evaluate(ctx context.Context, md metadata.MD) (allowed bool) {
	addr, ok := clientAddrFromRPC(ctx, md, b.trustedProxies, b.headerPriority)
	return ok && b.decide(addr)
}

// EvaluateRequest is Evaluate for an HTTP request.
func (b *IPBlocker) EvaluateRequest(r *http.Request) bool {
	addr, ok := clientAddrFromRequest(r, b.trustedProxies, b.headerPriority)
	return ok && b.decide(addr)
}

// Handler rejects requests from disallowed clients with 403 Forbidden.
func (b *IPBlocker) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !b.EvaluateRequest(r) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *IPBlocker) decide(addr netip.Addr) bool {
	matched := matchesAny(addr, b.cidrs)

	switch b.mode {
	case AllowList:
		return matched
	case DenyList:
		return !matched
	default:
		return false
	}
}

// matchesAny reports whether addr is contained in any of the prefixes.
func matchesAny(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parsePrefixes parses a slice of CIDR strings into netip.Prefix values.
// A plain IP address (without a prefix length) is treated as a single-host
// prefix (/32 for IPv4, /128 for IPv6).
func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			// Try as a bare address.
			addr, addrErr := netip.ParseAddr(s)
			if addrErr != nil {
				return nil, fmt.Errorf("%q: %w", s, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out = append(out, p)
	}
	return out, nil
}
