package security

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// defaultHeaderPriority is the ordered list of header keys inspected when
// the caller does not provide an explicit HeaderPriority.
var defaultHeaderPriority = []string{"x-real-ip", "x-forwarded-for"}

// headerLookup returns every value of a header or metadata key.
type headerLookup func(key string) []string

// resolveClientAddr determines the effective client address from the
// connection's remote address and the request headers.
//
// If the remote address is within trustedProxies, headerPriority is walked
// in order and the first valid IP found is returned. Otherwise (or when no
// valid header IP is found) the remote address itself is returned.
func resolveClientAddr(remote netip.Addr, lookup headerLookup, trustedProxies []netip.Prefix, headerPriority []string) netip.Addr {
	if isTrustedProxy(remote, trustedProxies) {
		if addr, found := addrFromHeaders(lookup, headerPriority); found {
			return addr
		}
	}
	return remote
}

// clientAddrFromRPC resolves the client of a gRPC call.
func clientAddrFromRPC(ctx context.Context, md metadata.MD, trustedProxies []netip.Prefix, headerPriority []string) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	remote, ok := parseHostPort(p.Addr.String())
	if !ok {
		return netip.Addr{}, false
	}
	return resolveClientAddr(remote, md.Get, trustedProxies, headerPriority), true
}

// clientAddrFromRequest resolves the client of an HTTP request.
func clientAddrFromRequest(r *http.Request, trustedProxies []netip.Prefix, headerPriority []string) (netip.Addr, bool) {
	remote, ok := parseHostPort(r.RemoteAddr)
	if !ok {
		return netip.Addr{}, false
	}
	return resolveClientAddr(remote, r.Header.Values, trustedProxies, headerPriority), true
}

// ClientAddr returns the effective client address of r, without any proxy
// trust. It is meant for logging.
func ClientAddr(r *http.Request) string {
	if addr, ok := parseHostPort(r.RemoteAddr); ok {
		return addr.String()
	}
	return r.RemoteAddr
}

// parseHostPort parses an address into a netip.Addr, stripping any port.
func parseHostPort(addrStr string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(addrStr); err == nil {
		addrStr = host
	}

	ip, err := netip.ParseAddr(addrStr)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// isTrustedProxy reports whether addr falls within any of the given prefixes.
func isTrustedProxy(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// addrFromHeaders walks the header keys in priority order and returns the
// first valid IP address found. For multi-value headers such as
// X-Forwarded-For the left-most (client) entry is used.
func addrFromHeaders(lookup headerLookup, priority []string) (netip.Addr, bool) {
	for _, key := range priority {
		for _, v := range lookup(key) {
			// X-Forwarded-For may contain comma-separated IPs.
			for part := range strings.SplitSeq(v, ",") {
				trimmed := strings.TrimSpace(part)
				if trimmed == "" {
					continue
				}
				if ip, err := netip.ParseAddr(trimmed); err == nil {
					return ip, true
				}
			}
		}
	}
	return netip.Addr{}, false
}
