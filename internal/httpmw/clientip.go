package httpmw

import (
	"context"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

type ClientIPOptions struct {
	// TrustedHops is how many reverse proxies sit in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes its last entry (one load balancer),
	// 2 the one before that (CDN and load balancer), and so on.
	TrustedHops int
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address resolved by ClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// ClientIP resolves the visitor address for rate limiting and logs.
// X-Forwarded-For and X-Forwarded-Proto are only honoured when the TCP peer
// is a private or loopback address and TrustedHops > 0; otherwise both
// headers are removed from the request.
func ClientIP(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
		})
	}
}

func resolveClientIP(r *http.Request, hops int) string {
	if r.RemoteAddr == "" {
		dropForwarded(r)
		return "0.0.0.0"
	}
	peer, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		dropForwarded(r)
		// no port, or not an address at all
		if a, err := netip.ParseAddr(r.RemoteAddr); err == nil {
			return a.Unmap().String()
		}
		return r.RemoteAddr
	}
	peerIP := peer.Addr().Unmap()

	if hops <= 0 || !(peerIP.IsPrivate() || peerIP.IsLoopback()) {
		dropForwarded(r)
		return peerIP.String()
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peerIP.String()
	}
	entries := strings.Split(xff, ",")
	i := len(entries) - hops
	if i < 0 {
		// shorter chain than the configured proxies
		dropForwarded(r)
		return peerIP.String()
	}
	if a, err := netip.ParseAddr(strings.TrimSpace(entries[i])); err == nil {
		return a.Unmap().String()
	}
	return peerIP.String()
}

func dropForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}
