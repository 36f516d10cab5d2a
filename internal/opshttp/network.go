package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/smallbiz-web/internal/log"
)

// requireNonPublicNetwork answers 403 unless the TCP peer is loopback,
// private or link-local. Forwarded headers are ignored.
func requireNonPublicNetwork(L log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason := peerRejection(r.RemoteAddr); reason != "" {
			L.Warn(r.Context(), "ops request rejected", "remote_addr", r.RemoteAddr, "path", r.URL.Path, "reason", reason)
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// peerRejection returns why remoteAddr may not use the ops listener, or ""
// when it may.
func peerRejection(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return "unparseable remote addr"
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return "invalid remote ip"
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return ""
	}
	return "public remote ip"
}
