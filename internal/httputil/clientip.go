package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP returns the address of the caller. Forwarding headers are only
// honored when the direct peer is a loopback or private address, which is
// where a reverse proxy in front of the scheduler would connect from.
func GetClientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !trustedProxy(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return ip.String()
		}
	}
	if ip, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return ip.String()
	}
	return peer
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.Trim(addr, "[]")
	}
	return host
}

func trustedProxy(host string) bool {
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	return ip.IsLoopback() || ip.IsPrivate()
}
