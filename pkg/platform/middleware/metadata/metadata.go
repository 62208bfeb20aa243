// Package metadata records who is calling: client IP and User-Agent.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"lendgate/pkg/requestcontext"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context. Apply it before rate limiting.
//
// With trustProxy unset the IP is the socket peer and forwarding headers are
// ignored; they are client-controlled unless an ingress rewrites them.
func ClientMetadata(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIPFromRequest(r, trustProxy)
			ctx := requestcontext.WithClientMetadata(r.Context(), ip, r.Header.Get("User-Agent"))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromRequest extracts the client IP. Behind a trusted proxy it takes
// the rightmost X-Forwarded-For hop, the one the proxy appended, then
// X-Real-IP; otherwise only RemoteAddr counts.
func ClientIPFromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := lastForwardedHop(r.Header.Values("X-Forwarded-For")); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}

	return "unknown"
}

// lastForwardedHop scans every X-Forwarded-For line from the right.
func lastForwardedHop(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		hops := strings.Split(lines[i], ",")
		for j := len(hops) - 1; j >= 0; j-- {
			if hop := strings.TrimSpace(hops[j]); hop != "" {
				return hop
			}
		}
	}
	return ""
}
