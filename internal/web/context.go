package web

import (
	"net"
	"net/http"
)

// clientIP returns the caller's address without the port. RemoteAddr has
// already been rewritten by TrustedRealIP when a trusted proxy forwarded
// the request.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
