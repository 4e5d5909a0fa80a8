package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientKey identifies the caller for rate limiting. It expects chi's RealIP
// middleware to have already rewritten RemoteAddr from proxy headers.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
