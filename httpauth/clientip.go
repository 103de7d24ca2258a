package httpauth

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address: the first X-Forwarded-For hop,
// then X-Real-IP, then the host part of RemoteAddr. Only deploy behind a
// proxy that overwrites these headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
