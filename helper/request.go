package helper

import (
	"net"
	"net/http"
)

// ClientIP returns the host part of the request's remote address. Run it
// behind chi's RealIP middleware to honor X-Forwarded-For.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
