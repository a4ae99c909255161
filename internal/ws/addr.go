package ws

import (
	"net"
	"net/http"
	"strings"
)

// ResolveClientAddr returns the client address for an incoming upgrade
// request. When trustProxy is set (the server sits behind a single known
// reverse proxy hop), the first comma-separated value of X-Forwarded-For
// wins; otherwise the raw transport peer address is used exclusively, since
// any client can set the header itself.
func ResolveClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first := fwd
			if i := strings.IndexByte(fwd, ','); i >= 0 {
				first = fwd[:i]
			}
			if addr := strings.TrimSpace(first); addr != "" {
				return addr
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
