package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// DeviceFromRequest builds the device context tokens are bound to. With
// trustProxy the left-most X-Forwarded-For entry wins over RemoteAddr.
func DeviceFromRequest(r *http.Request, trustProxy bool) authcore.DeviceContext {
	return authcore.DeviceContext{
		ClientIP:  clientIP(r, trustProxy),
		UserAgent: r.UserAgent(),
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
