// Package useragent classifies request headers into the coarse session
// metadata shown on the session list.
package useragent

import (
	"net"
	"net/http"
	"strings"
)

const unknown = "Unknown"

// Info is the browser, OS and device class of a User-Agent.
type Info struct {
	Browser string
	OS      string
	Device  string
}

// Parse classifies ua by substring. Tokens that other browsers also carry
// are tested last: Edge UAs contain "Chrome", Chrome UAs contain "Safari",
// Android UAs contain "Linux" and iOS UAs contain "Mac OS X".
func Parse(ua string) Info {
	info := Info{Browser: unknown, OS: unknown, Device: "Desktop"}

	switch {
	case strings.Contains(ua, "Firefox/"), strings.Contains(ua, "FxiOS/"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "Edg"):
		info.Browser = "Edge"
	case strings.Contains(ua, "Chrome/"), strings.Contains(ua, "CriOS/"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "Safari/"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "Android"):
		info.OS = "Android"
		info.Device = "Mobile"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		info.OS = "iOS"
		info.Device = "Mobile"
	case strings.Contains(ua, "Windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "Mac"):
		info.OS = "MacOS"
	case strings.Contains(ua, "Linux"):
		info.OS = "Linux"
	}

	return info
}

// IsLoopback reports whether ip is a local address.
func IsLoopback(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	return parsed != nil && parsed.IsLoopback()
}

// ClientIP returns the caller's address. With trustProxy the first
// X-Forwarded-For entry wins, then X-Real-IP; otherwise, and as a fallback,
// the host part of RemoteAddr.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
