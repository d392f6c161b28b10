package useragent

import (
	"net/http/httptest"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name string
		ua   string
		want Info
	}{
		{
			name: "chrome on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: Info{Browser: "Chrome", OS: "Windows", Device: "Desktop"},
		},
		{
			name: "edge on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
			want: Info{Browser: "Edge", OS: "Windows", Device: "Desktop"},
		},
		{
			name: "firefox on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: Info{Browser: "Firefox", OS: "Linux", Device: "Desktop"},
		},
		{
			name: "safari on mac",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			want: Info{Browser: "Safari", OS: "MacOS", Device: "Desktop"},
		},
		{
			name: "chrome on android",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			want: Info{Browser: "Chrome", OS: "Android", Device: "Mobile"},
		},
		{
			name: "safari on iphone",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			want: Info{Browser: "Safari", OS: "iOS", Device: "Mobile"},
		},
		{
			name: "empty",
			ua:   "",
			want: Info{Browser: "Unknown", OS: "Unknown", Device: "Desktop"},
		},
		{
			name: "curl",
			ua:   "curl/8.4.0",
			want: Info{Browser: "Unknown", OS: "Unknown", Device: "Desktop"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Parse(tc.ua); got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.ua, got, tc.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:51234"
	r.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")

	if got := ClientIP(r, true); got != "203.0.113.7" {
		t.Fatalf("trusted proxy: got %q", got)
	}
	if got := ClientIP(r, false); got != "10.0.0.9" {
		t.Fatalf("untrusted proxy: got %q", got)
	}

	r.Header.Del("X-Forwarded-For")
	if got := ClientIP(r, true); got != "198.51.100.2" {
		t.Fatalf("x-real-ip fallback: got %q", got)
	}

	r.Header.Del("X-Real-IP")
	r.RemoteAddr = "[::1]:8080"
	if got := ClientIP(r, true); got != "::1" {
		t.Fatalf("remote addr fallback: got %q", got)
	}
}

func TestIsLoopback(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1"} {
		if !IsLoopback(ip) {
			t.Fatalf("%s should be loopback", ip)
		}
	}
	for _, ip := range []string{"203.0.113.7", "", "not-an-ip"} {
		if IsLoopback(ip) {
			t.Fatalf("%q should not be loopback", ip)
		}
	}
}
