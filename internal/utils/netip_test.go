package utils

import (
	"net/http/httptest"
	"testing"
)

func TestHostOnly(t *testing.T) {
	tests := map[string]string{
		"127.0.0.1:21890": "127.0.0.1",
		"[::1]:21890":     "::1",
		"localhost":       "localhost",
		"[::1]":           "::1",
		"":                "",
	}
	for in, want := range tests {
		if got := HostOnly(in); got != want {
			t.Errorf("HostOnly(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff, xri   string
		trustProxy bool
		want       string
	}{
		{"remote addr", "127.0.0.1:5000", "", "", false, "127.0.0.1"},
		{"proxy headers ignored", "127.0.0.1:5000", "203.0.113.9", "", false, "127.0.0.1"},
		{"left-most forwarded", "127.0.0.1:5000", "203.0.113.9, 10.0.0.1", "", true, "203.0.113.9"},
		{"real ip fallback", "127.0.0.1:5000", "garbage", "198.51.100.4", true, "198.51.100.4"},
		{"mapped v4", "[::ffff:127.0.0.1]:5000", "", "", false, "127.0.0.1"},
		{"v6", "[::1]:5000", "", "", false, "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Fatalf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"127.0.0.0/8", " ::1 ", "192.168.1.10", "not-an-ip", ""})
	if got := m.Invalid(); len(got) != 1 || got[0] != "not-an-ip" {
		t.Fatalf("Invalid = %v", got)
	}
	tests := map[string]bool{
		"127.0.0.1":        true,
		"127.8.9.10":       true,
		"::1":              true,
		"::ffff:127.0.0.1": true,
		"192.168.1.10":     true,
		"192.168.1.11":     false,
		"10.0.0.1":         false,
		"":                 false,
	}
	for ip, want := range tests {
		if got := m.Allow(ip); got != want {
			t.Errorf("Allow(%q) = %v, want %v", ip, got, want)
		}
	}
	if !NewIPMatcher([]string{"junk"}).IsEmpty() {
		t.Fatal("matcher with only invalid rules should be empty")
	}
}
