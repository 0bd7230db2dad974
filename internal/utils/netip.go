package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// HostOnly strips the port from "ip:port", "[v6]:port" or "host:port".
// Input without a port is returned unchanged.
func HostOnly(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return strings.Trim(s, "[]")
}

// ClientIP resolves the caller address. With trustProxy the left-most
// X-Forwarded-For entry, then X-Real-IP, win over RemoteAddr.
// IPv4-mapped IPv6 addresses are returned in their IPv4 form.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		xff, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, v := range []string{xff, r.Header.Get("X-Real-IP")} {
			if addr, ok := parseAddr(v); ok {
				return addr.String()
			}
		}
	}
	if addr, ok := parseAddr(r.RemoteAddr); ok {
		return addr.String()
	}
	return HostOnly(r.RemoteAddr)
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	addr, err := netip.ParseAddr(HostOnly(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// IPMatcher matches addresses against CIDRs; plain IPs are single-address
// prefixes.
type IPMatcher struct {
	prefixes []netip.Prefix
	invalid  []string
}

func NewIPMatcher(list []string) *IPMatcher {
	m := &IPMatcher{}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			m.prefixes = append(m.prefixes, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		m.invalid = append(m.invalid, s)
	}
	return m
}

func (m *IPMatcher) IsEmpty() bool { return len(m.prefixes) == 0 }

// Invalid lists the rules that were neither an IP nor a CIDR.
func (m *IPMatcher) Invalid() []string { return m.invalid }

func (m *IPMatcher) Allow(ip string) bool {
	addr, ok := parseAddr(ip)
	if !ok {
		return false
	}
	for _, p := range m.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
