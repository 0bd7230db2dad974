package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/utils"
)

// Loopback is used when no CIDR is configured: the bridge is local only.
var Loopback = []string{"127.0.0.0/8", "::1/128"}

// AllowOnlyCIDRS rejects clients whose IP is outside allowed. An empty
// list means loopback only.
// trustProxy should be true only behind a trusted reverse proxy.
func AllowOnlyCIDRS(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		allowed = Loopback
	}
	m := utils.NewIPMatcher(allowed)
	if bad := m.Invalid(); len(bad) > 0 {
		log.Warn("AllowOnlyCIDRS: ignoring invalid rules", logger.Strings("rules", bad))
	}
	if m.IsEmpty() {
		log.Warn("AllowOnlyCIDRS: no valid rule, falling back to loopback", logger.Strings("rules", allowed))
		m = utils.NewIPMatcher(Loopback)
	}

	log.Debugf("AllowOnlyCIDRS: initialized with %d rules, trustProxy=%v", len(allowed), trustProxy)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !m.Allow(ip) {
				log.Warn("request from disallowed address rejected",
					logger.String("ip", ip), logger.String("path", r.URL.Path))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
