package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
)

// Metrics serves the Prometheus registry; 404 when metrics are off.
func Metrics(d deps.Deps) http.HandlerFunc {
	if d.Metrics == nil {
		return http.NotFound
	}
	return d.Metrics.Handler().ServeHTTP
}
