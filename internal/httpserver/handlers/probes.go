package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

const readyzTimeout = 2 * time.Second

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type healthzResponse struct {
	Status        string    `json:"status"`
	App           string    `json:"app"`
	Backend       string    `json:"backend,omitempty"`
	Subscribers   int       `json:"event_subscribers"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Build         buildInfo `json:"build"`
}

// Healthz answers as long as the process serves HTTP; it never touches
// storage.
func Healthz(d deps.Deps) http.HandlerFunc {
	build := buildInfo{Version: d.Version, Commit: d.Commit, BuildDate: d.BuildDate, GoVersion: d.GoVersion}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			App:           appName,
			Backend:       d.Backend,
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
			Build:         build,
		}
		if d.Bus != nil {
			resp.Subscribers = d.Bus.Subscribers()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Readyz pings the storage backend.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Storage == nil {
			writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()
		if err := d.Storage.Ping(ctx); err != nil {
			d.Logger.Warn("readiness check failed", logger.String("backend", d.Backend), logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, readyzResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, readyzResponse{Ready: true})
	}
}
