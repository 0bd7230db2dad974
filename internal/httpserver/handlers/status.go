package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/items"
	"github.com/MrSnakeDoc/stash/internal/vault"
)

type componentStatus struct {
	OK      bool   `json:"ok"`
	Backend string `json:"backend,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Items          items.Stats     `json:"items"`
	Vault          *vault.Status   `json:"vault,omitempty"`
	Feeds          int             `json:"feeds"`
	FeedRefreshing bool            `json:"feedRefreshing"`
	Storage        componentStatus `json:"storage"`
	UptimeSeconds  float64         `json:"uptime_seconds"`
}

// Status summarises the library, the vault and the storage backend.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := d.Items.Stats()
		resp := statusResponse{
			Items:          stats,
			Feeds:          stats.Feeds,
			FeedRefreshing: d.Items.Refreshing(),
			Storage:        checkStorage(r.Context(), d),
			UptimeSeconds:  d.Now().Sub(d.StartTime).Seconds(),
		}
		if d.Vault != nil {
			st := d.Vault.Status()
			resp.Vault = &st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func checkStorage(ctx context.Context, d deps.Deps) componentStatus {
	if d.Storage == nil {
		return componentStatus{OK: false, Backend: d.Backend, Error: "not initialized"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.Storage.Ping(ctx); err != nil {
		return componentStatus{OK: false, Backend: d.Backend, Error: err.Error()}
	}
	return componentStatus{OK: true, Backend: d.Backend}
}
