package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// RefreshFeeds queues a refresh of every feed without waiting for it.
func RefreshFeeds(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.FeedRefreshTrigger == nil {
			writeError(w, http.StatusServiceUnavailable, "feed refresh disabled")
			return
		}
		select {
		case d.FeedRefreshTrigger <- struct{}{}:
			d.Logger.Info("manual feed refresh triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		default:
			d.Logger.Warn("feed refresh already queued",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "busy"})
		}
	}
}

// Undo applies a pending inverse command.
func Undo(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := d.Items.Undo(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "undone", "id": id})
		case errors.Is(err, undo.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown undo id")
		case errors.Is(err, undo.ErrExpired):
			writeError(w, http.StatusGone, "undo window elapsed")
		default:
			d.Logger.Error("undo failed", logger.String("id", id), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "undo failed")
		}
	}
}

// LockVault closes the unlocked vault session, if any.
func LockVault(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Vault != nil {
			d.Vault.Lock()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
	}
}
