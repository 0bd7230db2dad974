package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

const (
	// maxBodyBytes caps request bodies sent by the extension.
	maxBodyBytes = 64 << 10
	// appName is how the extension recognises the bridge.
	appName = "Stash"
)

// Ping lets the extension discover the app.
func Ping(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "app": appName})
	}
}

type saveRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type saveResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// SaveBookmark adds the page the extension sends. Saving an already
// stored URL returns the existing id with created=false.
func SaveBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		id, created, err := d.Items.Add(r.Context(), domain.NewBookmark{
			URL:         req.URL,
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
		})
		switch {
		case errors.Is(err, domain.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid url")
			return
		case err != nil && id == "":
			d.Logger.Error("save from extension failed", logger.String("url", req.URL), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "save failed")
			return
		case err != nil:
			// kept in memory, persisted on the next successful write
			d.Logger.Warn("bookmark saved but not persisted", logger.String("id", id), logger.Error(err))
		}

		d.Logger.Info("bookmark saved from extension",
			logger.String("id", id), logger.Bool("created", created))
		writeJSON(w, http.StatusOK, saveResponse{Status: "saved", ID: id, Created: created})
	}
}

// Show asks the presentation layer to come to the front.
func Show(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Bus != nil {
			d.Bus.Publish(events.Event{Kind: events.Show, At: d.Now()})
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
