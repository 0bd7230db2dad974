package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

// heartbeat keeps idle proxies from closing the stream.
const heartbeat = 25 * time.Second

// Events streams store change notifications as server-sent events.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Bus == nil {
			writeError(w, http.StatusServiceUnavailable, "events disabled")
			return
		}
		rc := http.NewResponseController(w)
		// the server write timeout would cut the stream
		_ = rc.SetWriteDeadline(time.Time{})

		ch, cancel := d.Bus.Subscribe()
		defer cancel()

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-store")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": connected\n\n")
		if err := rc.Flush(); err != nil {
			d.Logger.Debug("event stream not flushable", logger.Error(err))
			return
		}

		tick := time.NewTicker(heartbeat)
		defer tick.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-tick.C:
				fmt.Fprint(w, ": ping\n\n")
			case e, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
