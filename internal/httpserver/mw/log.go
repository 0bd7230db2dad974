package mw

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/stash/internal/logger"
)

// quietPaths are polled by probes and scrapers; they log at debug.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true, "/api/ping": true}

// Log writes one structured line per request. Server errors are logged
// at warn, probe and event-stream traffic at debug.
func Log(loggerClient logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			// The wrapper keeps http.Flusher so SSE streams still flush.
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []logger.Field{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", status),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("took", time.Since(start)),
				logger.String("client", r.RemoteAddr),
				logger.String("origin", r.Header.Get("Origin")),
				logger.String("req", middleware.GetReqID(r.Context())),
			}

			path := r.URL.Path
			switch {
			case status >= http.StatusInternalServerError:
				loggerClient.Warn("request failed", fields...)
			case quietPaths[path] || strings.HasPrefix(path, "/api/events"):
				loggerClient.Debug("request", fields...)
			default:
				loggerClient.Info("request", fields...)
			}
		})
	}
}
