package mw

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS lets the browser extension call the bridge. origins may contain
// "*" or extension origins such as "chrome-extension://<id>".
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return c.Handler
}
