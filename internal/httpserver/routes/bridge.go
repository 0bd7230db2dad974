package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/httpserver/handlers"
)

// requestTimeout bounds every bridge call except the event stream.
const requestTimeout = 10 * time.Second

func init() { Register(registerBridge, middleware.Timeout(requestTimeout)) }

func registerBridge(r chi.Router, d deps.Deps) {
	r.Get("/ping", handlers.Ping(d))
	r.Post("/bookmark", handlers.SaveBookmark(d))
	r.Post("/show", handlers.Show(d))
	r.Post("/feeds/refresh", handlers.RefreshFeeds(d))
	r.Post("/undo/{id}", handlers.Undo(d))
	r.Post("/vault/lock", handlers.LockVault(d))
	r.Get("/status", handlers.Status(d))
}
