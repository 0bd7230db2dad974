package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
)

type (
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg  Registrar
	mws  []Middleware
	root bool
}

var registry []entry

// Register adds a registrar mounted under /api, with optional per-route
// middlewares.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// RegisterRoot adds a registrar mounted at the root (probes, metrics).
func RegisterRoot(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws, root: true})
}

// RegisterAll mounts every registrar. api is the /api sub-router, root
// the top-level one. Called once from server.New().
func RegisterAll(root, api chi.Router, d deps.Deps) {
	for _, e := range registry {
		r := api
		if e.root {
			r = root
		}
		if len(e.mws) > 0 {
			r = r.With(e.mws...)
		}
		e.reg(r, d)
	}
}
