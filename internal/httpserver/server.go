package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/httpserver/mw"
	"github.com/MrSnakeDoc/stash/internal/httpserver/routes"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

// Server is the local bridge the browser extension talks to.
type Server struct {
	http    *http.Server
	logger  logger.Logger
	started time.Time

	// cancel ends the request contexts so event streams return on Stop.
	cancel context.CancelFunc
}

// Handler builds the router: global middlewares, then /api behind the
// access checks and the rate limit, then probes at the root.
func Handler(d deps.Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.GetHead)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(d.Logger))
	r.Use(mw.CORS(d.CORSOrigins))
	r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))

	api := chi.NewRouter()
	api.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
	api.Use(mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.RateBurst,
		RefillPerIPPerMin: d.RatePerMin,
		TrustProxy:        d.TrustProxy,
	}))
	routes.RegisterAll(r, api, d)
	r.Mount("/api", api)

	return r
}

// New builds the HTTP server listening on addr.
func New(addr string, d deps.Deps) *Server {
	base, cancel := context.WithCancel(context.Background())
	s := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return base },
		Addr:              addr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return &Server{http: s, logger: d.Logger, started: d.StartTime, cancel: cancel}
}

// Start runs the HTTP server (blocks until error or shutdown).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Infof("extension bridge listening on %s", ln.Addr())
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server with the provided context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("extension bridge shutting down", logger.Duration("uptime", time.Since(s.started)))
	s.cancel()
	return s.http.Shutdown(ctx)
}
