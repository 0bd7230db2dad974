// Package app wires configuration, storage, the stores, the schedulers
// and the extension bridge into a running service.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/stash/internal/config"
	"github.com/MrSnakeDoc/stash/internal/httpserver"
	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/scheduler"
	"github.com/MrSnakeDoc/stash/internal/version"
)

// job is what every scheduler implements.
type job interface {
	Start(ctx context.Context) error
	Stop()
}

type namedJob struct {
	name string
	job  job
}

type App struct {
	cfg    *config.Config
	logger logger.Logger
	core   *Core
	server *httpserver.Server
	jobs   []namedJob
}

// New opens the stores and builds the schedulers and the bridge.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	core, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// Manual refresh trigger shared by the bridge and the refresher.
	feedTrigger := make(chan struct{}, 1)

	jobs := []namedJob{
		{"undo sweeper", scheduler.NewUndoSweeper(core.Items, log, cfg.UndoSweepInterval)},
		{"reconciler", scheduler.NewReconciler(core.Items, log, cfg.ReconcileInterval)},
		{"feed refresher", scheduler.NewFeedRefresher(core.Items, log, core.FeedRefreshInterval(), feedTrigger)},
	}
	if al := scheduler.NewVaultAutoLock(core.Vault, log, cfg.VaultIdleLock); al != nil {
		jobs = append(jobs, namedJob{"vault auto-lock", al})
	} else {
		log.Info("vault auto-lock disabled")
	}

	d := deps.Deps{
		Logger:             log,
		StartTime:          time.Now(),
		Version:            version.Version,
		Commit:             version.Commit,
		BuildDate:          version.BuildDate,
		GoVersion:          version.GoVersion,
		TimeNow:            time.Now,
		AllowedHosts:       cfg.AllowedHosts,
		AllowedCIDRS:       cfg.AllowedCIDRS,
		TrustProxy:         cfg.TrustProxy,
		CORSOrigins:        cfg.CORSOrigins,
		RateBurst:          cfg.RateBurst,
		RatePerMin:         cfg.RatePerMin,
		Items:              core.Items,
		Vault:              core.Vault,
		Bus:                core.Bus,
		Storage:            core.KV,
		Backend:            cfg.Storage,
		Metrics:            core.Metrics,
		FeedRefreshTrigger: feedTrigger,
	}

	return &App{
		cfg:    cfg,
		logger: log,
		core:   core,
		server: httpserver.New(cfg.ListenAddr, d),
		jobs:   jobs,
	}, nil
}

// Run starts the schedulers and the bridge, then blocks until SIGINT or
// SIGTERM and tears everything down in reverse order.
func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Stash %s on %s", version.Version, a.cfg.ListenAddr)
	a.logger.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := 0
	for _, j := range a.jobs {
		if err := j.job.Start(ctx); err != nil {
			a.shutdown(started)
			return fmt.Errorf("failed to start %s: %w", j.name, err)
		}
		started++
		a.logger.Debug("scheduler started", logger.String("job", j.name))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("bridge stopped", logger.Error(runErr))
	}

	if err := a.shutdown(started); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil {
		a.logger.Info("✅ Stash stopped cleanly")
	}
	return runErr
}

// shutdown stops the bridge, then the first n jobs in reverse order,
// then the stores.
func (a *App) shutdown(n int) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := a.server.Stop(shutdownCtx); err != nil {
		firstErr = fmt.Errorf("failed to stop server: %w", err)
	}
	for i := n - 1; i >= 0; i-- {
		a.jobs[i].job.Stop()
	}
	if err := a.core.Close(shutdownCtx); err != nil {
		a.logger.Error("unsaved changes lost on shutdown", logger.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
