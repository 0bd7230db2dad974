package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/stash/internal/logger"
)

// DefaultReconcileInterval is how often unsaved state is retried.
const DefaultReconcileInterval = 30 * time.Second

// Flusher is implemented by items.Store.
type Flusher interface {
	Dirty() bool
	Flush(ctx context.Context) error
}

// Reconciler writes back slots whose last persist failed. The in-memory
// state stays authoritative; this only retries the backend.
type Reconciler struct {
	job
	store    Flusher
	logger   logger.Logger
	interval time.Duration
}

func NewReconciler(store Flusher, log logger.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Reconciler{job: newJob(), store: store, logger: log, interval: interval}
}

// Start begins the periodic retry.
func (r *Reconciler) Start(ctx context.Context) error {
	r.every(ctx, r.interval, func(ctx context.Context) { _ = r.Reconcile(ctx) })
	return nil
}

// Reconcile flushes once if anything is dirty.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if !r.store.Dirty() {
		return nil
	}
	r.logger.Info("retrying unsaved changes")
	if err := r.store.Flush(ctx); err != nil {
		r.logger.Warn("storage still failing, will retry", logger.Error(err),
			logger.Duration("next_retry_in", r.interval))
		return err
	}
	r.logger.Info("unsaved changes persisted")
	return nil
}
