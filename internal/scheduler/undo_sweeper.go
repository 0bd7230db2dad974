package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/stash/internal/logger"
)

// DefaultSweepInterval is how often expired undo commands are dropped.
const DefaultSweepInterval = 5 * time.Second

// UndoSource is implemented by items.Store.
type UndoSource interface {
	SweepUndo() int
}

// UndoSweeper drops undo commands whose window has elapsed, so the
// presentation layer stops offering them.
type UndoSweeper struct {
	job
	src      UndoSource
	logger   logger.Logger
	interval time.Duration
}

func NewUndoSweeper(src UndoSource, log logger.Logger, interval time.Duration) *UndoSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &UndoSweeper{job: newJob(), src: src, logger: log, interval: interval}
}

// Start begins the periodic sweep.
func (s *UndoSweeper) Start(ctx context.Context) error {
	s.every(ctx, s.interval, func(context.Context) { s.Sweep() })
	return nil
}

// Sweep runs one pass and returns how many commands expired.
func (s *UndoSweeper) Sweep() int {
	n := s.src.SweepUndo()
	if n > 0 {
		s.logger.Debug("expired undo commands dropped", logger.Int("count", n))
	}
	return n
}
