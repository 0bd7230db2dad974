package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/stash/internal/items"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

// disabledRecheck is how often a disabled refresher looks at the
// interval again.
const disabledRecheck = time.Minute

// FeedSource is implemented by items.Store.
type FeedSource interface {
	RefreshAllFeeds(ctx context.Context) (items.RefreshSummary, error)
}

// FeedRefresher refreshes every feed on an interval that may change at
// runtime (user preference), and on manual triggers.
type FeedRefresher struct {
	job
	src           FeedSource
	logger        logger.Logger
	interval      func() time.Duration
	manualTrigger chan struct{}
	now           func() time.Time
}

// NewFeedRefresher builds a refresher. interval is read before each wait;
// 0 or less disables the periodic refresh but manual triggers still run.
func NewFeedRefresher(src FeedSource, log logger.Logger, interval func() time.Duration, manualTrigger chan struct{}) *FeedRefresher {
	return &FeedRefresher{
		job:           newJob(),
		src:           src,
		logger:        log,
		interval:      interval,
		manualTrigger: manualTrigger,
		now:           time.Now,
	}
}

// Start begins the refresh loop.
func (fr *FeedRefresher) Start(ctx context.Context) error {
	fr.started = true
	go fr.loop(ctx)
	return nil
}

func (fr *FeedRefresher) loop(ctx context.Context) {
	defer close(fr.done)
	last := fr.now()
	for {
		wait, enabled := fr.nextWait(last)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if enabled {
				fr.Refresh(ctx)
				last = fr.now()
			}
		case <-fr.manualTrigger:
			timer.Stop()
			fr.logger.Info("manual feed refresh triggered")
			fr.Refresh(ctx)
			last = fr.now()
		case <-fr.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// nextWait is the time left until the next periodic refresh, capped so
// a changed interval is picked up within a minute.
func (fr *FeedRefresher) nextWait(last time.Time) (time.Duration, bool) {
	iv := fr.interval()
	if iv <= 0 {
		return disabledRecheck, false
	}
	left := iv - fr.now().Sub(last)
	if left > disabledRecheck {
		return disabledRecheck, false
	}
	return max(left, 0), true
}

// Refresh runs one refresh of every feed.
func (fr *FeedRefresher) Refresh(ctx context.Context) {
	sum, err := fr.src.RefreshAllFeeds(ctx)
	switch {
	case errors.Is(err, items.ErrRefreshInProgress):
		fr.logger.Debug("feed refresh already running, skipped")
	case err != nil:
		fr.logger.Error("feed refresh failed", logger.Error(err))
	case sum.Failed > 0:
		fr.logger.Warn("some feeds failed to refresh",
			logger.Int("feeds", sum.Feeds), logger.Int("failed", sum.Failed), logger.Int("new", sum.Added))
	}
}
