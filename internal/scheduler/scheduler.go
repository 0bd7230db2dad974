// Package scheduler runs the background jobs of the service: feed
// refresh, undo expiry, persistence retry and vault auto-lock.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// job is the stop/wait plumbing shared by every scheduler.
type job struct {
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

func newJob() job {
	return job{stopCh: make(chan struct{}), done: make(chan struct{})}
}

// every calls fn each interval until ctx ends or Stop is called.
func (j *job) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	j.started = true
	ticker := time.NewTicker(interval)
	go func() {
		defer close(j.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-j.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for the running iteration, if any.
func (j *job) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	if j.started {
		<-j.done
	}
}
