package coordinator

import (
	"context"
	"errors"
	"time"
)

// Start runs the scheduler in the background, ticking every TickInterval.
// Calling Start on a running or stopped coordinator does nothing.
func (c *Coordinator) Start() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.cancel != nil || c.stopped.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	interval := c.TickInterval()
	c.logger.Info().Dur("tick_interval", interval).Msg("Scheduler started")

	go c.run(ctx, interval, c.done)
}

func (c *Coordinator) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStopped) {
				c.logger.Warn().Err(err).Msg("Scheduled refresh failed")
			}
		case <-ctx.Done():
			c.logger.Debug().Msg("Scheduler stopped")
			return
		}
	}
}

// Stop halts the coordinator for good. An in-flight tick, scheduled or
// manual, is cancelled and its results are discarded; Stop waits for it.
// After Stop returns neither the snapshot nor the store changes.
func (c *Coordinator) Stop() {
	c.stopped.Store(true)
	c.kill()

	c.loopMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	// Drain a manual tick still holding the lock.
	c.tickMu.Lock()
	c.tickMu.Unlock()
}

// Running reports whether the scheduler is active
func (c *Coordinator) Running() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.cancel != nil
}
