package session

import (
	"context"
	"sync"
	"time"
)

// Clock drives the countdown for an active session: one tick per interval
// (one second in production) delivered to a single callback. It has exactly
// one owner; Start while running is a no-op, Stop is idempotent, and a
// stopped clock can be started again across pause/resume cycles without ever
// having two ticking goroutines live.
type Clock struct {
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64 // bumped per Start; lets a run stop only itself
}

func NewClock(interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{interval: interval}
}

// Start begins ticking. onTick returning false stops the clock from within
// the tick itself, which is how the countdown guarantees no further ticks
// after reaching zero.
func (c *Clock) Start(onTick func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++
	gen := c.gen

	go func() {
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if !onTick() {
					// A tick can be in flight across a Stop/Start pair; it
					// must only ever cancel its own run, never a newer one.
					c.stopGen(gen)
					return
				}
			}
		}
	}()
}

// Stop cancels the current run, if any.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// stopGen cancels the run identified by gen. A no-op when that run has
// already been superseded or stopped.
func (c *Clock) stopGen(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
}

// Running reports whether a tick loop is live.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}
