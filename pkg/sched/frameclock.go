package sched

import (
	"context"
	"sync"
)

// FrameClock delivers per-frame callbacks. Callbacks run on the UI goroutine
// when the host calls Drain, in registration order. Registration is safe from
// any goroutine, so background effect work can await frames.
type FrameClock struct {
	mu        sync.Mutex
	callbacks []*FrameCallback
}

// FrameCallback is a registered frame callback. Dropping it without firing
// requires Cancel.
type FrameCallback struct {
	clock     *FrameClock
	f         func(nanos int64)
	cancelled bool
}

// WithFrameNanos registers f to run at the next drain with the frame time in
// nanoseconds. The returned handle cancels the registration.
func (c *FrameClock) WithFrameNanos(f func(nanos int64)) *FrameCallback {
	cb := &FrameCallback{clock: c, f: f}
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
	return cb
}

// Cancel unregisters the callback if it has not fired yet.
func (cb *FrameCallback) Cancel() {
	cb.clock.mu.Lock()
	cb.cancelled = true
	cb.clock.mu.Unlock()
}

// Drain runs all callbacks registered before the call, in registration
// order. Callbacks registered while draining run at the next drain. Returns
// the number of callbacks run.
func (c *FrameClock) Drain(nanos int64) int {
	c.mu.Lock()
	callbacks := c.callbacks
	c.callbacks = nil
	c.mu.Unlock()

	n := 0
	for _, cb := range callbacks {
		c.mu.Lock()
		cancelled := cb.cancelled
		c.mu.Unlock()
		if cancelled {
			continue
		}
		cb.f(nanos)
		n++
	}
	return n
}

// Pending reports whether any callback is waiting for a drain.
func (c *FrameClock) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.callbacks) > 0
}

// NextFrame blocks until the next drain and returns its frame time. It is
// intended for background effect bodies; calling it from the UI goroutine
// would deadlock.
func (c *FrameClock) NextFrame(ctx context.Context) (int64, error) {
	ch := make(chan int64, 1)
	cb := c.WithFrameNanos(func(nanos int64) { ch <- nanos })
	select {
	case nanos := <-ch:
		return nanos, nil
	case <-ctx.Done():
		cb.Cancel()
		return 0, ctx.Err()
	}
}
