package sched

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskScope owns the background work launched by one effect. Cancellation is
// cooperative: work observes ctx and the scope drops completion callbacks
// once cancelled, so a dead effect can never touch the composition again.
type TaskScope struct {
	rt     *Runtime
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	// UI-goroutine only.
	active bool
}

// NewTaskScope creates an active scope tied to the runtime.
func NewTaskScope(rt *Runtime) *TaskScope {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	return &TaskScope{rt: rt, ctx: ctx, cancel: cancel, eg: eg, active: true}
}

// Context returns the scope's context; it is done once the scope cancels.
func (ts *TaskScope) Context() context.Context { return ts.ctx }

// IsActive reports whether the scope has not been cancelled. UI goroutine
// only.
func (ts *TaskScope) IsActive() bool { return ts.active }

// LaunchBackground runs work on its own goroutine. When it returns, onResult
// runs on the UI goroutine at the next DrainUI, unless the scope has been
// cancelled in the meantime, in which case the result is dropped.
func (ts *TaskScope) LaunchBackground(work func(ctx context.Context) (any, error), onResult func(v any, err error)) {
	ts.eg.Go(func() error {
		v, err := work(ts.ctx)
		ts.rt.EnqueueUITask(func() {
			if ts.active && onResult != nil {
				onResult(v, err)
			}
		})
		return nil
	})
}

// Cancel deactivates the scope and cancels its context. Pending completion
// callbacks are dropped without running. Idempotent.
func (ts *TaskScope) Cancel() {
	ts.active = false
	ts.cancel()
}

// Wait blocks until all launched work has returned. Mainly for tests.
func (ts *TaskScope) Wait() {
	ts.eg.Wait()
}
