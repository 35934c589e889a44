// Package sched owns the shared mutable machinery of a composition: the
// state registry, the invalid-scope set, the pending update and UI task
// queues, and the frame clock.
//
// Scheduling is single-threaded and cooperative: everything except explicit
// background effect work runs on one designated UI goroutine. Queues are
// drained into a local buffer before processing, so handlers may enqueue
// more work without invalidating the iteration.
package sched

import (
	"fmt"
	"sync"

	"src.weft.dev/pkg/logutil"
	"src.weft.dev/pkg/snapshot"
)

var logger = logutil.GetLogger("[sched] ")

// StateID identifies a state object registered in a Runtime.
type StateID int64

// Runtime is the shared backbone of one composition host. Composer, effect
// and layout code all hold the same *Runtime.
type Runtime struct {
	uiGoroutine int64

	nextStateID StateID
	states      map[StateID]snapshot.StateObject

	invalidScopes []any
	invalidSet    map[any]bool

	// Queues. uiMu guards uiTasks because background effect completions
	// enqueue from other goroutines; everything else is UI-goroutine only.
	updates []func()
	uiMu    sync.Mutex
	uiTasks []func()

	clock FrameClock
}

// NewRuntime creates a Runtime bound to the calling goroutine, which becomes
// the UI goroutine.
func NewRuntime() *Runtime {
	return &Runtime{
		uiGoroutine: goroutineID(),
		states:      map[StateID]snapshot.StateObject{},
		invalidSet:  map[any]bool{},
		nextStateID: 1,
	}
}

// AssertUIThread panics if called from a goroutine other than the one the
// Runtime was created on.
func (rt *Runtime) AssertUIThread() {
	if id := goroutineID(); id != rt.uiGoroutine {
		panic(fmt.Sprintf("sched: called from goroutine %d, want UI goroutine %d", id, rt.uiGoroutine))
	}
}

// AllocState registers a state object and returns its id. Registered states
// stay alive at least as long as the Runtime; cleanup is conservative.
func (rt *Runtime) AllocState(obj snapshot.StateObject) StateID {
	rt.AssertUIThread()
	id := rt.nextStateID
	rt.nextStateID++
	rt.states[id] = obj
	return id
}

// WithState runs f with the registered state object, if it exists.
func (rt *Runtime) WithState(id StateID, f func(snapshot.StateObject)) {
	rt.AssertUIThread()
	if obj, ok := rt.states[id]; ok {
		f(obj)
	}
}

// ReleaseState drops a registered state object.
func (rt *Runtime) ReleaseState(id StateID) {
	rt.AssertUIThread()
	delete(rt.states, id)
}

// RegisterInvalidScope queues a scope for recomposition. Duplicate
// registrations are ignored; insertion order is preserved.
func (rt *Runtime) RegisterInvalidScope(scope any) {
	rt.AssertUIThread()
	if rt.invalidSet[scope] {
		return
	}
	rt.invalidSet[scope] = true
	rt.invalidScopes = append(rt.invalidScopes, scope)
}

// MarkScopeRecomposed removes a scope from the invalid set, if present.
func (rt *Runtime) MarkScopeRecomposed(scope any) {
	rt.AssertUIThread()
	if !rt.invalidSet[scope] {
		return
	}
	delete(rt.invalidSet, scope)
	for i, s := range rt.invalidScopes {
		if s == scope {
			rt.invalidScopes = append(rt.invalidScopes[:i], rt.invalidScopes[i+1:]...)
			break
		}
	}
}

// TakeInvalidScopes drains the invalid-scope set into a fresh slice. The set
// must not be mutated while iterating, so callers process the returned
// buffer; scopes invalidated during processing land in the next take.
func (rt *Runtime) TakeInvalidScopes() []any {
	rt.AssertUIThread()
	scopes := rt.invalidScopes
	rt.invalidScopes = nil
	rt.invalidSet = map[any]bool{}
	return scopes
}

// HasInvalidScopes reports whether any scope awaits recomposition.
func (rt *Runtime) HasInvalidScopes() bool { return len(rt.invalidScopes) > 0 }

// EnqueueUpdate queues a host-side node mutation to run when the current
// pass flushes, after commands apply and before side effects. The composer
// never produces updates itself; hosts use this to mutate nodes outside the
// command journal.
func (rt *Runtime) EnqueueUpdate(f func()) {
	rt.AssertUIThread()
	rt.updates = append(rt.updates, f)
}

// TakeUpdates drains the pending node-update queue.
func (rt *Runtime) TakeUpdates() []func() {
	rt.AssertUIThread()
	updates := rt.updates
	rt.updates = nil
	return updates
}

// EnqueueUITask queues a task to run on the UI goroutine. Safe to call from
// any goroutine.
func (rt *Runtime) EnqueueUITask(f func()) {
	rt.uiMu.Lock()
	rt.uiTasks = append(rt.uiTasks, f)
	rt.uiMu.Unlock()
}

// DrainUI runs queued UI tasks until the queue is empty, including tasks
// enqueued by the tasks themselves. Returns the number of tasks run.
func (rt *Runtime) DrainUI() int {
	rt.AssertUIThread()
	n := 0
	for {
		rt.uiMu.Lock()
		tasks := rt.uiTasks
		rt.uiTasks = nil
		rt.uiMu.Unlock()
		if len(tasks) == 0 {
			return n
		}
		for _, f := range tasks {
			f()
			n++
		}
	}
}

// HasPendingUI reports whether UI tasks are queued.
func (rt *Runtime) HasPendingUI() bool {
	rt.uiMu.Lock()
	defer rt.uiMu.Unlock()
	return len(rt.uiTasks) > 0
}

// FrameClock returns the runtime's frame clock.
func (rt *Runtime) FrameClock() *FrameClock { return &rt.clock }

// DrainFrameCallbacks runs frame callbacks registered before the call, in
// registration order, with the given frame time.
func (rt *Runtime) DrainFrameCallbacks(nanos int64) int {
	rt.AssertUIThread()
	n := rt.clock.Drain(nanos)
	if n > 0 {
		logger.Printf("ran %d frame callbacks at %d", n, nanos)
	}
	return n
}

// HasFrameCallbacks reports whether frame callbacks are waiting.
func (rt *Runtime) HasFrameCallbacks() bool { return rt.clock.Pending() }
