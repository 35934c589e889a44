package comp

import (
	"context"
	"reflect"

	"src.weft.dev/pkg/sched"
)

// Effects are work scheduled by composition but executed outside it: side
// effects run after the pass's commands have been applied, disposable
// effects pair setup with cleanup keyed by a value, and launched effects own
// a background task scope tied to their group's lifetime.

// SideEffect schedules f to run after this pass's commands apply. It runs on
// every composition of the calling group.
func SideEffect(c *Composer, f func()) {
	c.sideEffects = append(c.sideEffects, f)
}

type disposableState struct {
	key     any
	set     bool
	cleanup func()
}

// DisposableEffect runs effect when first composed and whenever key changes,
// invoking the previous cleanup first. The final cleanup runs when the
// composition is disposed.
func DisposableEffect(c *Composer, key any, effect func() (cleanup func())) {
	// The effect gets its own group so the slot holding its state keeps its
	// identity even when a preceding sibling group disappears.
	c.WithGroup(disposableGroupKey, func(c *Composer) {
		st := Remember(c, func() *disposableState {
			s := &disposableState{}
			c.disposables = append(c.disposables, s)
			return s
		})
		if st.set && keysEqual(st.key, key) {
			return
		}
		st.key, st.set = key, true
		c.sideEffects = append(c.sideEffects, func() {
			if st.cleanup != nil {
				st.cleanup()
			}
			st.cleanup = effect()
		})
	})
}

type launchedState struct {
	key   any
	set   bool
	scope *sched.TaskScope
}

// LaunchedEffect starts work in a background task scope when first composed
// and whenever key changes; a key change cancels the previous scope before
// launching. The scope is cancelled when the composition is disposed.
//
// Conditional removal of the surrounding group does not cancel the scope:
// the group's slots are preserved as gaps, and re-entering with the same key
// finds the effect still running.
func LaunchedEffect(c *Composer, key any, work func(ctx context.Context) error) {
	c.WithGroup(launchedGroupKey, func(c *Composer) {
		st := Remember(c, func() *launchedState {
			s := &launchedState{}
			c.launched = append(c.launched, s)
			return s
		})
		if st.set && keysEqual(st.key, key) {
			return
		}
		if st.scope != nil {
			st.scope.Cancel()
		}
		st.key, st.set = key, true
		scope := sched.NewTaskScope(c.rt)
		st.scope = scope
		c.sideEffects = append(c.sideEffects, func() {
			scope.LaunchBackground(func(ctx context.Context) (any, error) {
				return nil, work(ctx)
			}, nil)
		})
	})
}

const (
	disposableGroupKey uint64 = 0x64697370 // "disp"
	launchedGroupKey   uint64 = 0x6c61756e // "laun"
)

func keysEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// disposeEffects cancels every launched scope and runs disposable cleanups
// in reverse registration order.
func (c *Composer) disposeEffects() {
	for _, st := range c.launched {
		if st.scope != nil {
			st.scope.Cancel()
		}
	}
	c.launched = nil
	for i := len(c.disposables) - 1; i >= 0; i-- {
		if cl := c.disposables[i].cleanup; cl != nil {
			cl()
			c.disposables[i].cleanup = nil
		}
	}
	c.disposables = nil
}
