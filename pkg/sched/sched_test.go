package sched

import (
	"context"
	"testing"
	"time"

	"src.weft.dev/pkg/snapshot"
)

func TestInvalidScopeSet(t *testing.T) {
	rt := NewRuntime()
	rt.RegisterInvalidScope("a")
	rt.RegisterInvalidScope("b")
	rt.RegisterInvalidScope("a") // duplicate
	if !rt.HasInvalidScopes() {
		t.Errorf("HasInvalidScopes -> false, want true")
	}
	scopes := rt.TakeInvalidScopes()
	if len(scopes) != 2 || scopes[0] != "a" || scopes[1] != "b" {
		t.Errorf("TakeInvalidScopes -> %v, want [a b]", scopes)
	}
	if rt.HasInvalidScopes() {
		t.Errorf("HasInvalidScopes -> true after take, want false")
	}
}

func TestMarkScopeRecomposed(t *testing.T) {
	rt := NewRuntime()
	rt.RegisterInvalidScope("a")
	rt.RegisterInvalidScope("b")
	rt.MarkScopeRecomposed("a")
	scopes := rt.TakeInvalidScopes()
	if len(scopes) != 1 || scopes[0] != "b" {
		t.Errorf("TakeInvalidScopes -> %v, want [b]", scopes)
	}
}

func TestUITaskQueue(t *testing.T) {
	rt := NewRuntime()
	var order []int
	rt.EnqueueUITask(func() {
		order = append(order, 1)
		// Tasks enqueued while draining still run in this drain.
		rt.EnqueueUITask(func() { order = append(order, 3) })
	})
	rt.EnqueueUITask(func() { order = append(order, 2) })
	n := rt.DrainUI()
	if n != 3 {
		t.Errorf("DrainUI -> %d, want 3", n)
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("tasks ran in order %v", order)
			break
		}
	}
}

func TestFrameCallbackOrder(t *testing.T) {
	rt := NewRuntime()
	var order []string
	rt.FrameClock().WithFrameNanos(func(int64) { order = append(order, "A") })
	rt.FrameClock().WithFrameNanos(func(int64) { order = append(order, "B") })
	if !rt.HasFrameCallbacks() {
		t.Errorf("HasFrameCallbacks -> false, want true")
	}
	rt.DrainFrameCallbacks(1)
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("callbacks ran in order %v, want [A B]", order)
	}
}

func TestFrameCallbackCancel(t *testing.T) {
	rt := NewRuntime()
	ran := false
	cb := rt.FrameClock().WithFrameNanos(func(int64) { ran = true })
	cb.Cancel()
	if n := rt.DrainFrameCallbacks(1); n != 0 || ran {
		t.Errorf("cancelled callback ran (n=%d, ran=%v)", n, ran)
	}
}

func TestFrameCallbackRegisteredDuringDrain(t *testing.T) {
	rt := NewRuntime()
	runs := 0
	rt.FrameClock().WithFrameNanos(func(int64) {
		runs++
		rt.FrameClock().WithFrameNanos(func(int64) { runs++ })
	})
	rt.DrainFrameCallbacks(1)
	if runs != 1 {
		t.Errorf("first drain ran %d callbacks, want 1", runs)
	}
	rt.DrainFrameCallbacks(2)
	if runs != 2 {
		t.Errorf("after second drain %d callbacks ran, want 2", runs)
	}
}

func TestNextFrame(t *testing.T) {
	rt := NewRuntime()
	got := make(chan int64)
	go func() {
		nanos, err := rt.FrameClock().NextFrame(context.Background())
		if err != nil {
			t.Errorf("NextFrame -> error %v", err)
		}
		got <- nanos
	}()
	// Wait for the background registration to land.
	for !rt.HasFrameCallbacks() {
		time.Sleep(time.Millisecond)
	}
	rt.DrainFrameCallbacks(42)
	if nanos := <-got; nanos != 42 {
		t.Errorf("NextFrame -> %d, want 42", nanos)
	}
}

func TestTaskScopeDeliversResult(t *testing.T) {
	rt := NewRuntime()
	ts := NewTaskScope(rt)
	done := make(chan struct{})
	var got any
	ts.LaunchBackground(
		func(context.Context) (any, error) { return "result", nil },
		func(v any, err error) {
			got = v
			close(done)
		})
	ts.Wait()
	rt.DrainUI()
	select {
	case <-done:
	default:
		t.Fatalf("completion callback did not run")
	}
	if got != "result" {
		t.Errorf("result %v, want result", got)
	}
}

func TestTaskScopeCancelDropsResult(t *testing.T) {
	rt := NewRuntime()
	ts := NewTaskScope(rt)
	ran := false
	ts.LaunchBackground(
		func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		func(any, error) { ran = true })
	ts.Cancel()
	ts.Wait()
	rt.DrainUI()
	if ran {
		t.Errorf("completion callback ran after cancel")
	}
	if ts.IsActive() {
		t.Errorf("IsActive -> true after cancel")
	}
}

func TestStateRegistry(t *testing.T) {
	rt := NewRuntime()
	snapshot.Reset()
	defer snapshot.Reset()
	st := snapshot.NewState(1, snapshot.Structural[int]())
	id := rt.AllocState(st)
	var seen snapshot.StateObject
	rt.WithState(id, func(obj snapshot.StateObject) { seen = obj })
	if seen != snapshot.StateObject(st) {
		t.Errorf("WithState saw %v, want the registered state", seen)
	}
	rt.ReleaseState(id)
	seen = nil
	rt.WithState(id, func(obj snapshot.StateObject) { seen = obj })
	if seen != nil {
		t.Errorf("WithState found released state")
	}
}

func TestAssertUIThread(t *testing.T) {
	rt := NewRuntime()
	rt.AssertUIThread() // same goroutine: fine
	done := make(chan bool)
	go func() {
		defer func() { done <- recover() != nil }()
		rt.AssertUIThread()
	}()
	if !<-done {
		t.Errorf("AssertUIThread did not panic on another goroutine")
	}
}
