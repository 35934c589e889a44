package snapshot

import "src.weft.dev/pkg/snapid"

// Observer routes "state X was read inside scope Y" into a dependency map
// and, when an apply modifies X, reports every scope that read it. Scopes are
// opaque tokens; the composer uses recompose scopes.
type Observer struct {
	onChanged func(scope any)

	// Scopes currently being observed, innermost last. Reads attribute to the
	// innermost scope.
	stack []any

	readers  map[ObjectID]map[any]bool
	readings map[any]map[ObjectID]bool

	unregister func()
}

// NewObserver creates an Observer. Whenever an apply modifies a state that
// some scope read during its last ObserveReads, onChanged is called with that
// scope, once per (apply, scope) pair.
func NewObserver(onChanged func(scope any)) *Observer {
	o := &Observer{
		onChanged: onChanged,
		readers:   map[ObjectID]map[any]bool{},
		readings:  map[any]map[ObjectID]bool{},
	}
	o.unregister = RegisterApplyObserver(o.onApply)
	return o
}

// ObserveReads runs f and attributes every state read inside it to scope.
// Previous reads recorded for the scope are forgotten first, so the
// dependency map always reflects the scope's latest run. Calls may nest;
// reads attribute to the innermost scope.
func (o *Observer) ObserveReads(scope any, f func()) {
	o.Clear(scope)
	o.stack = append(o.stack, scope)
	defer func() { o.stack = o.stack[:len(o.stack)-1] }()

	wrapper, created := TakeTransparentObserverSnapshot(o, o.recordRead, nil)
	if created {
		defer wrapper.Dispose()
		wrapper.Enter(f)
	} else {
		f()
	}
}

func (o *Observer) recordRead(obj StateObject) {
	if len(o.stack) == 0 {
		return
	}
	scope := o.stack[len(o.stack)-1]
	id := obj.ObjectID()
	if o.readers[id] == nil {
		o.readers[id] = map[any]bool{}
	}
	o.readers[id][scope] = true
	if o.readings[scope] == nil {
		o.readings[scope] = map[ObjectID]bool{}
	}
	o.readings[scope][id] = true
}

func (o *Observer) onApply(modified []StateObject, _ snapid.Id) {
	notified := map[any]bool{}
	for _, obj := range modified {
		for scope := range o.readers[obj.ObjectID()] {
			if !notified[scope] {
				notified[scope] = true
				o.onChanged(scope)
			}
		}
	}
}

// Clear forgets all reads recorded for scope.
func (o *Observer) Clear(scope any) {
	for id := range o.readings[scope] {
		delete(o.readers[id], scope)
	}
	delete(o.readings, scope)
}

// Close unregisters the observer from apply notifications.
func (o *Observer) Close() {
	o.unregister()
}
