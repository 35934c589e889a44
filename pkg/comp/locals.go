package comp

import (
	"reflect"

	"src.weft.dev/pkg/snapshot"
)

// Composition locals are values provided by an ancestor group and read by
// any descendant without threading them through parameters. A Local is
// backed by snapshot state: readers subscribe, and a value change recomposes
// only the groups that read it. A StaticLocal is a plain value: cheaper to
// read, but a change force-recomposes the whole providing subtree.

type localFrame struct {
	values map[any]localEntry
}

type localEntry struct {
	get           func() any
	staticChanged bool
}

// ProvidedValue binds one local to a value for the duration of a WithLocals
// body.
type ProvidedValue struct {
	key         any
	materialize func(c *Composer) localEntry
}

// WithLocals runs f with the provided values pushed onto the composition-
// local stack. If a provided StaticLocal value changed since the previous
// pass, every group entered inside f recomposes.
func (c *Composer) WithLocals(f func(*Composer), provided ...ProvidedValue) {
	c.WithGroup(localsGroupKey, func(c *Composer) {
		frame := localFrame{values: make(map[any]localEntry, len(provided))}
		staticChanged := false
		for _, p := range provided {
			e := p.materialize(c)
			frame.values[p.key] = e
			if e.staticChanged {
				staticChanged = true
			}
		}
		c.locals = append(c.locals, frame)
		if staticChanged {
			c.forceChildren++
		}
		f(c)
		if staticChanged {
			c.forceChildren--
		}
		c.locals = c.locals[:len(c.locals)-1]
	})
}

const localsGroupKey uint64 = 0x6c6f63616c73 // "locals"

// Local is a composition local whose readers subscribe to value changes.
// The zero value is not usable; create with NewLocal.
type Local[T any] struct {
	def func() T
}

// NewLocal creates a local with a default for reads outside any provider.
func NewLocal[T any](def T) *Local[T] {
	return &Local[T]{def: func() T { return def }}
}

// Provides binds the local to v. The value is held in remembered snapshot
// state owned by the providing group, so re-providing an equivalent value is
// a no-op and readers of a changed value are invalidated individually.
func (l *Local[T]) Provides(v T) ProvidedValue {
	return ProvidedValue{key: l, materialize: func(c *Composer) localEntry {
		st := Remember(c, func() *snapshot.MutableState[T] {
			return snapshot.NewState(v, snapshot.Structural[T]())
		})
		st.Set(v)
		return localEntry{get: func() any { return st.Get() }}
	}}
}

// ProvidesState binds the local to caller-owned state. Writes to the state
// recompose readers without recomposing the provider.
func (l *Local[T]) ProvidesState(st *snapshot.MutableState[T]) ProvidedValue {
	return ProvidedValue{key: l, materialize: func(*Composer) localEntry {
		return localEntry{get: func() any { return st.Get() }}
	}}
}

// Current returns the innermost provided value, subscribing the reading
// scope, or the default when no provider is in scope.
func (l *Local[T]) Current(c *Composer) T {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if e, ok := c.locals[i].values[l]; ok {
			return e.get().(T)
		}
	}
	return l.def()
}

// staticCell remembers the previously provided value of a StaticLocal.
type staticCell struct {
	value any
	set   bool
}

// StaticLocal is a composition local read without subscription. Create with
// NewStaticLocal.
type StaticLocal[T any] struct {
	def func() T
}

// NewStaticLocal creates a static local with a default.
func NewStaticLocal[T any](def T) *StaticLocal[T] {
	return &StaticLocal[T]{def: func() T { return def }}
}

// Provides binds the static local to v. A change relative to the previous
// pass forces the providing subtree to recompose, since readers do not
// subscribe.
func (l *StaticLocal[T]) Provides(v T) ProvidedValue {
	return ProvidedValue{key: l, materialize: func(c *Composer) localEntry {
		cell := Remember(c, func() *staticCell { return &staticCell{} })
		changed := cell.set && !reflect.DeepEqual(cell.value, v)
		cell.value, cell.set = v, true
		return localEntry{get: func() any { return v }, staticChanged: changed}
	}}
}

// Current returns the innermost provided value without subscribing.
func (l *StaticLocal[T]) Current(c *Composer) T {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if e, ok := c.locals[i].values[l]; ok {
			return e.get().(T)
		}
	}
	return l.def()
}
