package comp

import "src.weft.dev/pkg/snapshot"

// MutableStateOf remembers snapshot state with an explicit mutation policy,
// created on first composition and registered with the runtime's state
// arena.
func MutableStateOf[T any](c *Composer, initial T, policy snapshot.MutationPolicy[T]) *snapshot.MutableState[T] {
	return Remember(c, func() *snapshot.MutableState[T] {
		st := snapshot.NewState(initial, policy)
		c.rt.AllocState(st)
		return st
	})
}

// UseState is MutableStateOf with structural equality.
func UseState[T any](c *Composer, initial T) *snapshot.MutableState[T] {
	return MutableStateOf(c, initial, snapshot.Structural[T]())
}

// Derived is a value computed from other snapshot state. Reading it inside a
// group attributes the dependency reads to that group's scope, so the reader
// recomposes when any dependency changes.
type Derived[T any] struct {
	compute func() T
}

// Value computes the derived value against the current snapshot.
func (d *Derived[T]) Value() T { return d.compute() }

// DerivedStateOf remembers a derived computation. The computation runs on
// every read rather than being cached, which keeps dependency attribution
// exact for each reader.
func DerivedStateOf[T any](c *Composer, compute func() T) *Derived[T] {
	return Remember(c, func() *Derived[T] { return &Derived[T]{compute: compute} })
}
