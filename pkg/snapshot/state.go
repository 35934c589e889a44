package snapshot

import (
	"fmt"
	"reflect"

	"src.weft.dev/pkg/snapid"
)

// A record is one versioned value in a state object's history. Records form a
// singly linked chain from the newest prepend to the creation-time record.
type record[T any] struct {
	id        snapid.Id
	tombstone bool
	value     T
	next      *record[T]
}

// MutationPolicy decides whether a write actually changed a value, and
// optionally how to reconcile concurrent writes.
type MutationPolicy[T any] interface {
	// Equivalent reports whether a and b are interchangeable; writing an
	// equivalent value is a no-op.
	Equivalent(a, b T) bool
	// Merge reconciles a conflicting write: previous is the value the
	// applying snapshot started from, current the value another apply
	// committed meanwhile, applied the value the snapshot wrote. Returning
	// ok=false makes the apply fail.
	Merge(previous, current, applied T) (merged T, ok bool)
}

type structuralPolicy[T any] struct{}

func (structuralPolicy[T]) Equivalent(a, b T) bool { return reflect.DeepEqual(a, b) }
func (structuralPolicy[T]) Merge(_, _, _ T) (T, bool) {
	var zero T
	return zero, false
}

// Structural returns a policy that treats deeply equal values as equivalent.
func Structural[T any]() MutationPolicy[T] { return structuralPolicy[T]{} }

type referentialPolicy[T comparable] struct{}

func (referentialPolicy[T]) Equivalent(a, b T) bool { return a == b }
func (referentialPolicy[T]) Merge(_, _, _ T) (T, bool) {
	var zero T
	return zero, false
}

// Referential returns a policy that treats values as equivalent only when
// they compare equal with ==.
func Referential[T comparable]() MutationPolicy[T] { return referentialPolicy[T]{} }

type neverEqualPolicy[T any] struct{}

func (neverEqualPolicy[T]) Equivalent(a, b T) bool { return false }
func (neverEqualPolicy[T]) Merge(_, _, _ T) (T, bool) {
	var zero T
	return zero, false
}

// NeverEqual returns a policy under which every write counts as a change.
func NeverEqual[T any]() MutationPolicy[T] { return neverEqualPolicy[T]{} }

type funcPolicy[T any] struct {
	equivalent func(a, b T) bool
	merge      func(previous, current, applied T) (T, bool)
}

func (p funcPolicy[T]) Equivalent(a, b T) bool { return p.equivalent(a, b) }
func (p funcPolicy[T]) Merge(previous, current, applied T) (T, bool) {
	if p.merge == nil {
		var zero T
		return zero, false
	}
	return p.merge(previous, current, applied)
}

// NewPolicy builds a policy from functions. The merge function may be nil, in
// which case conflicts are never merged.
func NewPolicy[T any](equivalent func(a, b T) bool, merge func(previous, current, applied T) (T, bool)) MutationPolicy[T] {
	return funcPolicy[T]{equivalent, merge}
}

// MutableState is an observable cell whose history is kept as a record chain,
// so that every snapshot reads the value that was current when the snapshot
// was taken.
type MutableState[T any] struct {
	objectID ObjectID
	policy   MutationPolicy[T]
	head     *record[T]

	// Support for Update: while an update closure runs, outside readers see
	// the pre-update value, and an explicit Set inside the closure overrides
	// the closure's working copy.
	updatePrev []T
	updateSet  bool
}

// NewState creates a state holding v. If created while a not-yet-applied
// mutable snapshot is current, the state is only readable inside that
// snapshot until it applies.
func NewState[T any](v T, policy MutationPolicy[T]) *MutableState[T] {
	st := &MutableState[T]{objectID: allocObjectID(), policy: policy}
	target := nonTransparent(world.current)
	if target.global || target.readonly {
		st.head = &record[T]{id: snapid.Preexisting, value: v}
	} else {
		st.head = &record[T]{id: target.id, value: v}
		recordModified(world.current, target, st, v)
	}
	return st
}

// ObjectID returns the state's stable identity.
func (st *MutableState[T]) ObjectID() ObjectID { return st.objectID }

// readableRecord returns the record with the highest id readable from the
// view (id, invalid), or nil.
func readableRecord[T any](head *record[T], id snapid.Id, invalid snapid.Set) *record[T] {
	var best *record[T]
	for r := head; r != nil; r = r.next {
		if r.tombstone || r.id == snapid.Invalid || r.id > id {
			continue
		}
		if r.id != id && invalid.Has(r.id) {
			continue
		}
		if best == nil || r.id > best.id {
			best = r
		}
	}
	return best
}

// Get returns the value visible in the current snapshot. Reading notifies the
// snapshot's read observers.
func (st *MutableState[T]) Get() T {
	if n := len(st.updatePrev); n > 0 {
		// An update closure is running; outside readers see the previous
		// value.
		return st.updatePrev[n-1]
	}
	s := world.current
	s.notifyRead(st)
	v := nonTransparent(s)
	r := readableRecord(st.head, v.id, v.invalid)
	if r == nil {
		// The global snapshot may have advanced since the view was resolved;
		// retry once against the now-current view.
		v = nonTransparent(world.current)
		r = readableRecord(st.head, v.id, v.invalid)
	}
	if r == nil {
		panic(fmt.Sprintf(
			"snapshot: state %d has no readable record in snapshot %d; "+
				"it was created in a not-yet-applied snapshot", st.objectID, v.id))
	}
	return r.value
}

// Set writes a value into the current snapshot. Writing an equivalent value
// is a no-op. Panics if the current snapshot is readonly.
func (st *MutableState[T]) Set(v T) {
	if len(st.updatePrev) > 0 {
		st.updateSet = true
	}
	cur := world.current
	target := writableTarget(cur)
	if target == nil {
		panic("snapshot: write from a readonly snapshot")
	}
	r := readableRecord(st.head, target.id, target.invalid)
	if r == nil {
		panic(fmt.Sprintf("snapshot: state %d not readable in snapshot %d", st.objectID, target.id))
	}
	if st.policy.Equivalent(r.value, v) {
		return
	}
	recordModified(cur, target, st, r.value)
	w := st.writableRecord(target, r)
	w.value = v
	w.id = target.id
	if target.global {
		// Writes in the global snapshot are published immediately.
		advanceGlobal()
	}
}

// Update runs f on a working copy of the current value and writes the result.
// While f runs, Get returns the pre-update value; if f itself calls Set, the
// explicitly set value wins over the working copy.
func (st *MutableState[T]) Update(f func(v *T)) {
	prev := st.Get()
	work := prev
	st.updatePrev = append(st.updatePrev, prev)
	outerSet := st.updateSet
	st.updateSet = false
	func() {
		defer func() {
			st.updatePrev = st.updatePrev[:len(st.updatePrev)-1]
		}()
		f(&work)
	}()
	explicit := st.updateSet
	st.updateSet = outerSet
	if !explicit {
		st.Set(work)
	}
}

// writableRecord returns a record that the target snapshot may mutate: the
// readable record itself if the snapshot already owns it, otherwise a fresh
// or reused record stamped with the target's id.
func (st *MutableState[T]) writableRecord(target *Snapshot, readable *record[T]) *record[T] {
	if readable.id == target.id {
		return readable
	}
	w := st.newOverwritableRecord()
	w.value = readable.value
	return w
}

// newOverwritableRecord reuses a record no live snapshot can read, or
// prepends a fresh one. The returned record is stamped snapid.Max so nothing
// can observe it until the caller assigns its real id.
func (st *MutableState[T]) newOverwritableRecord() *record[T] {
	limit := reuseLimit() - 1
	// Of the records at or below the reuse limit, the youngest must stay
	// readable; any older one is dead and reusable.
	var youngest, reuse *record[T]
	for r := st.head; r != nil; r = r.next {
		if r.tombstone || r.id == snapid.Invalid {
			reuse = r
			continue
		}
		if r.id == snapid.Preexisting || r.id > limit {
			continue
		}
		if youngest == nil {
			youngest = r
		} else if r.id > youngest.id {
			reuse = youngest
			youngest = r
		} else {
			reuse = r
		}
	}
	if reuse != nil {
		reuse.id = snapid.Max
		reuse.tombstone = false
		return reuse
	}
	r := &record[T]{id: snapid.Max, next: st.head}
	st.head = r
	return r
}

// mergeRecords implements StateObject.
func (st *MutableState[T]) mergeRecords(s *Snapshot) (any, bool) {
	previous, ok := s.base[st.objectID].(T)
	if !ok {
		var zero T
		previous = zero
	}
	p := nonTransparent(s.parent)
	currentRec := readableRecord(st.head, p.id, p.invalid)
	appliedRec := readableRecord(st.head, s.id, s.invalid)
	if currentRec == nil || appliedRec == nil {
		return nil, false
	}
	// If one side turned out to be a no-op relative to the base value, the
	// other side wins without consulting the policy.
	if st.policy.Equivalent(currentRec.value, previous) {
		return appliedRec.value, true
	}
	if st.policy.Equivalent(appliedRec.value, previous) {
		return currentRec.value, true
	}
	merged, ok := st.policy.Merge(previous, currentRec.value, appliedRec.value)
	if !ok {
		return nil, false
	}
	return merged, true
}

// promoteRecord implements StateObject.
func (st *MutableState[T]) promoteRecord(s *Snapshot, newID snapid.Id, merged any, useMerged bool) {
	var v T
	if useMerged {
		v = merged.(T)
	} else {
		r := readableRecord(st.head, s.id, s.invalid)
		if r == nil {
			panic(fmt.Sprintf("snapshot: promoting state %d with no readable record", st.objectID))
		}
		v = r.value
	}
	if newID > s.id {
		// Applying into the global view: the fresh id shadows the snapshot's
		// own records for every future reader.
		st.head = &record[T]{id: newID, value: v, next: st.head}
		return
	}
	// Applying into a parent snapshot, whose id is older than the child's.
	// Restamp the child's record so it cannot leak to readers outside the
	// parent once the child's id leaves the open set, and retire the parent's
	// superseded record.
	var child *record[T]
	for r := st.head; r != nil; r = r.next {
		if r.id == s.id && !r.tombstone {
			child = r
			break
		}
	}
	for r := st.head; r != nil; r = r.next {
		if r != child && r.id == newID {
			r.tombstone = true
		}
	}
	if child == nil {
		st.head = &record[T]{id: newID, value: v, next: st.head}
		return
	}
	child.id = newID
	child.value = v
}

// tombstoneRecords implements StateObject.
func (st *MutableState[T]) tombstoneRecords(id snapid.Id) {
	for r := st.head; r != nil; r = r.next {
		if r.id == id {
			r.tombstone = true
		}
	}
}

// overwriteUnusedRecords implements StateObject. It keeps the youngest record
// at or below the reuse limit (restamped as the preexisting baseline), marks
// the other unreadable ones invalid, and copies the kept value into them so
// an accidental read still yields a live value.
func (st *MutableState[T]) overwriteUnusedRecords() bool {
	limit := reuseLimit() - 1
	var youngest *record[T]
	for r := st.head; r != nil; r = r.next {
		if r.tombstone || r.id == snapid.Invalid || r.id > limit {
			continue
		}
		if youngest == nil || r.id > youngest.id {
			youngest = r
		}
	}
	count := 0
	for r := st.head; r != nil; r = r.next {
		count++
		if r == youngest || r.tombstone || r.id == snapid.Invalid || r.id > limit {
			continue
		}
		r.id = snapid.Invalid
		if youngest != nil {
			r.value = youngest.value
		}
	}
	if youngest != nil && youngest.id <= limit {
		youngest.id = snapid.Preexisting
	}
	return count > 1
}
