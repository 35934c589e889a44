// Package snapshot implements multi-version concurrency control for
// observable state.
//
// State objects keep a chain of versioned records. A snapshot is a view of
// all state at a particular version: reads inside it are isolated from later
// writes, and writes inside a mutable snapshot are invisible to the outside
// until the snapshot is applied. Applying is atomic; conflicting applies fail
// (or merge, if the state's mutation policy supports it) without committing.
//
// All of this package must run on the UI goroutine. The code is fully
// serial and therefore unsynchronized; background work communicates by
// posting closures to the UI task queue and taking its own snapshot there.
package snapshot

import (
	"fmt"

	"src.weft.dev/pkg/logutil"
	"src.weft.dev/pkg/snapid"
)

var logger = logutil.GetLogger("[snapshot] ")

// ObjectID is the stable identity of a state object.
type ObjectID int64

// StateObject is the type-erased capability set of a state object. It is
// implemented by MutableState; its unexported methods keep the record
// protocol private to this package.
type StateObject interface {
	// ObjectID returns the object's stable identity.
	ObjectID() ObjectID

	// mergeRecords attempts to reconcile the value the snapshot wrote with a
	// conflicting write that was applied after the snapshot started. It does
	// not commit anything; the merged value, if any, is passed back to
	// promoteRecord.
	mergeRecords(s *Snapshot) (merged any, ok bool)
	// promoteRecord splices a new head record carrying the snapshot's value
	// for this object (or the merged value), stamped with newID.
	promoteRecord(s *Snapshot, newID snapid.Id, merged any, useMerged bool)
	// tombstoneRecords marks all records with the given id as dead. Used when
	// a mutable snapshot is disposed without applying.
	tombstoneRecords(id snapid.Id)
	// overwriteUnusedRecords releases records no live snapshot can read.
	// Returns whether more than one record remains.
	overwriteUnusedRecords() bool
}

// ApplyResult is the result of Snapshot.Apply.
type ApplyResult int

const (
	// Success means all modified states were committed atomically.
	Success ApplyResult = iota
	// Failure means a write conflict could not be merged; nothing was
	// committed. The caller may re-read and retry.
	Failure
)

func (r ApplyResult) String() string {
	if r == Success {
		return "success"
	}
	return "failure"
}

// Snapshot is a view of all state, isolated by id. A snapshot created by
// TakeMutableSnapshot additionally accepts writes, which become visible to
// its parent view only when Apply succeeds.
type Snapshot struct {
	id      snapid.Id
	invalid snapid.Set

	readObserver  func(StateObject)
	writeObserver func(StateObject)

	// Objects written in this snapshot, in first-write order. base holds the
	// value each object had just before its first write, which becomes the
	// "previous" argument of a merge.
	modified []StateObject
	modSet   map[ObjectID]bool
	base     map[ObjectID]any

	// lastWriter tracks, per object, the sequence number of the last write
	// applied into this snapshot's view; children compare it against seqAtTake
	// to detect conflicts.
	lastWriter map[ObjectID]uint64
	applySeq   uint64
	seqAtTake  uint64

	pin      pinHandle
	parent   *Snapshot
	children int

	readonly    bool
	global      bool
	transparent bool
	applied     bool
	disposed    bool

	// Identifies the creator of a transparent wrapper, for reuse by nested
	// observer calls.
	owner any
}

// The process-wide snapshot world. Serial access on the UI goroutine only.
var world struct {
	nextID  snapid.Id
	open    snapid.Set
	pins    pinningTable
	current *Snapshot
	global  *Snapshot

	applyObservers []*applyObserver
	nextObjectID   ObjectID
}

type applyObserver struct {
	f func(modified []StateObject, id snapid.Id)
}

func init() { initWorld() }

func initWorld() {
	world.nextID = snapid.Preexisting + 1
	world.open = snapid.Empty
	world.pins = pinningTable{}
	world.applyObservers = nil
	world.nextObjectID = 1

	g := &Snapshot{
		id:         allocID(),
		global:     true,
		modSet:     map[ObjectID]bool{},
		base:       map[ObjectID]any{},
		lastWriter: map[ObjectID]uint64{},
	}
	world.open = world.open.Set(g.id)
	g.pin = world.pins.pin(g.id)
	world.global = g
	world.current = g
}

// Reset discards all snapshot state, including registered apply observers.
// It is only for tests.
func Reset() { initWorld() }

func allocID() snapid.Id {
	id := world.nextID
	world.nextID++
	return id
}

func allocObjectID() ObjectID {
	id := world.nextObjectID
	world.nextObjectID++
	return id
}

// Current returns the snapshot that reads and writes currently resolve
// against. At the top level this is the global snapshot.
func Current() *Snapshot { return world.current }

// Global returns the global snapshot.
func Global() *Snapshot { return world.global }

// TakeMutableSnapshot takes a mutable snapshot of the current view. Reads
// inside it are isolated from later outside writes; its own writes stay
// private until Apply. Either Apply or Dispose must be called exactly once.
// The observers may be nil.
func TakeMutableSnapshot(readObserver, writeObserver func(StateObject)) *Snapshot {
	parent := writableTarget(world.current)
	if parent == nil {
		panic("snapshot: cannot take a mutable snapshot from a readonly snapshot")
	}
	if parent.global {
		advanceGlobal()
	}
	s := &Snapshot{
		id:            allocID(),
		readObserver:  readObserver,
		writeObserver: writeObserver,
		modSet:        map[ObjectID]bool{},
		base:          map[ObjectID]any{},
		lastWriter:    map[ObjectID]uint64{},
		parent:        parent,
		seqAtTake:     parent.applySeq,
	}
	world.open = world.open.Set(s.id)
	s.invalid = computeInvalid(s)
	s.pin = world.pins.pin(s.invalid.Lowest(s.id))
	parent.children++
	return s
}

// TakeSnapshot takes a readonly snapshot of the current view. The observer
// may be nil. The snapshot must be disposed.
func TakeSnapshot(readObserver func(StateObject)) *Snapshot {
	parent := world.current
	if parent.global {
		advanceGlobal()
	}
	s := &Snapshot{
		id:           allocID(),
		readObserver: readObserver,
		parent:       nonTransparent(parent),
		readonly:     true,
	}
	world.open = world.open.Set(s.id)
	s.invalid = computeInvalid(s)
	s.pin = world.pins.pin(s.invalid.Lowest(s.id))
	return s
}

// computeInvalid computes the set of ids invisible to s: everything invisible
// to the parent plus all open snapshots, except s itself and its mutable
// ancestors (whose in-progress records s must see).
func computeInvalid(s *Snapshot) snapid.Set {
	inv := s.parent.invalid.Union(world.open).Clear(s.id)
	for a := s.parent; a != nil && !a.global; a = a.parent {
		inv = inv.Clear(a.id)
	}
	return inv
}

// Enter runs f with s as the current snapshot.
func (s *Snapshot) Enter(f func()) {
	if s.disposed {
		panic("snapshot: entering a disposed snapshot")
	}
	prev := world.current
	world.current = s
	defer func() { world.current = prev }()
	f()
}

// ID returns the snapshot's id.
func (s *Snapshot) ID() snapid.Id { return s.id }

// Modified returns the objects written in this snapshot so far, in
// first-write order.
func (s *Snapshot) Modified() []StateObject { return s.modified }

// Apply atomically publishes the snapshot's writes to the parent view. On
// Failure nothing is committed and the snapshot stays usable for Dispose.
// After Success the snapshot is disposed.
func (s *Snapshot) Apply() ApplyResult {
	switch {
	case s.disposed:
		panic("snapshot: applying a disposed snapshot")
	case s.applied:
		panic("snapshot: applying a snapshot twice")
	case s.readonly || s.transparent:
		panic("snapshot: applying a non-mutable snapshot")
	case s.children > 0:
		panic("snapshot: applying a snapshot with open children")
	}

	parent := s.parent

	// Phase 1: detect conflicts and compute merged values, committing
	// nothing. A write conflicts if the parent view saw another write to the
	// same object after this snapshot was taken.
	type promotion struct {
		obj       StateObject
		merged    any
		useMerged bool
	}
	promotions := make([]promotion, len(s.modified))
	for i, obj := range s.modified {
		promotions[i] = promotion{obj: obj}
		if parent.lastWriter[obj.ObjectID()] > s.seqAtTake {
			merged, ok := obj.mergeRecords(s)
			if !ok {
				logger.Printf("apply %d: unmergeable conflict on object %d", s.id, obj.ObjectID())
				return Failure
			}
			promotions[i].merged = merged
			promotions[i].useMerged = true
		}
	}

	// Phase 2: promote every modified record into the parent view.
	if parent.global {
		newID := allocID()
		for _, p := range promotions {
			p.obj.promoteRecord(s, newID, p.merged, p.useMerged)
			parent.applySeq++
			parent.lastWriter[p.obj.ObjectID()] = parent.applySeq
			p.obj.overwriteUnusedRecords()
		}
		world.open = world.open.Clear(s.id)
		// Advance the global snapshot past newID so the global view sees the
		// applied records, and notify apply observers.
		advanceGlobal()
		if len(s.modified) > 0 {
			notifyApplyObservers(s.modified, newID)
		}
	} else {
		for _, p := range promotions {
			p.obj.promoteRecord(s, parent.id, p.merged, p.useMerged)
			parent.applySeq++
			parent.lastWriter[p.obj.ObjectID()] = parent.applySeq
			obj := p.obj
			if !parent.modSet[obj.ObjectID()] {
				parent.modSet[obj.ObjectID()] = true
				parent.modified = append(parent.modified, obj)
				if b, ok := s.base[obj.ObjectID()]; ok {
					parent.base[obj.ObjectID()] = b
				}
			}
		}
		world.open = world.open.Clear(s.id)
	}

	s.applied = true
	s.dispose()
	return Success
}

// Dispose releases the snapshot without applying. Writes made in it are
// discarded. Dispose is idempotent.
func (s *Snapshot) Dispose() {
	if s.disposed {
		return
	}
	if s.transparent {
		s.disposed = true
		return
	}
	if !s.applied && !s.readonly {
		// Abandoned writes must never become visible.
		for _, obj := range s.modified {
			obj.tombstoneRecords(s.id)
		}
		world.open = world.open.Clear(s.id)
	}
	if s.readonly {
		world.open = world.open.Clear(s.id)
	}
	s.dispose()
}

func (s *Snapshot) dispose() {
	s.disposed = true
	world.pins.release(&s.pin)
	if s.parent != nil && !s.transparent && !s.readonly {
		s.parent.children--
	}
	s.modified = nil
	s.modSet = nil
}

// advanceGlobal publishes any writes made directly in the global snapshot and
// moves the global snapshot to a fresh id, making previously applied records
// visible to it.
func advanceGlobal() {
	g := world.global
	published := g.id
	modified := g.modified

	world.open = world.open.Clear(g.id)
	for _, obj := range modified {
		g.applySeq++
		g.lastWriter[obj.ObjectID()] = g.applySeq
		obj.overwriteUnusedRecords()
	}
	g.modified = nil
	g.modSet = map[ObjectID]bool{}
	g.base = map[ObjectID]any{}

	g.id = allocID()
	world.open = world.open.Set(g.id)
	g.invalid = world.open.Clear(g.id)
	world.pins.release(&g.pin)
	g.pin = world.pins.pin(g.id)

	if len(modified) > 0 {
		notifyApplyObservers(modified, published)
	}
}

// AdvanceGlobal publishes pending global-snapshot writes. The scheduler calls
// this between frames; most callers never need it because taking a snapshot
// advances implicitly.
func AdvanceGlobal() { advanceGlobal() }

// RegisterApplyObserver registers f to be called after every successful apply
// (and after global-snapshot writes are published) with the modified objects
// and the id their new records carry. The returned function unregisters.
func RegisterApplyObserver(f func(modified []StateObject, id snapid.Id)) func() {
	obs := &applyObserver{f}
	world.applyObservers = append(world.applyObservers, obs)
	return func() {
		for i, o := range world.applyObservers {
			if o == obs {
				world.applyObservers = append(world.applyObservers[:i], world.applyObservers[i+1:]...)
				return
			}
		}
	}
}

func notifyApplyObservers(modified []StateObject, id snapid.Id) {
	// Observers may unregister themselves during notification; iterate over a
	// copy.
	observers := append([]*applyObserver(nil), world.applyObservers...)
	for _, obs := range observers {
		obs.f(modified, id)
	}
}

// reuseLimit returns the id below which no live snapshot can read, i.e. the
// threshold for record reuse.
func reuseLimit() snapid.Id {
	return world.pins.lowest(world.nextID)
}

// writableTarget resolves transparent wrappers to the snapshot that actually
// receives writes. Returns nil if that snapshot is readonly.
func writableTarget(s *Snapshot) *Snapshot {
	for s.transparent {
		s = s.parent
	}
	if s.readonly {
		return nil
	}
	return s
}

func nonTransparent(s *Snapshot) *Snapshot {
	for s.transparent {
		s = s.parent
	}
	return s
}

// notifyRead runs the read observers of s and of any transparent snapshots it
// wraps.
func (s *Snapshot) notifyRead(obj StateObject) {
	for ; s != nil; s = s.parent {
		if s.readObserver != nil {
			s.readObserver(obj)
		}
		if !s.transparent {
			return
		}
	}
}

func (s *Snapshot) notifyWrite(obj StateObject) {
	for ; s != nil; s = s.parent {
		if s.writeObserver != nil {
			s.writeObserver(obj)
		}
		if !s.transparent {
			return
		}
	}
}

// recordModified adds obj to the writable target's modified set, stashing the
// pre-write value for merges, and fires write observers on the first write.
func recordModified(current, target *Snapshot, obj StateObject, base any) {
	if !target.modSet[obj.ObjectID()] {
		target.modSet[obj.ObjectID()] = true
		target.modified = append(target.modified, obj)
		target.base[obj.ObjectID()] = base
		current.notifyWrite(obj)
	}
}

func (s *Snapshot) String() string {
	kind := "mutable"
	switch {
	case s.global:
		kind = "global"
	case s.readonly:
		kind = "readonly"
	case s.transparent:
		kind = "transparent"
	}
	return fmt.Sprintf("snapshot(%d, %s)", s.id, kind)
}
