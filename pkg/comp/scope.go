package comp

import (
	"src.weft.dev/pkg/node"
	"src.weft.dev/pkg/sched"
	"src.weft.dev/pkg/slot"
)

// RecomposeScope is the unit of recomposition. Each group derives one; a
// state read observed inside the group subscribes the scope, and a later
// write to that state invalidates it. Invalid scopes are re-entered through
// their slot-table group without re-running anything above them.
type RecomposeScope struct {
	rt     *sched.Runtime
	id     slot.ScopeID
	anchor slot.AnchorID

	// fn is the group body, kept so the scope can be re-entered on its own.
	fn func(*Composer)
	// locals is the composition-local stack captured at the last entry.
	locals []localFrame

	// parentNode, parentRec and nodeIndex record the parent frame the group
	// was composed under, so a lone recomposition of this scope can reconcile
	// its nodes against the parent's remembered child list.
	parentNode node.ID
	parentRec  *childrenRecord
	nodeIndex  int
	// owner is set for scopes composed into a subcompose table; their groups
	// are unreachable from the main table, and invalidation routes to the
	// owning layout node instead.
	owner *SubcomposeState

	active    bool
	invalid   bool
	enqueued  bool
	composing bool
	// pendingRecompose records an invalidation that arrived while the scope
	// was composing; it re-fires after the pass completes.
	pendingRecompose bool

	forceRecompose bool
}

// Invalidate marks the scope for recomposition and enqueues it with the
// runtime, once, until it is recomposed. Invalidation of an inactive scope
// is buffered until Reactivate.
func (s *RecomposeScope) Invalidate() {
	if s.composing {
		s.pendingRecompose = true
		return
	}
	s.invalid = true
	if !s.active || s.enqueued {
		return
	}
	s.enqueued = true
	s.rt.RegisterInvalidScope(s)
}

// Active reports whether the scope responds to invalidations.
func (s *RecomposeScope) Active() bool { return s.active }

// Invalid reports whether the scope is marked for recomposition.
func (s *RecomposeScope) Invalid() bool { return s.invalid }

// Deactivate detaches the scope from the invalid set; later invalidations
// are buffered until Reactivate.
func (s *RecomposeScope) Deactivate() {
	if !s.active {
		return
	}
	s.active = false
	s.enqueued = false
	s.rt.MarkScopeRecomposed(s)
}

// Reactivate re-enables the scope, flushing a buffered invalidation.
func (s *RecomposeScope) Reactivate() {
	if s.active {
		return
	}
	s.active = true
	if s.invalid {
		s.invalid = false
		s.Invalidate()
	}
}

// markRecomposed runs at the end of a successful recomposition: the invalid
// and forced flags clear, and a buffered re-entrant invalidation fires.
func (s *RecomposeScope) markRecomposed(trimmed bool) {
	s.invalid = false
	s.enqueued = false
	if !trimmed {
		s.forceRecompose = false
	}
	s.rt.MarkScopeRecomposed(s)
	if s.pendingRecompose {
		s.pendingRecompose = false
		s.Invalidate()
	}
}
