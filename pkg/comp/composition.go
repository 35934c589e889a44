package comp

import (
	"sort"

	"src.weft.dev/pkg/node"
	"src.weft.dev/pkg/sched"
	"src.weft.dev/pkg/slot"
)

const rootGroupKey uint64 = 0x726f6f74 // "root"

// Composition hosts one root content function: it owns the composer and
// slot table, runs the initial composition, and turns state invalidations
// into targeted recompositions. Render is the only entry point; no two
// render calls may be in flight at once.
type Composition struct {
	rt      *sched.Runtime
	applier node.Applier
	root    node.ID

	c        *Composer
	composed bool
	disposed bool
}

// NewComposition creates a composition emitting under the given root node.
func NewComposition(rt *sched.Runtime, applier node.Applier, root node.ID) *Composition {
	return &Composition{
		rt:      rt,
		applier: applier,
		root:    root,
		c:       NewComposer(rt, applier, slot.NewTable()),
	}
}

// Composer returns the composition's composer, for measure-phase
// subcomposition.
func (cp *Composition) Composer() *Composer { return cp.c }

// Render composes content initially, or recomposes the scopes invalidated
// since the last render, then applies the resulting commands and runs side
// effects. It returns the applied command journal.
func (cp *Composition) Render(content func(*Composer)) ([]Command, error) {
	cp.rt.AssertUIThread()
	if cp.disposed {
		panic("comp: Render on a disposed composition")
	}
	// Deliver coalesced apply-observer notifications first.
	cp.rt.DrainUI()

	cp.c.err = nil
	prev := cp.c.SetPhase(PhaseCompose)
	if !cp.composed {
		cp.c.table.Reset()
		cp.c.WithGroup(rootGroupKey, func(c *Composer) {
			c.PushParent(cp.root)
			content(c)
			c.PopParent()
		})
		cp.composed = true
	} else {
		cp.processInvalidScopes()
	}
	cp.c.SetPhase(prev)

	if err := cp.c.err; err != nil {
		return nil, err
	}
	return cp.flush()
}

// processInvalidScopes drains the runtime's invalid-scope set and re-enters
// each scope in slot-table order, repeating until recomposition reaches a
// fixed point.
func (cp *Composition) processInvalidScopes() {
	for cp.rt.HasInvalidScopes() {
		raw := cp.rt.TakeInvalidScopes()
		scopes := make([]*RecomposeScope, 0, len(raw))
		for _, s := range raw {
			scopes = append(scopes, s.(*RecomposeScope))
		}
		sort.SliceStable(scopes, func(i, j int) bool {
			return cp.c.table.Resolve(scopes[i].anchor) < cp.c.table.Resolve(scopes[j].anchor)
		})
		for _, sc := range scopes {
			cp.c.recomposeScope(sc)
		}
	}
}

// flush applies the journaled commands, drains pending node updates, and
// then runs side effects, in that order.
func (cp *Composition) flush() ([]Command, error) {
	cmds := cp.c.TakeCommands()
	if err := ApplyCommands(cp.applier, cmds); err != nil {
		return cmds, err
	}
	for _, u := range cp.rt.TakeUpdates() {
		u()
	}
	for _, eff := range cp.c.TakeSideEffects() {
		eff()
	}
	return cmds, nil
}

// HasInvalidScopes reports whether a render would recompose anything,
// after delivering pending invalidation notifications.
func (cp *Composition) HasInvalidScopes() bool {
	cp.rt.DrainUI()
	return cp.rt.HasInvalidScopes()
}

// Dispose cancels owned effects, deactivates every scope, and releases the
// composition's observer. Idempotent.
func (cp *Composition) Dispose() {
	if cp.disposed {
		return
	}
	cp.disposed = true
	cp.c.disposeEffects()
	for _, sc := range cp.c.scopes {
		sc.Deactivate()
	}
	cp.c.observer.Close()
}
