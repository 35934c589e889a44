package comp

import (
	"src.weft.dev/pkg/node"
	"src.weft.dev/pkg/slot"
)

// SubcomposeState owns the slot table of one subcomposition host, so content
// composed during measurement keeps its identity across measure passes
// independently of the main table's cursor.
type SubcomposeState struct {
	table    *slot.Table
	children map[uint64][]node.ID
	host     node.ID
}

// NewSubcomposeState creates an empty subcomposition host state.
func NewSubcomposeState() *SubcomposeState {
	return &SubcomposeState{
		table:    slot.NewTable(),
		children: make(map[uint64][]node.ID),
	}
}

// Children returns the node ids most recently composed for a slot id.
func (st *SubcomposeState) Children(slotID uint64) []node.ID {
	return st.children[slotID]
}

// BindHost records the node that measures through this state. Invalidated
// scopes composed here mark it for layout instead of recomposing directly.
func (st *SubcomposeState) BindHost(id node.ID) { st.host = id }

// invalidateHost journals a layout invalidation for the bound host, so the
// next measure pass re-runs the subcomposition that read the changed state.
func (st *SubcomposeState) invalidateHost(c *Composer) {
	if st.host == node.None {
		return
	}
	c.debug.Printf("subcompose host %d needs measure", st.host)
	c.commands = append(c.commands, &BubbleLayoutDirty{ID: st.host})
}

// Subcompose composes content for the given slot id into the state's own
// slot table and returns the node ids it emitted. Legal only during the
// measure and layout phases; calling it while composing or idle is a
// programming error and panics.
func (c *Composer) Subcompose(st *SubcomposeState, slotID uint64, content func(*Composer)) []node.ID {
	c.rt.AssertUIThread()
	if c.phase != PhaseMeasure && c.phase != PhaseLayout {
		panic("comp: Subcompose outside the measure or layout phase (phase " + c.phase.String() + ")")
	}
	saved := c.table
	savedOwner := c.subOwner
	c.table = st.table
	c.subOwner = st
	c.table.Reset()
	c.subFrames = append(c.subFrames, subFrame{})
	c.WithGroup(slotID, content)
	f := c.subFrames[len(c.subFrames)-1]
	c.subFrames = c.subFrames[:len(c.subFrames)-1]
	c.table = saved
	c.subOwner = savedOwner

	ids := append([]node.ID(nil), f.nodes...)
	st.children[slotID] = ids
	return ids
}

// SubcomposeIn composes f into a caller-owned slot table under an explicit
// root node, sharing the applier and runtime, and flushes the resulting
// commands, pending node updates, and side effects before returning.
func (c *Composer) SubcomposeIn(slots *slot.Table, root node.ID, f func(*Composer)) error {
	c.rt.AssertUIThread()
	child := NewComposer(c.rt, c.applier, slots)
	child.phase = PhaseCompose
	slots.Reset()
	child.WithGroup(rootGroupKey, func(cc *Composer) {
		cc.PushParent(root)
		f(cc)
		cc.PopParent()
	})
	if child.err != nil {
		return child.err
	}
	if err := ApplyCommands(c.applier, child.TakeCommands()); err != nil {
		return err
	}
	for _, u := range c.rt.TakeUpdates() {
		u()
	}
	for _, eff := range child.TakeSideEffects() {
		eff()
	}
	return nil
}
