// Package comp implements the composer: the cursor-driven writer that turns
// composable functions into slot-table content and a journal of node-tree
// commands, and the recomposition machinery that re-runs only invalidated
// scopes when observed state changes.
package comp

import (
	"fmt"
	"hash/fnv"
	"log"

	"src.weft.dev/pkg/logutil"
	"src.weft.dev/pkg/node"
	"src.weft.dev/pkg/sched"
	"src.weft.dev/pkg/slot"
	"src.weft.dev/pkg/snapshot"
)

var logger = logutil.GetLogger("[comp] ")

// Phase tracks which part of a frame the composer is serving. Subcomposition
// is legal only during measure and layout.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCompose
	PhaseMeasure
	PhaseLayout
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCompose:
		return "compose"
	case PhaseMeasure:
		return "measure"
	case PhaseLayout:
		return "layout"
	}
	return "invalid"
}

// childrenRecord is the remembered child list of a parent frame, stored in a
// value slot so it survives across passes.
type childrenRecord struct {
	ids []node.ID
}

type parentFrame struct {
	id       node.ID
	rec      *childrenRecord
	previous []node.ID
	prevSet  map[node.ID]bool
	children []node.ID
}

type subFrame struct {
	nodes []node.ID
}

// ReuseOptions force the next group entry to either reuse its subtree
// without recomposing or to recompose unconditionally.
type ReuseOptions struct {
	ForceReuse     bool
	ForceRecompose bool
}

// Composer drives the slot-table protocol. All methods must run on the UI
// goroutine of the runtime it was created with.
type Composer struct {
	rt      *sched.Runtime
	applier node.Applier
	table   *slot.Table

	observer *snapshot.Observer

	scopes      map[slot.ScopeID]*RecomposeScope
	nextScopeID slot.ScopeID

	commands    []Command
	sideEffects []func()

	parents   []parentFrame
	subFrames []subFrame
	locals    []localFrame
	// forceChildren > 0 forces recomposition of every group entered, used
	// when a static composition local changes under a provider.
	forceChildren int

	phase       Phase
	pendingOpts ReuseOptions
	hasPending  bool
	// subOwner is the subcompose state being composed into, set for the span
	// of a Subcompose call so the scopes it derives can route invalidations
	// back to the owning node.
	subOwner *SubcomposeState

	disposables []*disposableState
	launched    []*launchedState

	err error

	debug *log.Logger
}

// NewComposer creates a composer writing into the given slot table and
// emitting nodes through the given applier.
func NewComposer(rt *sched.Runtime, applier node.Applier, table *slot.Table) *Composer {
	c := &Composer{
		rt:      rt,
		applier: applier,
		table:   table,
		scopes:  make(map[slot.ScopeID]*RecomposeScope),
		debug:   logger,
	}
	c.observer = snapshot.NewObserver(func(scope any) {
		sc := scope.(*RecomposeScope)
		rt.EnqueueUITask(sc.Invalidate)
	})
	return c
}

// Runtime returns the runtime the composer schedules against.
func (c *Composer) Runtime() *sched.Runtime { return c.rt }

// Applier returns the applier the composer emits nodes through.
func (c *Composer) Applier() node.Applier { return c.applier }

// Phase returns the current phase.
func (c *Composer) Phase() Phase { return c.phase }

// SetPhase switches the phase, returning the previous one.
func (c *Composer) SetPhase(p Phase) Phase {
	prev := c.phase
	c.phase = p
	return prev
}

// Err returns the first applier error encountered during the current pass.
func (c *Composer) Err() error { return c.err }

func (c *Composer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *Composer) newScope() *RecomposeScope {
	c.nextScopeID++
	sc := &RecomposeScope{rt: c.rt, id: c.nextScopeID, active: true}
	c.scopes[sc.id] = sc
	return sc
}

// WithGroup enters the group identified by key, derives or reuses its
// recompose scope, and runs f as the group body under read observation.
func (c *Composer) WithGroup(key uint64, f func(*Composer)) {
	c.rt.AssertUIThread()
	res := c.table.BeginGroup(key)

	var sc *RecomposeScope
	if sid := c.table.GroupScope(); sid != 0 {
		sc = c.scopes[sid]
	}
	if sc == nil {
		sc = c.newScope()
		c.table.SetGroupScope(sc.id)
	}
	sc.fn = f
	sc.anchor = res.Anchor
	sc.locals = append(sc.locals[:0], c.locals...)
	if c.subOwner != nil {
		sc.owner = c.subOwner
	}
	if len(c.subFrames) == 0 {
		if n := len(c.parents); n > 0 {
			if pf := &c.parents[n-1]; pf.rec != nil {
				sc.parentNode = pf.id
				sc.parentRec = pf.rec
				sc.nodeIndex = len(pf.children)
			}
		}
	}

	opts := c.pendingOpts
	hadOpts := c.hasPending
	c.pendingOpts, c.hasPending = ReuseOptions{}, false

	force := res.Restored || sc.forceRecompose || c.forceChildren > 0
	if hadOpts && opts.ForceRecompose {
		force = true
	}
	if res.Restored {
		c.debug.Printf("group %#x restored from gap, forcing recompose", key)
	}
	if hadOpts && opts.ForceReuse && !force {
		// Reuse the subtree as-is: reattach its nodes, skip its slots.
		for _, id := range c.table.GroupNodes() {
			c.attachNode(id)
		}
		c.table.SkipCurrentGroup()
		c.table.EndGroup()
		sc.markRecomposed(false)
		return
	}

	c.runGroupBody(sc, f)
}

// runGroupBody executes f inside the already-entered current group and
// closes the group.
func (c *Composer) runGroupBody(sc *RecomposeScope, f func(*Composer)) {
	parentDepth := len(c.parents)
	subDepth := len(c.subFrames)
	attachStart := c.attachCount()
	localsDepth := len(c.locals)

	sc.composing = true
	c.observer.ObserveReads(sc, func() { f(c) })
	sc.composing = false
	c.locals = c.locals[:localsDepth]

	// Cache the group's direct nodes so a later skip can reattach them.
	if (parentDepth > 0 || subDepth > 0) &&
		len(c.parents) == parentDepth && len(c.subFrames) == subDepth {
		added := c.attachedSince(attachStart)
		c.table.SetGroupNodes(append([]node.ID(nil), added...))
	}

	trimmed := c.table.FinalizeCurrentGroup()
	if trimmed {
		sc.forceRecompose = true
	}
	c.table.EndGroup()
	sc.markRecomposed(trimmed)
}

// WithKey is WithGroup with an arbitrary comparable key, hashed.
func (c *Composer) WithKey(key any, f func(*Composer)) {
	c.WithGroup(HashKey(key), f)
}

// HashKey hashes an arbitrary key value into a group key.
func HashKey(key any) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%T\x00%v", key, key)
	return h.Sum64()
}

// ComposeWithReuse applies reuse options to the group entered for key.
func (c *Composer) ComposeWithReuse(key uint64, opts ReuseOptions, f func(*Composer)) {
	c.pendingOpts = opts
	c.hasPending = true
	c.WithGroup(key, f)
}

// Remember returns the value remembered in the current value slot, calling
// init only on first composition or after a type change.
func Remember[T any](c *Composer, init func() T) T {
	c.rt.AssertUIThread()
	if raw, ok := c.table.PeekValue(); ok {
		if v, ok := raw.(T); ok {
			c.table.Advance()
			return v
		}
	}
	v := init()
	c.table.WriteValue(v)
	return v
}

// EmitNode reads or creates the node for the current node slot. A recorded
// node is reused when it has the right concrete type and belonged to the
// current parent on the previous pass; reuse enqueues an update command. A
// wrong-typed node is unmounted and removed, and a fresh one takes its slot.
func EmitNode[N node.Node](c *Composer, create func() N, update func(N)) node.ID {
	c.rt.AssertUIThread()
	if id, ok := c.table.PeekNode(); ok {
		n, err := c.applier.Get(id)
		if err != nil {
			c.fail(err)
			return node.None
		}
		if _, ok := n.(N); ok && c.canReuse(id) {
			c.table.AdvanceAfterNodeRead()
			u := update
			c.commands = append(c.commands, &UpdateNode{ID: id, do: func(n node.Node) { u(n.(N)) }})
			c.attachNode(id)
			return id
		}
		c.debug.Printf("node %d not reusable, replacing", id)
		if n := len(c.parents); n > 0 && c.parents[n-1].prevSet[id] {
			p := c.parents[n-1].id
			c.commands = append(c.commands,
				&RemoveChild{Parent: p, Child: id},
				&BubbleLayoutDirty{ID: p},
				&RemoveFromParent{Child: id},
			)
		}
		c.commands = append(c.commands, &UnmountNode{ID: id}, &RemoveNode{ID: id})
		c.forgetPrevChild(id)
	}
	n := create()
	id := c.applier.Create(n)
	update(n)
	c.table.RecordNode(id)
	c.attachNode(id)
	return id
}

// canReuse reports whether a recorded node id may be reused at the cursor:
// inside a subcompose frame, with no parent frame at all, or when the id was
// a child of the current parent on the previous pass.
func (c *Composer) canReuse(id node.ID) bool {
	if len(c.subFrames) > 0 {
		return true
	}
	if len(c.parents) == 0 {
		return true
	}
	return c.parents[len(c.parents)-1].prevSet[id]
}

func (c *Composer) forgetPrevChild(id node.ID) {
	if len(c.parents) == 0 {
		return
	}
	f := &c.parents[len(c.parents)-1]
	if !f.prevSet[id] {
		return
	}
	delete(f.prevSet, id)
	for i, p := range f.previous {
		if p == id {
			f.previous = append(f.previous[:i], f.previous[i+1:]...)
			break
		}
	}
}

func (c *Composer) attachNode(id node.ID) {
	if n := len(c.subFrames); n > 0 {
		f := &c.subFrames[n-1]
		f.nodes = append(f.nodes, id)
		return
	}
	if n := len(c.parents); n > 0 {
		f := &c.parents[n-1]
		f.children = append(f.children, id)
	}
}

func (c *Composer) attachCount() int {
	if n := len(c.subFrames); n > 0 {
		return len(c.subFrames[n-1].nodes)
	}
	if n := len(c.parents); n > 0 {
		return len(c.parents[n-1].children)
	}
	return 0
}

func (c *Composer) attachedSince(start int) []node.ID {
	if n := len(c.subFrames); n > 0 {
		return c.subFrames[n-1].nodes[start:]
	}
	if n := len(c.parents); n > 0 {
		return c.parents[n-1].children[start:]
	}
	return nil
}

// PushParent makes id the parent for nodes emitted until the matching
// PopParent. The previous child list is remembered in a value slot so the
// pop can diff against it.
func (c *Composer) PushParent(id node.ID) {
	rec := Remember(c, func() *childrenRecord { return &childrenRecord{} })
	prev := append([]node.ID(nil), rec.ids...)
	prevSet := make(map[node.ID]bool, len(prev))
	for _, p := range prev {
		prevSet[p] = true
	}
	c.parents = append(c.parents, parentFrame{id: id, rec: rec, previous: prev, prevSet: prevSet})
}

// PopParent closes the current parent frame. If the child list changed, it
// emits the minimal remove/move/insert command sequence transforming the
// previous list into the new one.
func (c *Composer) PopParent() {
	n := len(c.parents)
	f := c.parents[n-1]
	c.parents = c.parents[:n-1]
	if nodeIDsEqual(f.previous, f.children) {
		f.rec.ids = append(f.rec.ids[:0], f.children...)
		return
	}
	c.diffChildren(&f)
	f.rec.ids = append([]node.ID(nil), f.children...)
}

func nodeIDsEqual(a, b []node.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Composer) diffChildren(f *parentFrame) {
	cur := append([]node.ID(nil), f.previous...)
	target := make(map[node.ID]bool, len(f.children))
	for _, id := range f.children {
		target[id] = true
	}

	// Remove children absent from the target list.
	for _, id := range f.previous {
		if target[id] {
			continue
		}
		c.commands = append(c.commands,
			&RemoveChild{Parent: f.id, Child: id},
			&BubbleLayoutDirty{ID: f.id},
			&RemoveFromParent{Child: id},
			&UnmountNode{ID: id},
			&RemoveNode{ID: id},
		)
		cur = removeID(cur, id)
	}

	// Position each target child, inserting the new ones.
	for ti, id := range f.children {
		ci := indexOf(cur, id)
		if ci < 0 {
			c.commands = append(c.commands,
				&InsertChild{Parent: f.id, Child: id},
				&AttachToParent{Child: id, Parent: f.id},
				&BubbleLayoutDirty{ID: f.id},
				&MountNode{ID: id},
			)
			cur = append(cur, id)
			ci = len(cur) - 1
		}
		if ci != ti {
			c.commands = append(c.commands,
				&MoveChild{Parent: f.id, From: ci, To: ti},
				&BubbleLayoutDirty{ID: f.id},
			)
			cur = moveID(cur, ci, ti)
		}
	}
}

func indexOf(ids []node.ID, id node.ID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeID(ids []node.ID, id node.ID) []node.ID {
	i := indexOf(ids, id)
	if i < 0 {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}

func moveID(ids []node.ID, from, to int) []node.ID {
	id := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids, 0)
	copy(ids[to+1:], ids[to:])
	ids[to] = id
	return ids
}

// SkipCurrentGroup reattaches the current group's recorded nodes to the
// active parent and moves the cursor past the group's slots.
func (c *Composer) SkipCurrentGroup() {
	for _, id := range c.table.GroupNodes() {
		c.attachNode(id)
	}
	c.table.SkipCurrentGroup()
}

// TakeCommands drains the command journal.
func (c *Composer) TakeCommands() []Command {
	cmds := c.commands
	c.commands = nil
	return cmds
}

// TakeSideEffects drains the side-effect queue.
func (c *Composer) TakeSideEffects() []func() {
	effs := c.sideEffects
	c.sideEffects = nil
	return effs
}

// recomposeScope re-enters an invalidated scope through its group, restoring
// the composition-local stack captured at its last entry. The scope's
// recorded nodes are reconciled against the parent's remembered child list,
// so structure changed by the lone re-run journals the same commands a full
// parent pass would have.
func (c *Composer) recomposeScope(sc *RecomposeScope) {
	if !sc.active || !sc.invalid {
		sc.enqueued = false
		return
	}
	if _, ok := c.table.BeginRecomposeAtScope(sc.id); !ok {
		sc.invalid = false
		sc.enqueued = false
		c.rt.MarkScopeRecomposed(sc)
		if sc.owner != nil {
			// The group lives in a subcompose table; its content re-runs
			// when the owning node measures again.
			sc.owner.invalidateHost(c)
			return
		}
		// The group is currently a gap; the content it guards is gone until
		// the parent recomposes it back in.
		return
	}

	orig := append([]node.ID(nil), c.table.GroupNodes()...)
	prevSet := make(map[node.ID]bool, len(orig))
	for _, id := range orig {
		prevSet[id] = true
	}
	c.parents = append(c.parents, parentFrame{
		id:       sc.parentNode,
		rec:      sc.parentRec,
		previous: append([]node.ID(nil), orig...),
		prevSet:  prevSet,
	})

	savedLocals := c.locals
	c.locals = append([]localFrame(nil), sc.locals...)
	c.runGroupBody(sc, sc.fn)
	c.locals = savedLocals

	f := c.parents[len(c.parents)-1]
	c.parents = c.parents[:len(c.parents)-1]
	c.reconcileScopeNodes(sc, orig, f.previous, f.children)
}

// reconcileScopeNodes splices the node ids a re-run scope produced into the
// parent's remembered child list in place of the ids the scope's group held
// before, and journals the resulting child-list surgery.
func (c *Composer) reconcileScopeNodes(sc *RecomposeScope, orig, prev, cur []node.ID) {
	if sc.parentRec == nil || sc.parentNode == node.None {
		return
	}
	full := append([]node.ID(nil), sc.parentRec.ids...)
	// Ids replaced inline during the re-run were already detached and
	// removed by EmitNode.
	for _, id := range orig {
		if indexOf(prev, id) < 0 {
			full = removeID(full, id)
		}
	}
	if nodeIDsEqual(prev, cur) {
		sc.parentRec.ids = full
		return
	}
	start := -1
	if len(prev) > 0 {
		start = indexOf(full, prev[0])
	}
	if start < 0 {
		start = sc.nodeIndex
		if start > len(full) {
			start = len(full)
		}
	}
	end := start + len(prev)
	if end > len(full) {
		end = len(full)
	}
	target := make([]node.ID, 0, len(full)-(end-start)+len(cur))
	target = append(target, full[:start]...)
	target = append(target, cur...)
	target = append(target, full[end:]...)
	f := parentFrame{id: sc.parentNode, previous: full, children: target}
	c.diffChildren(&f)
	sc.parentRec.ids = target
}
