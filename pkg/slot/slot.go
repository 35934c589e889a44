// Package slot implements the positional store a composition writes into: a
// gap-buffer table of groups, remembered values and emitted nodes.
//
// Matching is positional: a recomposition walks the table with a cursor, and
// a slot that is reached at the same position with the same key is the same
// logical entity as last time. Stable anchors name slots across the physical
// moves the gap buffer performs.
package slot

import (
	"src.weft.dev/pkg/node"
)

// Kind discriminates the slot union.
type Kind uint8

const (
	// KindGap marks a slot that is currently unoccupied. A gap may preserve
	// the identity of a removed group (key, scope, extent) or the data of a
	// removed value slot, so that re-entering the same content restores it.
	KindGap Kind = iota
	// KindGroup marks the start of a group; the group owns the next Len-1
	// slots.
	KindGroup
	// KindValue holds one remembered value.
	KindValue
	// KindNode records one emitted node id.
	KindNode
)

func (k Kind) String() string {
	switch k {
	case KindGap:
		return "gap"
	case KindGroup:
		return "group"
	case KindValue:
		return "value"
	case KindNode:
		return "node"
	}
	return "invalid"
}

// AnchorID is a stable name for a slot, surviving physical reorganization.
type AnchorID int32

// InvalidAnchor is the zero value of a resolved-to-nothing anchor.
const InvalidAnchor AnchorID = -1

// ScopeID identifies the recompose scope owning a group; 0 means none.
type ScopeID int32

// Slot is the tagged union stored in the table. Which fields are meaningful
// depends on Kind.
type Slot struct {
	Kind   Kind
	Anchor AnchorID

	// Group fields. Nodes caches the group's direct top-level node ids so a
	// skipped group can reattach them to its parent.
	Key            uint64
	Len            int
	Scope          ScopeID
	HasGapChildren bool
	Nodes          []node.ID

	// Value data; also set on a gap that preserves a removed value.
	Data any

	// Node id.
	Node node.ID

	// Preserved group identity on a gap.
	HasPreserved   bool
	PreservedKey   uint64
	PreservedScope ScopeID
	PreservedLen   int
}

// Tuning constants. Reuse is best-effort: correctness never depends on a
// search finding its target, only state preservation does.
const (
	// initialCap is the initial table capacity; growth doubles it.
	initialCap = 32
	// gapBlock is how many gaps a single pull-forward moves at most.
	gapBlock = 16
	// searchBudget bounds the forward search for a matching group within the
	// parent's recorded extent.
	searchBudget = 32
	// extendedSearchBudget bounds the search for a preserved gap past the
	// parent's recorded extent, which can go stale after deep recursion.
	extendedSearchBudget = 128
	// shrinkMinDrop and shrinkRatio gate tail-gap reclamation: slack is
	// released only when it is at least shrinkMinDrop slots and at least
	// half the group's new length. This keeps a group that oscillates in
	// size from thrashing the gap buffer.
	shrinkMinDrop = 8
)

type frame struct {
	start int
	// end is one past the group's recorded extent, maintained across slot
	// moves while the frame is open.
	end int
}

// Table is a cursor-driven gap buffer of slots.
type Table struct {
	slots  []Slot
	cursor int
	frames []frame

	// anchors maps AnchorID to slot position; rebuilt lazily after bulk
	// moves.
	anchors      []int
	nextAnchor   AnchorID
	anchorsDirty bool

	// Whether the last BeginGroup restored its group from a preserved gap.
	lastStartWasGap bool
}

// NewTable creates an empty table with the initial gap reservoir.
func NewTable() *Table {
	t := &Table{}
	t.growTo(initialCap)
	return t
}

// growTo extends the tail gap reservoir to the given capacity.
func (t *Table) growTo(n int) {
	for len(t.slots) < n {
		t.slots = append(t.slots, Slot{Kind: KindGap, Anchor: t.allocAnchor(len(t.slots))})
	}
}

func (t *Table) allocAnchor(pos int) AnchorID {
	a := t.nextAnchor
	t.nextAnchor++
	t.anchors = append(t.anchors, pos)
	return a
}

// Reset rewinds the cursor and group stack for a new top-level pass.
func (t *Table) Reset() {
	t.cursor = 0
	t.frames = t.frames[:0]
}

// Cursor returns the current cursor position.
func (t *Table) Cursor() int { return t.cursor }

// InGroup reports whether the cursor is inside at least one group.
func (t *Table) InGroup() bool { return len(t.frames) > 0 }

// Resolve returns the position of the slot named by the anchor, or -1.
func (t *Table) Resolve(a AnchorID) int {
	t.flush()
	if int(a) < 0 || int(a) >= len(t.anchors) {
		return -1
	}
	return t.anchors[a]
}

// SlotAt returns a copy of the slot at the given position.
func (t *Table) SlotAt(pos int) Slot { return t.slots[pos] }

// flush rebuilds the anchor side table after bulk moves.
func (t *Table) flush() {
	if !t.anchorsDirty {
		return
	}
	for i := range t.anchors {
		t.anchors[i] = -1
	}
	for i := range t.slots {
		t.anchors[t.slots[i].Anchor] = i
	}
	t.anchorsDirty = false
}

// BeginResult reports how BeginGroup located its group.
type BeginResult struct {
	// Anchor is the group's stable id.
	Anchor AnchorID
	// Restored is true if the group was rebuilt from a preserved gap; the
	// caller must force-recompose it, since its interior slots are gaps.
	Restored bool
	// Fresh is true if a brand-new group was inserted.
	Fresh bool
}

// BeginGroup positions the cursor at the group with the given key, creating
// or restoring it as needed, and pushes a group frame. The cursor advances
// past the group slot itself.
func (t *Table) BeginGroup(key uint64) BeginResult {
	c := t.cursor
	t.lastStartWasGap = false

	if c < len(t.slots) {
		s := &t.slots[c]
		if s.Kind == KindGroup && s.Key == key {
			return t.enterGroupAt(c, false)
		}
		if s.Kind == KindGap && s.HasPreserved && s.PreservedKey == key {
			t.restoreGroupAt(c)
			return t.enterGroupAt(c, true)
		}
		if p, restored, ok := t.searchGroup(key, c); ok {
			t.moveGroupTo(c, p)
			if restored {
				t.restoreGroupAt(c)
			}
			return t.enterGroupAt(c, restored)
		}
	}
	// No match: insert a fresh single-slot group at the cursor.
	t.ensureGapAt(c)
	s := &t.slots[c]
	*s = Slot{Kind: KindGroup, Anchor: s.Anchor, Key: key, Len: 1}
	res := t.enterGroupAt(c, false)
	res.Fresh = true
	return res
}

// searchGroup scans forward from c for a group with the key (within the
// parent extent, up to searchBudget) or a preserved gap with the key (up to
// extendedSearchBudget, legal even past a stale parent extent). Reports the
// position and whether it is a preserved gap.
func (t *Table) searchGroup(key uint64, c int) (pos int, restored, ok bool) {
	limit := len(t.slots)
	parentEnd := limit
	if n := len(t.frames); n > 0 {
		parentEnd = t.frames[n-1].end
	}
	for i := c + 1; i < limit && i-c <= extendedSearchBudget; i++ {
		s := &t.slots[i]
		if s.Kind == KindGroup && s.Key == key && i < parentEnd && i-c <= searchBudget {
			return i, false, true
		}
		if s.Kind == KindGap && s.HasPreserved && s.PreservedKey == key {
			return i, true, true
		}
	}
	return 0, false, false
}

// groupExtent returns the physical extent of the group or preserved gap at p.
func (t *Table) groupExtent(p int) int {
	s := &t.slots[p]
	if s.Kind == KindGroup {
		return s.Len
	}
	if s.Kind == KindGap && s.HasPreserved {
		return s.PreservedLen
	}
	return 1
}

// moveGroupTo rotates the group at p (with its descendant slots) to the
// cursor position c, shifting the displaced slots forward.
func (t *Table) moveGroupTo(c, p int) {
	n := t.groupExtent(p)
	if p+n > len(t.slots) {
		n = len(t.slots) - p
	}
	rotateRight(t.slots[c:p+n], n)
	t.shiftFrames(c, p, n)
	t.anchorsDirty = true
}

// shiftFrames grows the recorded extent of open frames whose end lies
// between the insertion point and the source of a block of n slots moved
// backward to c.
func (t *Table) shiftFrames(c, src, n int) {
	for i := range t.frames {
		if f := &t.frames[i]; f.end > c && f.end <= src {
			f.end += n
		}
	}
}

// restoreGroupAt rebuilds a group from the preserved gap at c. The interior
// slots stay gaps; the caller force-recomposes the group to refill them.
func (t *Table) restoreGroupAt(c int) {
	s := &t.slots[c]
	ln := s.PreservedLen
	if ln < 1 || c+ln > len(t.slots) {
		ln = 1
	}
	*s = Slot{
		Kind:           KindGroup,
		Anchor:         s.Anchor,
		Key:            s.PreservedKey,
		Scope:          s.PreservedScope,
		Len:            ln,
		HasGapChildren: true,
	}
	t.lastStartWasGap = true
}

func (t *Table) enterGroupAt(c int, restored bool) BeginResult {
	s := &t.slots[c]
	t.frames = append(t.frames, frame{start: c, end: c + s.Len})
	t.cursor = c + 1
	return BeginResult{Anchor: s.Anchor, Restored: restored}
}

// EndGroup pops the current frame and refreshes the group's recorded length.
// Unreached trailing slots stay part of the group as gaps, unless the slack
// passes the shrink policy, in which case they return to the tail reservoir.
func (t *Table) EndGroup() {
	f := t.popFrame()
	g := &t.slots[f.start]
	newLen := t.cursor - f.start
	if t.cursor < f.end {
		slack := f.end - t.cursor
		if slack >= shrinkMinDrop && slack*2 >= newLen {
			t.releaseTail(t.cursor, f.end)
			t.shrinkFrames(t.cursor, slack)
		} else {
			g.HasGapChildren = true
			newLen = f.end - f.start
		}
	}
	g.Len = newLen
	t.cursor = f.start + newLen
}

func (t *Table) popFrame() frame {
	n := len(t.frames)
	f := t.frames[n-1]
	t.frames = t.frames[:n-1]
	return f
}

// releaseTail moves the gap slots in [from, to) to the end of the table,
// clearing any preserved identity they carried.
func (t *Table) releaseTail(from, to int) {
	for i := from; i < to; i++ {
		s := &t.slots[i]
		*s = Slot{Kind: KindGap, Anchor: s.Anchor}
	}
	rotateLeft(t.slots[from:], to-from)
	t.anchorsDirty = true
}

// shrinkFrames shrinks the recorded extent of open frames that contained the
// released range.
func (t *Table) shrinkFrames(pos, n int) {
	for i := range t.frames {
		if f := &t.frames[i]; f.end > pos {
			f.end -= n
		}
	}
}

// GroupAnchor returns the anchor of the innermost open group.
func (t *Table) GroupAnchor() AnchorID {
	return t.slots[t.currentFrame().start].Anchor
}

// GroupScope returns the scope id of the innermost open group.
func (t *Table) GroupScope() ScopeID {
	return t.slots[t.currentFrame().start].Scope
}

// SetGroupScope assigns the scope id of the innermost open group.
func (t *Table) SetGroupScope(scope ScopeID) {
	t.slots[t.currentFrame().start].Scope = scope
}

// GroupNodes returns the cached top-level node ids of the innermost open
// group.
func (t *Table) GroupNodes() []node.ID {
	return t.slots[t.currentFrame().start].Nodes
}

// SetGroupNodes caches the top-level node ids of the innermost open group.
func (t *Table) SetGroupNodes(ids []node.ID) {
	t.slots[t.currentFrame().start].Nodes = ids
}

func (t *Table) currentFrame() *frame {
	if len(t.frames) == 0 {
		panic("slot: not inside a group")
	}
	return &t.frames[len(t.frames)-1]
}

// PeekValue returns the data of the value slot at the cursor, restoring it
// from a value-preserving gap if necessary.
func (t *Table) PeekValue() (any, bool) {
	if t.cursor >= len(t.slots) {
		return nil, false
	}
	s := &t.slots[t.cursor]
	switch {
	case s.Kind == KindValue:
		return s.Data, true
	case s.Kind == KindGap && !s.HasPreserved && s.Data != nil:
		s.Kind = KindValue
		return s.Data, true
	}
	return nil, false
}

// Advance moves the cursor past the current slot.
func (t *Table) Advance() { t.cursor++ }

// WriteValue replaces or inserts a value slot at the cursor and advances.
// Replacing drops the old data, which covers the type-mismatch case.
func (t *Table) WriteValue(v any) {
	c := t.cursor
	if c >= len(t.slots) || !overwritable(t.slots[c].Kind) {
		t.ensureGapAt(c)
	}
	s := &t.slots[c]
	*s = Slot{Kind: KindValue, Anchor: s.Anchor, Data: v}
	t.cursor = c + 1
}

// UpdateValue overwrites the data of the value slot at the cursor without
// moving the cursor. The cursor must have just read the slot.
func (t *Table) UpdateValue(v any) {
	s := &t.slots[t.cursor-1]
	if s.Kind != KindValue {
		panic("slot: UpdateValue on a " + s.Kind.String() + " slot")
	}
	s.Data = v
}

func overwritable(k Kind) bool { return k == KindGap || k == KindValue }

// PeekNode returns the node id recorded at the cursor, if any.
func (t *Table) PeekNode() (node.ID, bool) {
	if t.cursor >= len(t.slots) {
		return node.None, false
	}
	s := &t.slots[t.cursor]
	if s.Kind == KindNode {
		return s.Node, true
	}
	return node.None, false
}

// RecordNode inserts a node slot at the cursor and advances.
func (t *Table) RecordNode(id node.ID) {
	c := t.cursor
	if c >= len(t.slots) || t.slots[c].Kind != KindGap || t.slots[c].HasPreserved || t.slots[c].Data != nil {
		if c >= len(t.slots) || t.slots[c].Kind != KindNode {
			t.ensureGapAt(c)
		}
	}
	s := &t.slots[c]
	*s = Slot{Kind: KindNode, Anchor: s.Anchor, Node: id}
	t.cursor = c + 1
}

// AdvanceAfterNodeRead moves past a node slot the caller decided to reuse.
func (t *Table) AdvanceAfterNodeRead() { t.cursor++ }

// FinalizeCurrentGroup converts the unreached slots of the innermost open
// group to gaps, preserving group identity and value data so a later
// composition can restore them. The group's recorded length is unchanged.
// Returns whether any slot was converted.
func (t *Table) FinalizeCurrentGroup() bool {
	f := t.currentFrame()
	converted := false
	for i := t.cursor; i < f.end && i < len(t.slots); i++ {
		if t.gapify(i) {
			converted = true
		}
	}
	return converted
}

// gapify converts the slot at i to a gap, preserving restorable identity.
func (t *Table) gapify(i int) bool {
	s := &t.slots[i]
	switch s.Kind {
	case KindGap:
		return false
	case KindGroup:
		*s = Slot{
			Kind:           KindGap,
			Anchor:         s.Anchor,
			HasPreserved:   true,
			PreservedKey:   s.Key,
			PreservedScope: s.Scope,
			PreservedLen:   s.Len,
		}
	case KindValue:
		*s = Slot{Kind: KindGap, Anchor: s.Anchor, Data: s.Data}
	default:
		*s = Slot{Kind: KindGap, Anchor: s.Anchor}
	}
	return true
}

// SkipCurrentGroup moves the cursor to the end of the innermost open group
// without visiting its slots.
func (t *Table) SkipCurrentGroup() {
	t.cursor = t.currentFrame().end
}

// RestoredFromGap reports whether the last BeginGroup rebuilt its group from
// a preserved gap.
func (t *Table) RestoredFromGap() bool { return t.lastStartWasGap }

// BeginRecomposeAtScope positions the cursor at the group owned by the given
// scope and pushes a frame for it, as if BeginGroup had matched it. Returns
// the group position, or ok=false if no group carries the scope.
func (t *Table) BeginRecomposeAtScope(scope ScopeID) (int, bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if s.Kind == KindGroup && s.Scope == scope {
			t.frames = append(t.frames, frame{start: i, end: i + s.Len})
			t.cursor = i + 1
			return i, true
		}
	}
	return 0, false
}

// ensureGapAt makes the slot at c a plain gap available for overwriting,
// pulling a block of gaps forward or growing the table as needed. Open
// frames whose extent the gap block crosses are widened.
func (t *Table) ensureGapAt(c int) {
	if c >= len(t.slots) {
		t.growTo(max(len(t.slots)*2, initialCap))
	}
	s := &t.slots[c]
	if s.Kind == KindGap && !s.HasPreserved && s.Data == nil {
		return
	}
	// Find a run of reusable gaps after c.
	g := -1
	for i := c + 1; i < len(t.slots); i++ {
		si := &t.slots[i]
		if si.Kind == KindGap && !si.HasPreserved && si.Data == nil {
			g = i
			break
		}
	}
	if g < 0 {
		g = len(t.slots)
		t.growTo(max(len(t.slots)*2, initialCap))
	}
	take := 1
	for take < gapBlock && g+take < len(t.slots) {
		si := &t.slots[g+take]
		if si.Kind != KindGap || si.HasPreserved || si.Data != nil {
			break
		}
		take++
	}
	rotateRight(t.slots[c:g+take], take)
	t.shiftFrames(c, g, take)
	t.anchorsDirty = true
}

// Len returns the number of physical slots.
func (t *Table) Len() int { return len(t.slots) }

func rotateRight(s []Slot, k int) {
	if k <= 0 || k >= len(s) {
		return
	}
	reverse(s)
	reverse(s[:k])
	reverse(s[k:])
}

func rotateLeft(s []Slot, k int) {
	if k <= 0 || k >= len(s) {
		return
	}
	reverse(s[:k])
	reverse(s[k:])
	reverse(s)
}

func reverse(s []Slot) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
