package modifier

import (
	"testing"
)

// testNode counts lifecycle calls and records the last value pushed into it.
type testNode struct {
	NodeState
	attaches, detaches, updates int
	value                       int
}

func (n *testNode) OnAttach() { n.attaches++ }
func (n *testNode) OnDetach() { n.detaches++ }

// sizeElement is a plain structural element.
type sizeElement struct {
	W, H int
}

func (e sizeElement) Create() Node             { return &testNode{} }
func (e sizeElement) Update(n Node)            { t := n.(*testNode); t.updates++; t.value = e.W }
func (e sizeElement) Capabilities() Capability { return Layout }

// keyedElement matches by explicit key.
type keyedElement struct {
	Key   string
	Value int
}

func (e keyedElement) Create() Node             { return &testNode{} }
func (e keyedElement) Update(n Node)            { t := n.(*testNode); t.updates++; t.value = e.Value }
func (e keyedElement) Capabilities() Capability { return Draw }
func (e keyedElement) ModifierKey() any         { return e.Key }

// forcedElement always re-runs Update.
type forcedElement struct{}

func (forcedElement) Create() Node               { return &testNode{} }
func (forcedElement) Update(n Node)              { n.(*testNode).updates++ }
func (forcedElement) Capabilities() Capability   { return Semantics }
func (forcedElement) RequiresForcedUpdate() bool { return true }

func chainNodes(ch *Chain) []*testNode {
	var ns []*testNode
	ch.ForEachForward(func(n Node) bool {
		ns = append(ns, n.(*testNode))
		return true
	})
	return ns
}

func TestUpdateFromSlice_CreatesAndAttachesOnce(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{sizeElement{10, 10}, keyedElement{"a", 1}})

	ns := chainNodes(ch)
	if len(ns) != 2 {
		t.Fatalf("chain length = %d, want 2", len(ns))
	}
	for i, n := range ns {
		if n.attaches != 1 || n.updates != 1 {
			t.Errorf("node %d: attaches=%d updates=%d, want 1, 1", i, n.attaches, n.updates)
		}
		if !n.State().Attached() {
			t.Errorf("node %d not attached", i)
		}
	}
}

func TestUpdateFromSlice_ReusesEqualElementWithoutUpdate(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{sizeElement{10, 10}})
	n := chainNodes(ch)[0]

	ch.UpdateFromSlice([]Element{sizeElement{10, 10}})
	if got := chainNodes(ch)[0]; got != n {
		t.Fatalf("equal element created a new node")
	}
	if n.updates != 1 {
		t.Errorf("updates = %d, want 1 (unchanged element skips Update)", n.updates)
	}

	ch.UpdateFromSlice([]Element{sizeElement{20, 10}})
	if got := chainNodes(ch)[0]; got != n {
		t.Fatalf("changed element of same type created a new node")
	}
	if n.updates != 2 || n.value != 20 {
		t.Errorf("updates=%d value=%d, want 2, 20", n.updates, n.value)
	}
}

func TestUpdateFromSlice_KeyedMatchBeatsPosition(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{keyedElement{"a", 1}, keyedElement{"b", 2}})
	ns := chainNodes(ch)
	a, b := ns[0], ns[1]

	// Swap order; identity follows the key.
	ch.UpdateFromSlice([]Element{keyedElement{"b", 2}, keyedElement{"a", 1}})
	ns = chainNodes(ch)
	if ns[0] != b || ns[1] != a {
		t.Errorf("keyed nodes did not follow their keys across reorder")
	}
	if a.attaches != 1 || b.attaches != 1 {
		t.Errorf("reorder re-attached: a=%d b=%d, want 1, 1", a.attaches, b.attaches)
	}
}

func TestUpdateFromSlice_DetachesRemoved(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{sizeElement{1, 1}, keyedElement{"a", 1}})
	ns := chainNodes(ch)
	removed := ns[1]

	ch.UpdateFromSlice([]Element{sizeElement{1, 1}})
	if removed.detaches != 1 || removed.State().Attached() {
		t.Errorf("removed node: detaches=%d attached=%v, want 1, false",
			removed.detaches, removed.State().Attached())
	}
	if got := ch.Len(); got != 1 {
		t.Errorf("chain length = %d, want 1", got)
	}
}

func TestUpdateFromSlice_ForcedUpdateAlwaysRuns(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{forcedElement{}})
	n := chainNodes(ch)[0]
	ch.UpdateFromSlice([]Element{forcedElement{}})
	if n.updates != 2 {
		t.Errorf("updates = %d, want 2 (forced update on equal element)", n.updates)
	}
}

func TestUpdateFromSlice_AutoInvalidations(t *testing.T) {
	var got Capability
	ch := NewChain(func(c Capability) { got |= c })

	ch.UpdateFromSlice([]Element{sizeElement{1, 1}, keyedElement{"a", 1}})
	if !got.Has(Layout | Draw) {
		t.Errorf("invalidations after create = %v, want layout|draw", got)
	}

	// An unchanged pass invalidates nothing.
	got = 0
	ch.UpdateFromSlice([]Element{sizeElement{1, 1}, keyedElement{"a", 1}})
	if got != 0 {
		t.Errorf("invalidations after no-op pass = %v, want none", got)
	}

	// Removal invalidates the removed node's capabilities.
	got = 0
	ch.UpdateFromSlice([]Element{sizeElement{1, 1}})
	if !got.Has(Draw) {
		t.Errorf("invalidations after removal = %v, want draw", got)
	}
}

func TestLinksAndAggregates(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{sizeElement{1, 1}, keyedElement{"a", 1}, forcedElement{}})

	ns := chainNodes(ch)
	if ch.Head() != Node(ns[0]) || ch.Tail() != Node(ns[2]) {
		t.Errorf("head/tail wrong")
	}
	if ns[0].State().Parent() != nil || ns[2].State().Child() != nil {
		t.Errorf("sentinel-adjacent links not nil")
	}
	if ns[1].State().Parent() != Node(ns[0]) || ns[1].State().Child() != Node(ns[2]) {
		t.Errorf("middle node links wrong")
	}

	// Aggregates accumulate toward the head.
	if got := ns[2].State().Aggregate(); got != Semantics {
		t.Errorf("tail aggregate = %v, want semantics", got)
	}
	if got := ns[1].State().Aggregate(); got != Draw|Semantics {
		t.Errorf("middle aggregate = %v, want draw|semantics", got)
	}
	if got := ch.Aggregate(); got != Layout|Draw|Semantics {
		t.Errorf("chain aggregate = %v, want layout|draw|semantics", got)
	}
}

func TestForEachMatching_SkipsByAggregate(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{keyedElement{"a", 1}, sizeElement{1, 1}})

	var visited []Capability
	ch.ForEachMatching(Layout, func(n Node) bool {
		visited = append(visited, n.State().Capabilities())
		return true
	})
	if len(visited) != 1 || visited[0] != Layout {
		t.Errorf("visited = %v, want exactly the layout node", visited)
	}

	// No node matches focus; nothing is visited.
	visited = nil
	ch.ForEachMatching(Focus, func(n Node) bool {
		visited = append(visited, n.State().Capabilities())
		return true
	})
	if len(visited) != 0 {
		t.Errorf("visited = %v, want none", visited)
	}
}

func TestDetach_EmptiesChain(t *testing.T) {
	ch := NewChain(nil)
	ch.UpdateFromSlice([]Element{sizeElement{1, 1}, keyedElement{"a", 1}})
	ns := chainNodes(ch)

	ch.Detach()
	if ch.Len() != 0 {
		t.Errorf("length after Detach = %d, want 0", ch.Len())
	}
	for i, n := range ns {
		if n.detaches != 1 || n.State().Attached() {
			t.Errorf("node %d: detaches=%d attached=%v", i, n.detaches, n.State().Attached())
		}
	}
}
