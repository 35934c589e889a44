// Package comptest provides facilities for testing compositions: an
// in-memory host node type with lifecycle counters, and a fixture wiring a
// runtime, applier, root node and composition together.
package comptest

import (
	"fmt"
	"testing"

	"src.weft.dev/pkg/comp"
	"src.weft.dev/pkg/layout"
	"src.weft.dev/pkg/node"
	"src.weft.dev/pkg/sched"
	"src.weft.dev/pkg/snapshot"
)

// Node is a host node recording its lifecycle for assertions. It carries a
// Kind for identification and a Text payload for content assertions.
type Node struct {
	ID   node.ID
	Kind string
	Text string

	parent   node.ID
	children []node.ID

	needsLayout    bool
	needsSemantics bool

	Mounts   int
	Unmounts int
	Updates  int
}

// NewNode creates a host node of the given kind.
func NewNode(kind string) *Node { return &Node{Kind: kind} }

// SetID implements layout.IDSetter.
func (n *Node) SetID(id node.ID) { n.ID = id }

func (n *Node) Mount()   { n.Mounts++ }
func (n *Node) Update()  { n.Updates++ }
func (n *Node) Unmount() { n.Unmounts++ }

func (n *Node) OnAttachedToParent(parent node.ID) { n.parent = parent }
func (n *Node) OnRemovedFromParent()              { n.parent = node.None }
func (n *Node) Parent() node.ID                   { return n.parent }

func (n *Node) InsertChild(child node.ID) { n.children = append(n.children, child) }

func (n *Node) RemoveChild(child node.ID) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

func (n *Node) MoveChild(from, to int) {
	c := n.children[from]
	n.children = append(n.children[:from], n.children[from+1:]...)
	n.children = append(n.children, node.None)
	copy(n.children[to+1:], n.children[to:])
	n.children[to] = c
}

func (n *Node) UpdateChildren(children []node.ID) {
	n.children = append(n.children[:0], children...)
}

func (n *Node) Children() []node.ID { return n.children }

func (n *Node) MarkNeedsLayout()     { n.needsLayout = true }
func (n *Node) NeedsLayout() bool    { return n.needsLayout }
func (n *Node) ClearNeedsLayout()    { n.needsLayout = false }
func (n *Node) MarkNeedsSemantics()  { n.needsSemantics = true }
func (n *Node) NeedsSemantics() bool { return n.needsSemantics }

// Describe implements layout.Describer for Sprint dumps.
func (n *Node) Describe() string {
	if n.Text != "" {
		return fmt.Sprintf("%s %q", n.Kind, n.Text)
	}
	return n.Kind
}

// Fixture bundles everything a composition test needs. Create with Setup.
type Fixture struct {
	Rt      *sched.Runtime
	Applier *layout.TreeApplier
	Root    *Node
	RootID  node.ID
	Comp    *comp.Composition
}

// Setup resets the snapshot world and builds a fresh fixture. The
// composition is disposed and the snapshot world reset again on cleanup, so
// tests stay independent.
func Setup(t *testing.T) *Fixture {
	t.Helper()
	snapshot.Reset()
	rt := sched.NewRuntime()
	a := layout.NewTreeApplier()
	root := NewNode("root")
	rootID := a.Create(root)
	f := &Fixture{
		Rt:      rt,
		Applier: a,
		Root:    root,
		RootID:  rootID,
		Comp:    comp.NewComposition(rt, a, rootID),
	}
	t.Cleanup(func() {
		f.Comp.Dispose()
		snapshot.Reset()
	})
	return f
}

// Render renders the composition, failing the test on error, and returns
// the applied command journal.
func (f *Fixture) Render(t *testing.T, content func(*comp.Composer)) []comp.Command {
	t.Helper()
	cmds, err := f.Comp.Render(content)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return cmds
}

// Node fetches a host node by id, failing the test if it is missing or not
// a comptest node.
func (f *Fixture) Node(t *testing.T, id node.ID) *Node {
	t.Helper()
	n, err := f.Applier.Get(id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	tn, ok := n.(*Node)
	if !ok {
		t.Fatalf("node %d is %T, not a comptest node", id, n)
	}
	return tn
}

// RootChildren returns the root's current child list.
func (f *Fixture) RootChildren() []node.ID { return f.Root.Children() }

// Emit composes a host node of the given kind with keyed identity.
func Emit(c *comp.Composer, key any, kind, text string) node.ID {
	var id node.ID
	c.WithKey(key, func(c *comp.Composer) {
		id = comp.EmitNode(c, func() *Node { return NewNode(kind) }, func(n *Node) {
			n.Text = text
		})
	})
	return id
}

// CountCommands tallies the journal by command type name.
func CountCommands(cmds []comp.Command) map[string]int {
	counts := make(map[string]int)
	for _, cmd := range cmds {
		counts[fmt.Sprintf("%T", cmd)]++
	}
	return counts
}
