// Package modifier implements the per-node chain of behaviors attached to a
// layout node: type-erased elements describing what a node should do, and
// stateful modifier nodes instantiated from them. The chain reconciles a new
// element list against the existing nodes each pass, reusing node state where
// elements match.
package modifier

import "reflect"

// Capability is a bitset declaring which protocols a modifier node
// participates in.
type Capability uint8

const (
	Layout Capability = 1 << iota
	Draw
	PointerInput
	Semantics
	ModifierLocals
	Focus
)

// autoInvalidate is the set of capabilities that request an invalidation
// when a node carrying them is created or updated.
const autoInvalidate = Layout | Draw | PointerInput | Semantics | Focus

// Has reports whether all bits of q are set in c.
func (c Capability) Has(q Capability) bool { return c&q == q }

// Any reports whether any bit of q is set in c.
func (c Capability) Any(q Capability) bool { return c&q != 0 }

func (c Capability) String() string {
	names := []struct {
		bit  Capability
		name string
	}{
		{Layout, "layout"}, {Draw, "draw"}, {PointerInput, "pointer"},
		{Semantics, "semantics"}, {ModifierLocals, "locals"}, {Focus, "focus"},
	}
	s := ""
	for _, n := range names {
		if c&n.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Element is a type-erased modifier description. Elements are compared by
// concrete type first; the optional Keyer, Hasher, Equaler and ForcedUpdater
// interfaces refine matching and update behavior.
type Element interface {
	// Create instantiates the stateful node for this element.
	Create() Node
	// Update pushes this element's parameters into an existing node.
	Update(Node)
	// Capabilities declares the protocols the created node participates in.
	Capabilities() Capability
}

// Keyer gives an element an explicit identity key; keyed matching takes
// priority over structural matching.
type Keyer interface {
	ModifierKey() any
}

// Hasher lets an element provide a cheap pre-filter for structural matching.
type Hasher interface {
	ModifierHash() uint64
}

// Equaler overrides the default deep-equality comparison between an element
// and the element a node was last updated from.
type Equaler interface {
	EqualElement(Element) bool
}

// ForcedUpdater marks elements whose Update must run even when the element
// compares equal to the previous one.
type ForcedUpdater interface {
	RequiresForcedUpdate() bool
}

// Node is a stateful modifier instantiated from an Element. Implementations
// embed NodeState.
type Node interface {
	State() *NodeState
	OnAttach()
	OnDetach()
}

// NodeState carries the chain bookkeeping for one node: the attached flag,
// the links toward head (parent) and tail (child), and the node's own and
// aggregated capability masks. Embed it and return it from State.
type NodeState struct {
	attached  bool
	caps      Capability
	aggregate Capability
	parent    Node
	child     Node
}

func (s *NodeState) State() *NodeState { return s }

// Attached reports whether the node is currently part of a chain.
func (s *NodeState) Attached() bool { return s.attached }

// Parent returns the next node toward the chain head, or nil.
func (s *NodeState) Parent() Node { return s.parent }

// Child returns the next node toward the chain tail, or nil.
func (s *NodeState) Child() Node { return s.child }

// Capabilities returns the node's own capability mask.
func (s *NodeState) Capabilities() Capability { return s.caps }

// Aggregate returns the node's capabilities combined with those of every
// node after it in the chain.
func (s *NodeState) Aggregate() Capability { return s.aggregate }

func elemEqual(a, b Element) bool {
	if eq, ok := a.(Equaler); ok {
		return eq.EqualElement(b)
	}
	return reflect.DeepEqual(a, b)
}

func elemHash(e Element) (uint64, bool) {
	if h, ok := e.(Hasher); ok {
		return h.ModifierHash(), true
	}
	return 0, false
}

func elemKey(e Element) (any, bool) {
	if k, ok := e.(Keyer); ok {
		return k.ModifierKey(), true
	}
	return nil, false
}

func forcedUpdate(e Element) bool {
	f, ok := e.(ForcedUpdater)
	return ok && f.RequiresForcedUpdate()
}
