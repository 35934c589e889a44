// Package node defines the interface between the composition runtime and the
// host's node tree.
//
// The runtime never owns concrete nodes. It emits commands against an
// Applier, which resolves node ids to host nodes and performs the actual tree
// surgery. Node ids are strictly increasing and never reused, so a stale id
// reliably fails with MissingError instead of silently aliasing a new node.
package node

// ID identifies a node in the applier. The zero ID is never allocated.
type ID int64

// None is the zero ID, used where a node reference is absent.
const None ID = 0

// Node is implemented by host nodes managed through an Applier.
type Node interface {
	// Mount is called once, after the node has been attached to its parent.
	Mount()
	// Update is called when the composition re-emits the node.
	Update()
	// Unmount is called once, before the node is removed from the applier.
	Unmount()

	// OnAttachedToParent is called when the node gains a parent.
	OnAttachedToParent(parent ID)
	// OnRemovedFromParent is called when the node loses its parent.
	OnRemovedFromParent()
	// Parent returns the current parent, or None.
	Parent() ID

	// InsertChild appends a child id.
	InsertChild(child ID)
	// RemoveChild removes a child id; unknown ids are ignored.
	RemoveChild(child ID)
	// MoveChild moves the child at index from to index to.
	MoveChild(from, to int)
	// UpdateChildren replaces the whole child list.
	UpdateChildren(children []ID)
	// Children returns the current child list. Callers must not retain the
	// slice across mutations.
	Children() []ID

	// MarkNeedsLayout sets the layout dirty flag on this node.
	MarkNeedsLayout()
	// NeedsLayout reports the layout dirty flag.
	NeedsLayout() bool
	// MarkNeedsSemantics sets the semantics dirty flag on this node.
	MarkNeedsSemantics()
	// NeedsSemantics reports the semantics dirty flag.
	NeedsSemantics() bool
}

// Applier owns the concrete node tree and executes the commands the composer
// emits.
type Applier interface {
	// Create registers a node and returns its fresh id.
	Create(n Node) ID
	// Get returns the node with the given id, or a MissingError.
	Get(id ID) (Node, error)
	// Remove removes the node with the given id and, recursively, all of its
	// children. Returns a MissingError if the id is unknown.
	Remove(id ID) error
}
