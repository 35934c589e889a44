package layout

import "src.weft.dev/pkg/node"

// IDSetter is implemented by nodes that want to learn their id when the
// applier registers them.
type IDSetter interface {
	SetID(node.ID)
}

// TreeApplier is an in-memory node.Applier. Ids are strictly increasing and
// never reused, so a reference to a removed node fails with MissingError
// instead of aliasing a later node.
type TreeApplier struct {
	nodes  map[node.ID]node.Node
	nextID node.ID
}

// NewTreeApplier creates an empty applier.
func NewTreeApplier() *TreeApplier {
	return &TreeApplier{nodes: make(map[node.ID]node.Node)}
}

// Create registers n under a fresh id.
func (a *TreeApplier) Create(n node.Node) node.ID {
	a.nextID++
	id := a.nextID
	a.nodes[id] = n
	if s, ok := n.(IDSetter); ok {
		s.SetID(id)
	}
	return id
}

// Get returns the node with the given id.
func (a *TreeApplier) Get(id node.ID) (node.Node, error) {
	n, ok := a.nodes[id]
	if !ok {
		return nil, node.MissingError{ID: id}
	}
	return n, nil
}

// Remove deletes the node and, recursively, its children.
func (a *TreeApplier) Remove(id node.ID) error {
	n, ok := a.nodes[id]
	if !ok {
		return node.MissingError{ID: id}
	}
	for _, child := range append([]node.ID(nil), n.Children()...) {
		// A child may already be gone if it was removed explicitly first.
		if _, ok := a.nodes[child]; ok {
			if err := a.Remove(child); err != nil {
				return err
			}
		}
	}
	delete(a.nodes, id)
	return nil
}

// Len returns the number of live nodes.
func (a *TreeApplier) Len() int { return len(a.nodes) }

// Has reports whether an id is live.
func (a *TreeApplier) Has(id node.ID) bool {
	_, ok := a.nodes[id]
	return ok
}
