package layout

import (
	"src.weft.dev/pkg/comp"
	"src.weft.dev/pkg/node"
)

// SubcomposeScope is handed to a subcomposing measure policy; it composes
// content on demand and returns the resulting children as measurables.
type SubcomposeScope struct {
	n     *SubcomposeLayoutNode
	epoch uint64
}

// Subcompose composes content under the given slot id and returns the
// emitted nodes as measurables. Content identity per slot id is stable
// across measure passes.
func (s *SubcomposeScope) Subcompose(slotID uint64, content func(*comp.Composer)) ([]Measurable, error) {
	n := s.n
	if n.composer == nil {
		return nil, node.MissingContextError{ID: n.id, Reason: "no composer attached for subcomposition"}
	}
	ids := n.composer.Subcompose(n.state, slotID, content)
	if err := n.composer.Err(); err != nil {
		return nil, err
	}
	ms := make([]Measurable, 0, len(ids))
	for _, id := range ids {
		cn, err := n.applier.Get(id)
		if err != nil {
			return nil, err
		}
		ln, ok := cn.(layoutNoder)
		if !ok {
			return nil, node.TypeMismatchError{ID: id, Expected: "layout.LayoutNode"}
		}
		ms = append(ms, childMeasurable{n: ln.layoutNode(), epoch: s.epoch})
	}
	return ms, nil
}

// SubcomposeMeasureFunc sizes a subcomposing node, composing children on
// demand through the scope.
type SubcomposeMeasureFunc func(s *SubcomposeScope, c Constraints) (Size, error)

// SubcomposeLayoutNode is a layout node that produces children dynamically
// during measurement, typically because how many children exist depends on
// the incoming constraints.
type SubcomposeLayoutNode struct {
	LayoutNode
	composer  *comp.Composer
	state     *comp.SubcomposeState
	measureFn SubcomposeMeasureFunc
}

// NewSubcomposeLayoutNode creates a subcomposing node measuring with f.
func NewSubcomposeLayoutNode(a *TreeApplier, c *comp.Composer, f SubcomposeMeasureFunc) *SubcomposeLayoutNode {
	n := &SubcomposeLayoutNode{
		composer:  c,
		state:     comp.NewSubcomposeState(),
		measureFn: f,
	}
	n.init(a, subcomposePolicy{n})
	return n
}

// State returns the node's subcomposition state.
func (n *SubcomposeLayoutNode) State() *comp.SubcomposeState { return n.state }

type subcomposePolicy struct {
	n *SubcomposeLayoutNode
}

func (p subcomposePolicy) Measure(_ []Measurable, c Constraints) (Size, error) {
	n := p.n
	n.state.BindHost(n.id)
	scope := &SubcomposeScope{n: n, epoch: n.lastEpoch}
	return n.measureFn(scope, c)
}
