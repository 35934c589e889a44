package modifier

// Capability-specific protocols. A node opts into a protocol by setting the
// corresponding capability bit and implementing the interface; traversals
// assert on the interface after filtering by mask. The layout protocol lives
// with the layout package, which owns the measurement types.

// DrawScope is the surface handed to draw modifiers during the draw walk.
// The renderer owning the node tree supplies the implementation.
type DrawScope interface {
	// Size returns the content size of the node being drawn.
	Size() (width, height float64)
	// DrawContent draws the rest of the chain and the node's children.
	// A draw modifier that never calls it fully replaces the content.
	DrawContent()
}

// DrawModifierNode is implemented by nodes with the Draw capability.
type DrawModifierNode interface {
	Node
	Draw(DrawScope)
}

// DrawClosureNode is the deferred-draw protocol: the modifier builds its
// draw work once, and the renderer replays the returned closure until the
// node invalidates its Draw capability.
type DrawClosureNode interface {
	DrawModifierNode
	CreateDrawClosure(DrawScope) func()
}

// DrawClosures collects the chain's draw work as replayable closures, head
// to tail. Draw modifiers without closure support are wrapped so Draw runs
// on each invocation.
func DrawClosures(ch *Chain, scope DrawScope) []func() {
	var fns []func()
	ch.ForEachMatching(Draw, func(n Node) bool {
		switch d := n.(type) {
		case DrawClosureNode:
			fns = append(fns, d.CreateDrawClosure(scope))
		case DrawModifierNode:
			fns = append(fns, func() { d.Draw(scope) })
		}
		return true
	})
	return fns
}

// PointerEvent is a pointer event dispatched through the chain.
type PointerEvent struct {
	X, Y    float64
	Kind    PointerEventKind
	Pressed bool
}

// PointerEventKind discriminates pointer events.
type PointerEventKind uint8

const (
	PointerMove PointerEventKind = iota
	PointerDown
	PointerUp
	PointerScroll
)

// PointerInputNode is implemented by nodes with the PointerInput capability.
type PointerInputNode interface {
	Node
	HitTest(x, y float64) bool
	// OnPointerEvent handles an event, reporting whether it was consumed.
	OnPointerEvent(PointerEvent) bool
}

// SemanticsConfig accumulates the semantic description of a node as
// semantics modifiers merge into it.
type SemanticsConfig struct {
	Label       string
	Description string
	Hidden      bool
	Actions     map[string]func()
}

// AddAction registers a named semantic action.
func (c *SemanticsConfig) AddAction(name string, f func()) {
	if c.Actions == nil {
		c.Actions = make(map[string]func())
	}
	c.Actions[name] = f
}

// SemanticsModifierNode is implemented by nodes with the Semantics
// capability.
type SemanticsModifierNode interface {
	Node
	MergeSemantics(*SemanticsConfig)
}

// FocusState describes a focus node's current state.
type FocusState uint8

const (
	FocusInactive FocusState = iota
	FocusActive
	FocusCaptured
)

// FocusNode is implemented by nodes with the Focus capability.
type FocusNode interface {
	Node
	FocusState() FocusState
	OnFocusChanged(FocusState)
}
