package layout

import (
	"src.weft.dev/pkg/modifier"
	"src.weft.dev/pkg/node"
)

// ModifierNode is the layout protocol for modifier nodes: it measures the
// content inward of it and may change the resulting size and content
// placement.
type ModifierNode interface {
	modifier.Node
	MeasureContent(inner Measurable, c Constraints) (Size, Offset, error)
}

// IntrinsicModifierNode is the intrinsic-size protocol for layout modifiers:
// it adjusts the content's intrinsic size the way MeasureContent adjusts the
// measured one. Layout modifiers without it pass intrinsics through.
type IntrinsicModifierNode interface {
	ModifierNode
	MinIntrinsicWidth(content, height int) int
	MinIntrinsicHeight(content, width int) int
}

type cacheEntry struct {
	size  Size
	epoch uint64
}

// LayoutNode is a measurable host node. It owns a modifier chain, a measure
// policy deciding its size from its children, and a measure cache keyed by
// constraints and the tree's cache epoch.
type LayoutNode struct {
	id      node.ID
	applier *TreeApplier

	parent   node.ID
	children []node.ID

	needsLayout    bool
	needsSemantics bool

	chain  *modifier.Chain
	policy MeasurePolicy

	cache map[Constraints]cacheEntry

	size    Size
	content Offset

	// lastEpoch is the epoch of the in-flight measurement, read by
	// subcomposing policies.
	lastEpoch uint64

	// update, if set, runs on each Update command before dirtiness checks.
	update func(*LayoutNode)
}

// layoutNoder is satisfied by *LayoutNode and anything embedding it, which
// is how host node types opt into the measure pipeline.
type layoutNoder interface {
	layoutNode() *LayoutNode
}

func (n *LayoutNode) layoutNode() *LayoutNode { return n }

// NewLayoutNode creates a node measuring with the given policy (nil wraps
// the largest child). The node must be registered with the same applier it
// resolves its children through, which EmitNode does via Create.
func NewLayoutNode(a *TreeApplier, policy MeasurePolicy) *LayoutNode {
	n := &LayoutNode{}
	n.init(a, policy)
	return n
}

func (n *LayoutNode) init(a *TreeApplier, policy MeasurePolicy) {
	if policy == nil {
		policy = fillPolicy{}
	}
	n.applier = a
	n.policy = policy
	n.needsLayout = true
	n.cache = make(map[Constraints]cacheEntry)
	n.chain = modifier.NewChain(n.onModifierInvalidate)
}

func (n *LayoutNode) onModifierInvalidate(caps modifier.Capability) {
	if caps.Any(modifier.Layout) {
		n.markNeedsLayoutBubbling()
	}
	if caps.Any(modifier.Semantics) {
		n.needsSemantics = true
	}
}

// markNeedsLayoutBubbling dirties this node and every ancestor, keeping the
// tree-level dirty check O(1) at the root.
func (n *LayoutNode) markNeedsLayoutBubbling() {
	n.needsLayout = true
	a := n.applier
	id := n.parent
	for id != node.None {
		p, err := a.Get(id)
		if err != nil || p.NeedsLayout() {
			return
		}
		p.MarkNeedsLayout()
		id = p.Parent()
	}
}

// SetID implements IDSetter.
func (n *LayoutNode) SetID(id node.ID) { n.id = id }

// ID returns the node's applier id.
func (n *LayoutNode) ID() node.ID { return n.id }

// Chain returns the node's modifier chain.
func (n *LayoutNode) Chain() *modifier.Chain { return n.chain }

// SetModifiers reconciles the node's modifier chain against elements.
func (n *LayoutNode) SetModifiers(elements ...modifier.Element) {
	n.chain.UpdateFromSlice(elements)
}

// SetPolicy replaces the measure policy and dirties the node.
func (n *LayoutNode) SetPolicy(policy MeasurePolicy) {
	if policy == nil {
		policy = fillPolicy{}
	}
	n.policy = policy
	n.markNeedsLayoutBubbling()
}

// SetUpdate installs a hook run on every Update command.
func (n *LayoutNode) SetUpdate(f func(*LayoutNode)) { n.update = f }

// Size returns the size from the last measurement.
func (n *LayoutNode) Size() Size { return n.size }

// ContentOffset returns the accumulated placement offset the modifier chain
// applied to the node's content in the last measurement.
func (n *LayoutNode) ContentOffset() Offset { return n.content }

// Mount implements node.Node.
func (n *LayoutNode) Mount() {}

// Update implements node.Node.
func (n *LayoutNode) Update() {
	if n.update != nil {
		n.update(n)
	}
}

// Unmount detaches the modifier chain.
func (n *LayoutNode) Unmount() { n.chain.Detach() }

func (n *LayoutNode) OnAttachedToParent(parent node.ID) { n.parent = parent }
func (n *LayoutNode) OnRemovedFromParent()              { n.parent = node.None }
func (n *LayoutNode) Parent() node.ID                   { return n.parent }

func (n *LayoutNode) InsertChild(child node.ID) {
	n.children = append(n.children, child)
}

func (n *LayoutNode) RemoveChild(child node.ID) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

func (n *LayoutNode) MoveChild(from, to int) {
	c := n.children[from]
	n.children = append(n.children[:from], n.children[from+1:]...)
	n.children = append(n.children, node.None)
	copy(n.children[to+1:], n.children[to:])
	n.children[to] = c
}

func (n *LayoutNode) UpdateChildren(children []node.ID) {
	n.children = append(n.children[:0], children...)
}

func (n *LayoutNode) Children() []node.ID { return n.children }

func (n *LayoutNode) MarkNeedsLayout()    { n.needsLayout = true }
func (n *LayoutNode) NeedsLayout() bool   { return n.needsLayout }
func (n *LayoutNode) MarkNeedsSemantics() { n.needsSemantics = true }
func (n *LayoutNode) NeedsSemantics() bool {
	return n.needsSemantics
}

// measure runs the node's measure pipeline: cache lookup, then the modifier
// chain outside-in, then the measure policy over the children. A clean node
// with a cache entry from the current epoch is not re-measured.
func (n *LayoutNode) measure(c Constraints, epoch uint64) (Size, error) {
	if e, ok := n.cache[c]; ok && e.epoch == epoch && !n.needsLayout {
		return e.size, nil
	}
	n.lastEpoch = epoch

	// Collect layout modifiers and wrap the core measurement inside them,
	// innermost first.
	var inner Measurable = coreMeasurable{n: n, epoch: epoch}
	var mods []ModifierNode
	n.chain.ForEachMatching(modifier.Layout, func(m modifier.Node) bool {
		if lm, ok := m.(ModifierNode); ok {
			mods = append(mods, lm)
		}
		return true
	})
	n.content = Offset{}
	for i := len(mods) - 1; i >= 0; i-- {
		inner = modifierMeasurable{n: n, mod: mods[i], inner: inner}
	}

	size, err := inner.Measure(c)
	if err != nil {
		return Size{}, err
	}
	n.size = size
	n.cache[c] = cacheEntry{size: size, epoch: epoch}
	n.needsLayout = false
	return size, nil
}

// MinIntrinsicWidth answers the smallest width at which the node can show
// its content at the given height: the policy's answer (or the largest child
// intrinsic for policies without one), adjusted outward through the layout
// modifiers, innermost first.
func (n *LayoutNode) MinIntrinsicWidth(height int) (int, error) {
	children, err := n.measureChildren(n.lastEpoch)
	if err != nil {
		return 0, err
	}
	p, ok := n.policy.(IntrinsicPolicy)
	if !ok {
		p = fillPolicy{}
	}
	w, err := p.MinIntrinsicWidth(children, height)
	if err != nil {
		return 0, err
	}
	mods := n.intrinsicModifiers()
	for i := len(mods) - 1; i >= 0; i-- {
		w = mods[i].MinIntrinsicWidth(w, height)
	}
	return w, nil
}

// MinIntrinsicHeight is the height analogue of MinIntrinsicWidth.
func (n *LayoutNode) MinIntrinsicHeight(width int) (int, error) {
	children, err := n.measureChildren(n.lastEpoch)
	if err != nil {
		return 0, err
	}
	p, ok := n.policy.(IntrinsicPolicy)
	if !ok {
		p = fillPolicy{}
	}
	h, err := p.MinIntrinsicHeight(children, width)
	if err != nil {
		return 0, err
	}
	mods := n.intrinsicModifiers()
	for i := len(mods) - 1; i >= 0; i-- {
		h = mods[i].MinIntrinsicHeight(h, width)
	}
	return h, nil
}

func (n *LayoutNode) intrinsicModifiers() []IntrinsicModifierNode {
	var mods []IntrinsicModifierNode
	n.chain.ForEachMatching(modifier.Layout, func(m modifier.Node) bool {
		if im, ok := m.(IntrinsicModifierNode); ok {
			mods = append(mods, im)
		}
		return true
	})
	return mods
}

// measureChildren resolves the node's children into measure handles.
func (n *LayoutNode) measureChildren(epoch uint64) ([]Measurable, error) {
	children := make([]Measurable, 0, len(n.children))
	for _, id := range n.children {
		cn, err := n.applier.Get(id)
		if err != nil {
			return nil, err
		}
		ln, ok := cn.(layoutNoder)
		if !ok {
			return nil, node.TypeMismatchError{ID: id, Expected: "layout.LayoutNode"}
		}
		children = append(children, childMeasurable{n: ln.layoutNode(), epoch: epoch})
	}
	return children, nil
}

// coreMeasurable measures the node's own policy over its children.
type coreMeasurable struct {
	n     *LayoutNode
	epoch uint64
}

func (m coreMeasurable) NodeID() node.ID { return m.n.id }

func (m coreMeasurable) Measure(c Constraints) (Size, error) {
	children, err := m.n.measureChildren(m.epoch)
	if err != nil {
		return Size{}, err
	}
	return m.n.policy.Measure(children, c)
}

// childMeasurable recursively measures a child node.
type childMeasurable struct {
	n     *LayoutNode
	epoch uint64
}

func (m childMeasurable) NodeID() node.ID { return m.n.id }

func (m childMeasurable) Measure(c Constraints) (Size, error) {
	return m.n.measure(c, m.epoch)
}

func (m childMeasurable) MinIntrinsicWidth(height int) (int, error) {
	return m.n.MinIntrinsicWidth(height)
}

func (m childMeasurable) MinIntrinsicHeight(width int) (int, error) {
	return m.n.MinIntrinsicHeight(width)
}

// modifierMeasurable routes measurement through one layout modifier,
// accumulating the placement offset it reports.
type modifierMeasurable struct {
	n     *LayoutNode
	mod   ModifierNode
	inner Measurable
}

func (m modifierMeasurable) NodeID() node.ID { return m.n.id }

func (m modifierMeasurable) Measure(c Constraints) (Size, error) {
	size, off, err := m.mod.MeasureContent(m.inner, c)
	if err != nil {
		return Size{}, err
	}
	m.n.content.X += off.X
	m.n.content.Y += off.Y
	return size, nil
}
