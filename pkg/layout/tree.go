package layout

import (
	"fmt"
	"strings"

	"src.weft.dev/pkg/comp"
	"src.weft.dev/pkg/logutil"
	"src.weft.dev/pkg/node"
)

var logger = logutil.GetLogger("[layout] ")

// Tree drives measurement over an applier-owned node tree. It holds the
// monotonic cache epoch; the epoch advances only when something needs
// measuring, so a fully clean tree re-measures nothing.
type Tree struct {
	applier  *TreeApplier
	root     node.ID
	composer *comp.Composer
	epoch    uint64
}

// NewTree creates a measurement driver rooted at root. The composer may be
// nil when the tree contains no subcomposing nodes.
func NewTree(a *TreeApplier, root node.ID, c *comp.Composer) *Tree {
	return &Tree{applier: a, root: root, composer: c}
}

// Epoch returns the current cache epoch.
func (t *Tree) Epoch() uint64 { return t.epoch }

// NeedsLayout reports in O(1) whether any node needs measuring, relying on
// dirty flags bubbling to the root.
func (t *Tree) NeedsLayout() (bool, error) {
	r, err := t.applier.Get(t.root)
	if err != nil {
		return false, err
	}
	return r.NeedsLayout(), nil
}

// Measure measures the root under the given constraints, visiting only
// dirty or uncached nodes. After a successful pass the visited dirty flags
// are clear and NeedsLayout reports false.
func (t *Tree) Measure(c Constraints) (Size, error) {
	r, err := t.applier.Get(t.root)
	if err != nil {
		return Size{}, err
	}
	rn, ok := r.(layoutNoder)
	if !ok {
		return Size{}, node.TypeMismatchError{ID: t.root, Expected: "layout.LayoutNode"}
	}
	root := rn.layoutNode()
	if root.needsLayout {
		t.epoch++
		logger.Printf("measure pass, epoch %d", t.epoch)
	}
	if t.composer != nil {
		prev := t.composer.SetPhase(comp.PhaseMeasure)
		defer t.composer.SetPhase(prev)
	}
	return root.measure(c, t.epoch)
}

// Sprint renders the subtree under id as an indented dump, one node per
// line, for debugging and golden tests.
func Sprint(a *TreeApplier, id node.ID) string {
	var sb strings.Builder
	sprint(&sb, a, id, 0)
	return sb.String()
}

// Describer lets a host node override its line in Sprint output.
type Describer interface {
	Describe() string
}

func sprint(sb *strings.Builder, a *TreeApplier, id node.ID, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	n, err := a.Get(id)
	if err != nil {
		fmt.Fprintf(sb, "#%d <%v>\n", id, err)
		return
	}
	switch d := n.(type) {
	case Describer:
		fmt.Fprintf(sb, "#%d %s", id, d.Describe())
	case layoutNoder:
		ln := d.layoutNode()
		fmt.Fprintf(sb, "#%d layout %dx%d", id, ln.size.Width, ln.size.Height)
	default:
		fmt.Fprintf(sb, "#%d %T", id, n)
	}
	if n.NeedsLayout() {
		sb.WriteString(" dirty")
	}
	sb.WriteString("\n")
	for _, child := range n.Children() {
		sprint(sb, a, child, depth+1)
	}
}
