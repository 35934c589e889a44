package layout_test

import (
	"errors"
	"strings"
	"testing"

	"src.weft.dev/pkg/comp"
	"src.weft.dev/pkg/comptest"
	"src.weft.dev/pkg/layout"
	"src.weft.dev/pkg/modifier"
	"src.weft.dev/pkg/must"
	"src.weft.dev/pkg/node"
	"src.weft.dev/pkg/snapshot"
)

func fixed(w, h int) layout.MeasurePolicy {
	return layout.MeasurePolicyFunc(func(_ []layout.Measurable, c layout.Constraints) (layout.Size, error) {
		return c.Constrain(layout.Size{Width: w, Height: h}), nil
	})
}

// attach links child into parent the way applied commands would.
func attach(parent *layout.LayoutNode, child *layout.LayoutNode) {
	parent.InsertChild(child.ID())
	child.OnAttachedToParent(parent.ID())
}

func TestConstraints(t *testing.T) {
	tt := []struct {
		c    layout.Constraints
		s    layout.Size
		want layout.Size
	}{
		{layout.Exact(10, 20), layout.Size{Width: 3, Height: 50}, layout.Size{Width: 10, Height: 20}},
		{layout.Loose(10, 20), layout.Size{Width: 3, Height: 50}, layout.Size{Width: 3, Height: 20}},
		{layout.Unbounded(), layout.Size{Width: 999, Height: 999}, layout.Size{Width: 999, Height: 999}},
	}
	for _, tc := range tt {
		if got := tc.c.Constrain(tc.s); got != tc.want {
			t.Errorf("%+v.Constrain(%+v) = %+v, want %+v", tc.c, tc.s, got, tc.want)
		}
	}
}

func TestFillPolicyWrapsLargestChild(t *testing.T) {
	a := layout.NewTreeApplier()
	root := layout.NewLayoutNode(a, nil)
	a.Create(root)
	c1 := layout.NewLayoutNode(a, fixed(10, 5))
	a.Create(c1)
	c2 := layout.NewLayoutNode(a, fixed(3, 30))
	a.Create(c2)
	attach(root, c1)
	attach(root, c2)

	tree := layout.NewTree(a, root.ID(), nil)
	got := must.OK1(tree.Measure(layout.Loose(100, 100)))
	if want := (layout.Size{Width: 10, Height: 30}); got != want {
		t.Errorf("size = %+v, want %+v", got, want)
	}
}

func TestDirtyBubbling(t *testing.T) {
	a := layout.NewTreeApplier()
	root := layout.NewLayoutNode(a, nil)
	a.Create(root)
	mid := layout.NewLayoutNode(a, nil)
	a.Create(mid)
	leaf := layout.NewLayoutNode(a, fixed(4, 4))
	a.Create(leaf)
	attach(root, mid)
	attach(mid, leaf)

	tree := layout.NewTree(a, root.ID(), nil)
	if _, err := tree.Measure(layout.Loose(10, 10)); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if dirty, _ := tree.NeedsLayout(); dirty {
		t.Fatalf("tree dirty after measure")
	}

	// A leaf change bubbles to the root without touching intermediates twice.
	leaf.SetPolicy(fixed(6, 6))
	if dirty, _ := tree.NeedsLayout(); !dirty {
		t.Fatalf("tree clean after leaf policy change")
	}
	if !mid.NeedsLayout() {
		t.Errorf("intermediate not marked dirty")
	}

	got, err := tree.Measure(layout.Loose(10, 10))
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if want := (layout.Size{Width: 6, Height: 6}); got != want {
		t.Errorf("size after remeasure = %+v, want %+v", got, want)
	}
	if dirty, _ := tree.NeedsLayout(); dirty {
		t.Errorf("tree dirty after remeasure")
	}
}

func TestMeasureCacheAndEpoch(t *testing.T) {
	a := layout.NewTreeApplier()
	measures := 0
	root := layout.NewLayoutNode(a, layout.MeasurePolicyFunc(
		func(_ []layout.Measurable, c layout.Constraints) (layout.Size, error) {
			measures++
			return c.Constrain(layout.Size{Width: 8, Height: 8}), nil
		}))
	a.Create(root)

	tree := layout.NewTree(a, root.ID(), nil)
	cons := layout.Loose(50, 50)
	if _, err := tree.Measure(cons); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if measures != 1 {
		t.Fatalf("measures = %d, want 1", measures)
	}
	epoch := tree.Epoch()

	// A clean tree re-measures nothing and keeps its epoch.
	if _, err := tree.Measure(cons); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if measures != 1 {
		t.Errorf("clean remeasure ran the policy (measures = %d)", measures)
	}
	if tree.Epoch() != epoch {
		t.Errorf("epoch advanced on clean pass: %d -> %d", epoch, tree.Epoch())
	}

	// New constraints miss the cache even when clean.
	if _, err := tree.Measure(layout.Loose(5, 5)); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if measures != 2 {
		t.Errorf("measures = %d after new constraints, want 2", measures)
	}

	// Dirtying advances the epoch and re-measures.
	root.MarkNeedsLayout()
	if _, err := tree.Measure(cons); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if tree.Epoch() != epoch+1 {
		t.Errorf("epoch = %d after dirty pass, want %d", tree.Epoch(), epoch+1)
	}
	if measures != 3 {
		t.Errorf("measures = %d after dirty pass, want 3", measures)
	}
}

// padNode pads its content on all sides and offsets it inward.
type padNode struct {
	state modifier.NodeState
	pad   int
}

func (n *padNode) State() *modifier.NodeState { return &n.state }
func (n *padNode) OnAttach()                  {}
func (n *padNode) OnDetach()                  {}

func (n *padNode) MeasureContent(inner layout.Measurable, c layout.Constraints) (layout.Size, layout.Offset, error) {
	p := n.pad
	ic := layout.Constraints{
		MinWidth:  max(0, c.MinWidth-2*p),
		MaxWidth:  max(0, c.MaxWidth-2*p),
		MinHeight: max(0, c.MinHeight-2*p),
		MaxHeight: max(0, c.MaxHeight-2*p),
	}
	s, err := inner.Measure(ic)
	if err != nil {
		return layout.Size{}, layout.Offset{}, err
	}
	out := c.Constrain(layout.Size{Width: s.Width + 2*p, Height: s.Height + 2*p})
	return out, layout.Offset{X: p, Y: p}, nil
}

func (n *padNode) MinIntrinsicWidth(content, _ int) int  { return content + 2*n.pad }
func (n *padNode) MinIntrinsicHeight(content, _ int) int { return content + 2*n.pad }

type padElement struct {
	pad int
}

func (e padElement) Create() modifier.Node             { return &padNode{pad: e.pad} }
func (e padElement) Update(n modifier.Node)            { n.(*padNode).pad = e.pad }
func (e padElement) Capabilities() modifier.Capability { return modifier.Layout }

func TestLayoutModifierWrapsMeasurement(t *testing.T) {
	a := layout.NewTreeApplier()
	n := layout.NewLayoutNode(a, fixed(10, 10))
	a.Create(n)
	n.SetModifiers(padElement{pad: 3})

	tree := layout.NewTree(a, n.ID(), nil)
	got, err := tree.Measure(layout.Loose(100, 100))
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if want := (layout.Size{Width: 16, Height: 16}); got != want {
		t.Errorf("size = %+v, want %+v", got, want)
	}
	if want := (layout.Offset{X: 3, Y: 3}); n.ContentOffset() != want {
		t.Errorf("content offset = %+v, want %+v", n.ContentOffset(), want)
	}

	// Updating a layout modifier dirties the node through the chain.
	if n.NeedsLayout() {
		t.Fatalf("node dirty after measure")
	}
	n.SetModifiers(padElement{pad: 5})
	if !n.NeedsLayout() {
		t.Fatalf("node clean after layout modifier change")
	}
	got, err = tree.Measure(layout.Loose(100, 100))
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if want := (layout.Size{Width: 20, Height: 20}); got != want {
		t.Errorf("size after pad change = %+v, want %+v", got, want)
	}
}

// fixedPolicy is a fixed-size policy that also answers intrinsic queries.
type fixedPolicy struct {
	w, h int
}

func (p fixedPolicy) Measure(_ []layout.Measurable, c layout.Constraints) (layout.Size, error) {
	return c.Constrain(layout.Size{Width: p.w, Height: p.h}), nil
}

func (p fixedPolicy) MinIntrinsicWidth(_ []layout.Measurable, _ int) (int, error) {
	return p.w, nil
}

func (p fixedPolicy) MinIntrinsicHeight(_ []layout.Measurable, _ int) (int, error) {
	return p.h, nil
}

func TestIntrinsicSizes(t *testing.T) {
	a := layout.NewTreeApplier()
	root := layout.NewLayoutNode(a, nil)
	a.Create(root)
	c1 := layout.NewLayoutNode(a, fixedPolicy{w: 10, h: 5})
	a.Create(c1)
	c2 := layout.NewLayoutNode(a, fixedPolicy{w: 3, h: 30})
	a.Create(c2)
	attach(root, c1)
	attach(root, c2)

	// The default policy answers with the largest child intrinsic.
	if got := must.OK1(root.MinIntrinsicWidth(100)); got != 10 {
		t.Errorf("MinIntrinsicWidth = %d, want 10", got)
	}
	if got := must.OK1(root.MinIntrinsicHeight(100)); got != 30 {
		t.Errorf("MinIntrinsicHeight = %d, want 30", got)
	}

	// Layout modifiers adjust the content intrinsic the way they adjust
	// the measured size, and the adjustment is visible through the parent.
	c1.SetModifiers(padElement{pad: 3})
	if got := must.OK1(c1.MinIntrinsicWidth(100)); got != 16 {
		t.Errorf("padded MinIntrinsicWidth = %d, want 16", got)
	}
	if got := must.OK1(root.MinIntrinsicWidth(100)); got != 16 {
		t.Errorf("root MinIntrinsicWidth = %d, want 16", got)
	}

	// A policy without intrinsics and no children answers zero.
	plain := layout.NewLayoutNode(a, fixed(7, 7))
	a.Create(plain)
	if got := must.OK1(plain.MinIntrinsicWidth(100)); got != 0 {
		t.Errorf("plain MinIntrinsicWidth = %d, want 0", got)
	}
}

func TestStackedModifiersApplyInnermostFirst(t *testing.T) {
	a := layout.NewTreeApplier()
	n := layout.NewLayoutNode(a, fixed(10, 10))
	a.Create(n)
	n.SetModifiers(padElement{pad: 1}, padElement{pad: 2})

	tree := layout.NewTree(a, n.ID(), nil)
	got := must.OK1(tree.Measure(layout.Loose(100, 100)))
	if want := (layout.Size{Width: 16, Height: 16}); got != want {
		t.Errorf("size = %+v, want %+v", got, want)
	}
	if want := (layout.Offset{X: 3, Y: 3}); n.ContentOffset() != want {
		t.Errorf("content offset = %+v, want %+v", n.ContentOffset(), want)
	}
}

func TestSubcompose(t *testing.T) {
	f := comptest.Setup(t)

	rows := 3
	var passIDs [][]node.ID
	n := layout.NewSubcomposeLayoutNode(f.Applier, f.Comp.Composer(),
		func(s *layout.SubcomposeScope, c layout.Constraints) (layout.Size, error) {
			ms, err := s.Subcompose(0, func(cc *comp.Composer) {
				for i := 0; i < rows; i++ {
					cc.WithKey(i, func(cc *comp.Composer) {
						comp.EmitNode(cc,
							func() *layout.LayoutNode { return layout.NewLayoutNode(f.Applier, fixed(10, 4)) },
							func(*layout.LayoutNode) {})
					})
				}
			})
			if err != nil {
				return layout.Size{}, err
			}
			var ids []node.ID
			h := 0
			for _, m := range ms {
				cs, err := m.Measure(layout.Loose(c.MaxWidth, c.MaxHeight-h))
				if err != nil {
					return layout.Size{}, err
				}
				h += cs.Height
				ids = append(ids, m.NodeID())
			}
			passIDs = append(passIDs, ids)
			return c.Constrain(layout.Size{Width: 10, Height: h}), nil
		})
	f.Applier.Create(n)

	tree := layout.NewTree(f.Applier, n.ID(), f.Comp.Composer())
	got, err := tree.Measure(layout.Loose(100, 100))
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if want := (layout.Size{Width: 10, Height: 12}); got != want {
		t.Errorf("size = %+v, want %+v", got, want)
	}
	if got := n.State().Children(0); len(got) != 3 {
		t.Errorf("state children = %v, want 3 ids", got)
	}

	// A second pass reuses the composed nodes slot for slot.
	n.MarkNeedsLayout()
	if _, err := tree.Measure(layout.Loose(100, 100)); err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if len(passIDs) != 2 {
		t.Fatalf("policy ran %d times, want 2", len(passIDs))
	}
	for i := range passIDs[0] {
		if passIDs[0][i] != passIDs[1][i] {
			t.Errorf("child %d changed identity across passes: %d -> %d", i, passIDs[0][i], passIDs[1][i])
		}
	}
}

func TestSubcomposeInvalidationMarksHost(t *testing.T) {
	f := comptest.Setup(t)
	f.Render(t, func(*comp.Composer) {})

	rows := snapshot.NewState(2, snapshot.Structural[int]())
	n := layout.NewSubcomposeLayoutNode(f.Applier, f.Comp.Composer(),
		func(s *layout.SubcomposeScope, c layout.Constraints) (layout.Size, error) {
			ms, err := s.Subcompose(0, func(cc *comp.Composer) {
				for i := 0; i < rows.Get(); i++ {
					cc.WithKey(i, func(cc *comp.Composer) {
						comp.EmitNode(cc,
							func() *layout.LayoutNode { return layout.NewLayoutNode(f.Applier, fixed(10, 4)) },
							func(*layout.LayoutNode) {})
					})
				}
			})
			if err != nil {
				return layout.Size{}, err
			}
			h := 0
			for _, m := range ms {
				cs, err := m.Measure(layout.Loose(c.MaxWidth, c.MaxHeight-h))
				if err != nil {
					return layout.Size{}, err
				}
				h += cs.Height
			}
			return c.Constrain(layout.Size{Width: 10, Height: h}), nil
		})
	f.Applier.Create(n)

	tree := layout.NewTree(f.Applier, n.ID(), f.Comp.Composer())
	got := must.OK1(tree.Measure(layout.Loose(100, 100)))
	if want := (layout.Size{Width: 10, Height: 8}); got != want {
		t.Fatalf("size = %+v, want %+v", got, want)
	}

	// A write observed only inside the subcomposition must reach the host:
	// the render pass marks the node for measurement, and the next measure
	// re-runs the changed content instead of serving the cache.
	s := snapshot.TakeMutableSnapshot(nil, nil)
	s.Enter(func() { rows.Set(3) })
	if r := s.Apply(); r != snapshot.Success {
		t.Fatalf("Apply = %v, want success", r)
	}
	f.Render(t, func(*comp.Composer) {})

	if !n.NeedsLayout() {
		t.Fatalf("host not marked for layout after subcomposed state change")
	}
	got = must.OK1(tree.Measure(layout.Loose(100, 100)))
	if want := (layout.Size{Width: 10, Height: 12}); got != want {
		t.Errorf("size after state change = %+v, want %+v", got, want)
	}
	if got := n.State().Children(0); len(got) != 3 {
		t.Errorf("state children = %v, want 3 ids", got)
	}
}

func TestSubcomposeWithoutComposer(t *testing.T) {
	a := layout.NewTreeApplier()
	n := layout.NewSubcomposeLayoutNode(a, nil,
		func(s *layout.SubcomposeScope, c layout.Constraints) (layout.Size, error) {
			_, err := s.Subcompose(0, func(*comp.Composer) {})
			return layout.Size{}, err
		})
	a.Create(n)

	tree := layout.NewTree(a, n.ID(), nil)
	_, err := tree.Measure(layout.Loose(10, 10))
	var mce node.MissingContextError
	if !errors.As(err, &mce) {
		t.Fatalf("err = %v, want MissingContextError", err)
	}
}

func TestTreeApplier(t *testing.T) {
	a := layout.NewTreeApplier()
	root := layout.NewLayoutNode(a, nil)
	rootID := a.Create(root)
	child := layout.NewLayoutNode(a, nil)
	childID := a.Create(child)
	attach(root, child)

	if _, err := a.Get(childID); err != nil {
		t.Fatalf("Get(child): %v", err)
	}
	if err := a.Remove(rootID); err != nil {
		t.Fatalf("Remove(root): %v", err)
	}
	if a.Has(childID) {
		t.Errorf("child survived recursive removal")
	}
	_, err := a.Get(childID)
	var me node.MissingError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want MissingError", err)
	}

	// Ids are never reused.
	next := a.Create(layout.NewLayoutNode(a, nil))
	if next == rootID || next == childID {
		t.Errorf("id %d reused", next)
	}
}

func TestSprint(t *testing.T) {
	a := layout.NewTreeApplier()
	root := layout.NewLayoutNode(a, nil)
	a.Create(root)
	child := layout.NewLayoutNode(a, fixed(5, 5))
	a.Create(child)
	attach(root, child)

	tree := layout.NewTree(a, root.ID(), nil)
	if _, err := tree.Measure(layout.Loose(10, 10)); err != nil {
		t.Fatalf("Measure: %v", err)
	}

	out := layout.Sprint(a, root.ID())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Sprint produced %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "#1 layout 5x5") {
		t.Errorf("root line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  #2 layout 5x5") {
		t.Errorf("child line = %q", lines[1])
	}
	if strings.Contains(out, "dirty") {
		t.Errorf("clean tree printed dirty:\n%s", out)
	}
}
