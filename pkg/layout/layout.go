// Package layout implements the measure and layout protocol over the node
// tree the composer emits: constraint propagation, per-node measure caching,
// dirty-flag bubbling, and subcomposition during measurement.
package layout

import (
	"math"

	"src.weft.dev/pkg/node"
)

// Infinity marks an unbounded constraint dimension.
const Infinity = math.MaxInt32

// Constraints bound the size a node may choose during measurement.
type Constraints struct {
	MinWidth, MaxWidth   int
	MinHeight, MaxHeight int
}

// Exact returns constraints admitting only the given size.
func Exact(w, h int) Constraints {
	return Constraints{MinWidth: w, MaxWidth: w, MinHeight: h, MaxHeight: h}
}

// Loose returns constraints from zero up to the given size.
func Loose(w, h int) Constraints {
	return Constraints{MaxWidth: w, MaxHeight: h}
}

// Unbounded returns constraints with no upper limits.
func Unbounded() Constraints {
	return Constraints{MaxWidth: Infinity, MaxHeight: Infinity}
}

// Constrain clamps s into the constraint bounds.
func (c Constraints) Constrain(s Size) Size {
	return Size{
		Width:  clamp(s.Width, c.MinWidth, c.MaxWidth),
		Height: clamp(s.Height, c.MinHeight, c.MaxHeight),
	}
}

// ConstrainWidth clamps a width into bounds.
func (c Constraints) ConstrainWidth(w int) int { return clamp(w, c.MinWidth, c.MaxWidth) }

// ConstrainHeight clamps a height into bounds.
func (c Constraints) ConstrainHeight(h int) int { return clamp(h, c.MinHeight, c.MaxHeight) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Size is a measured size in integer units.
type Size struct {
	Width, Height int
}

// Offset is a placement offset relative to the parent's content origin.
type Offset struct {
	X, Y int
}

// Measurable is a handle to a child that can be measured under constraints.
// Measuring recursively runs the child's measure pipeline and consults its
// cache.
type Measurable interface {
	Measure(Constraints) (Size, error)
	// NodeID identifies the underlying node.
	NodeID() node.ID
}

// IntrinsicMeasurable is the optional intrinsic-size side of a Measurable.
// Child handles produced by the measure pipeline implement it.
type IntrinsicMeasurable interface {
	Measurable
	MinIntrinsicWidth(height int) (int, error)
	MinIntrinsicHeight(width int) (int, error)
}

// MinIntrinsicWidthOf queries a child handle's minimum intrinsic width,
// zero for handles without intrinsics.
func MinIntrinsicWidthOf(m Measurable, height int) (int, error) {
	if im, ok := m.(IntrinsicMeasurable); ok {
		return im.MinIntrinsicWidth(height)
	}
	return 0, nil
}

// MinIntrinsicHeightOf queries a child handle's minimum intrinsic height,
// zero for handles without intrinsics.
func MinIntrinsicHeightOf(m Measurable, width int) (int, error) {
	if im, ok := m.(IntrinsicMeasurable); ok {
		return im.MinIntrinsicHeight(width)
	}
	return 0, nil
}

// MeasurePolicy decides a node's size from its children, measuring them
// through the provided handles.
type MeasurePolicy interface {
	Measure(children []Measurable, c Constraints) (Size, error)
}

// IntrinsicPolicy is the optional intrinsic-size protocol for measure
// policies. Policies without it answer with the largest child intrinsic.
type IntrinsicPolicy interface {
	MinIntrinsicWidth(children []Measurable, height int) (int, error)
	MinIntrinsicHeight(children []Measurable, width int) (int, error)
}

// MeasurePolicyFunc adapts a function to a MeasurePolicy.
type MeasurePolicyFunc func(children []Measurable, c Constraints) (Size, error)

func (f MeasurePolicyFunc) Measure(children []Measurable, c Constraints) (Size, error) {
	return f(children, c)
}

// fillPolicy is the default: measure every child under the same constraints
// and wrap the largest.
type fillPolicy struct{}

func (fillPolicy) Measure(children []Measurable, c Constraints) (Size, error) {
	var s Size
	for _, ch := range children {
		cs, err := ch.Measure(c)
		if err != nil {
			return Size{}, err
		}
		if cs.Width > s.Width {
			s.Width = cs.Width
		}
		if cs.Height > s.Height {
			s.Height = cs.Height
		}
	}
	return c.Constrain(s), nil
}

func (fillPolicy) MinIntrinsicWidth(children []Measurable, height int) (int, error) {
	w := 0
	for _, ch := range children {
		cw, err := MinIntrinsicWidthOf(ch, height)
		if err != nil {
			return 0, err
		}
		if cw > w {
			w = cw
		}
	}
	return w, nil
}

func (fillPolicy) MinIntrinsicHeight(children []Measurable, width int) (int, error) {
	h := 0
	for _, ch := range children {
		v, err := MinIntrinsicHeightOf(ch, width)
		if err != nil {
			return 0, err
		}
		if v > h {
			h = v
		}
	}
	return h, nil
}
