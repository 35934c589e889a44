package comp

import (
	"fmt"

	"src.weft.dev/pkg/node"
)

// Command is one step of tree surgery produced by composition. Commands are
// journaled in insertion order and applied as a batch after a pass, so a
// test or a tracing host can inspect exactly what a recomposition decided to
// do before it touches the node tree.
type Command interface {
	apply(a node.Applier) error
	String() string
}

// UpdateNode re-pushes a reused node's parameters and calls its Update hook.
// If the update leaves the node needing layout, the dirtiness bubbles to its
// ancestors so the layout pre-pass stays O(1).
type UpdateNode struct {
	ID node.ID
	do func(node.Node)
}

func (c *UpdateNode) apply(a node.Applier) error {
	n, err := a.Get(c.ID)
	if err != nil {
		return err
	}
	if c.do != nil {
		c.do(n)
	}
	n.Update()
	if n.NeedsLayout() {
		return bubble(a, n)
	}
	return nil
}

func (c *UpdateNode) String() string { return fmt.Sprintf("update %d", c.ID) }

// MountNode runs a node's Mount hook, once, after it has been attached.
type MountNode struct {
	ID node.ID
}

func (c *MountNode) apply(a node.Applier) error {
	n, err := a.Get(c.ID)
	if err != nil {
		return err
	}
	n.Mount()
	return nil
}

func (c *MountNode) String() string { return fmt.Sprintf("mount %d", c.ID) }

// UnmountNode runs a node's Unmount hook before removal.
type UnmountNode struct {
	ID node.ID
}

func (c *UnmountNode) apply(a node.Applier) error {
	n, err := a.Get(c.ID)
	if err != nil {
		return err
	}
	n.Unmount()
	return nil
}

func (c *UnmountNode) String() string { return fmt.Sprintf("unmount %d", c.ID) }

// RemoveNode removes a node, and recursively its children, from the applier.
type RemoveNode struct {
	ID node.ID
}

func (c *RemoveNode) apply(a node.Applier) error { return a.Remove(c.ID) }

func (c *RemoveNode) String() string { return fmt.Sprintf("remove %d", c.ID) }

// InsertChild appends a child to a parent's child list.
type InsertChild struct {
	Parent, Child node.ID
}

func (c *InsertChild) apply(a node.Applier) error {
	p, err := a.Get(c.Parent)
	if err != nil {
		return err
	}
	p.InsertChild(c.Child)
	return nil
}

func (c *InsertChild) String() string {
	return fmt.Sprintf("insert %d into %d", c.Child, c.Parent)
}

// RemoveChild removes a child from a parent's child list.
type RemoveChild struct {
	Parent, Child node.ID
}

func (c *RemoveChild) apply(a node.Applier) error {
	p, err := a.Get(c.Parent)
	if err != nil {
		return err
	}
	p.RemoveChild(c.Child)
	return nil
}

func (c *RemoveChild) String() string {
	return fmt.Sprintf("remove %d from %d", c.Child, c.Parent)
}

// MoveChild moves a parent's child from one index to another.
type MoveChild struct {
	Parent   node.ID
	From, To int
}

func (c *MoveChild) apply(a node.Applier) error {
	p, err := a.Get(c.Parent)
	if err != nil {
		return err
	}
	p.MoveChild(c.From, c.To)
	return nil
}

func (c *MoveChild) String() string {
	return fmt.Sprintf("move child of %d: %d -> %d", c.Parent, c.From, c.To)
}

// AttachToParent notifies a child that it gained a parent.
type AttachToParent struct {
	Child, Parent node.ID
}

func (c *AttachToParent) apply(a node.Applier) error {
	n, err := a.Get(c.Child)
	if err != nil {
		return err
	}
	n.OnAttachedToParent(c.Parent)
	return nil
}

func (c *AttachToParent) String() string {
	return fmt.Sprintf("attach %d to %d", c.Child, c.Parent)
}

// RemoveFromParent notifies a child that it lost its parent.
type RemoveFromParent struct {
	Child node.ID
}

func (c *RemoveFromParent) apply(a node.Applier) error {
	n, err := a.Get(c.Child)
	if err != nil {
		return err
	}
	n.OnRemovedFromParent()
	return nil
}

func (c *RemoveFromParent) String() string { return fmt.Sprintf("detach %d", c.Child) }

// BubbleLayoutDirty marks a node and all of its ancestors as needing layout.
type BubbleLayoutDirty struct {
	ID node.ID
}

func (c *BubbleLayoutDirty) apply(a node.Applier) error {
	n, err := a.Get(c.ID)
	if err != nil {
		return err
	}
	n.MarkNeedsLayout()
	return bubble(a, n)
}

func (c *BubbleLayoutDirty) String() string { return fmt.Sprintf("bubble %d", c.ID) }

// bubble marks every ancestor of n as needing layout.
func bubble(a node.Applier, n node.Node) error {
	for {
		pid := n.Parent()
		if pid == node.None {
			return nil
		}
		p, err := a.Get(pid)
		if err != nil {
			return err
		}
		if p.NeedsLayout() {
			return nil
		}
		p.MarkNeedsLayout()
		n = p
	}
}

// ApplyCommands executes a command batch in order, stopping at the first
// error.
func ApplyCommands(a node.Applier, cmds []Command) error {
	for _, c := range cmds {
		if err := c.apply(a); err != nil {
			return fmt.Errorf("applying %q: %w", c, err)
		}
	}
	return nil
}
