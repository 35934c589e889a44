package modifier

import "reflect"

// entry pairs a live node with the element it was last updated from.
type entry struct {
	elem Element
	node Node
}

// Chain is the ordered list of modifier nodes owned by one layout node. The
// head side is outermost; aggregated capability masks accumulate toward the
// head so traversals can skip whole suffixes.
type Chain struct {
	entries []entry
	// invalidate receives the capabilities whose state may have changed
	// after a node is created or updated. The owning layout node wires this
	// to its dirty flags.
	invalidate func(Capability)

	// scratch buffers reused across updates
	matched []entry
	used    []bool
}

// NewChain creates an empty chain reporting invalidations to fn. A nil fn
// drops them.
func NewChain(fn func(Capability)) *Chain {
	if fn == nil {
		fn = func(Capability) {}
	}
	return &Chain{invalidate: fn}
}

// Len returns the number of nodes in the chain.
func (ch *Chain) Len() int { return len(ch.entries) }

// Aggregate returns the combined capability mask of every node in the chain.
func (ch *Chain) Aggregate() Capability {
	if len(ch.entries) == 0 {
		return 0
	}
	return ch.entries[0].node.State().aggregate
}

type matchKey struct {
	typ reflect.Type
	key any
}

// UpdateFromSlice reconciles the chain against a new element list. Matching
// prefers, in order: same type and explicit key, same type and hash with
// element equality, same type alone. Matched nodes are updated in place (or
// skipped when the element is unchanged), unmatched new elements create
// nodes, unmatched old nodes detach. Links and aggregate masks are rebuilt
// afterwards.
func (ch *Chain) UpdateFromSlice(elements []Element) {
	old := ch.entries
	used := ch.used[:0]
	for range old {
		used = append(used, false)
	}

	// Index the old entries three ways (step 1).
	byKey := make(map[matchKey][]int)
	byHash := make(map[matchKey][]int)
	byType := make(map[reflect.Type][]int)
	for i, e := range old {
		t := reflect.TypeOf(e.elem)
		if k, ok := elemKey(e.elem); ok {
			mk := matchKey{t, k}
			byKey[mk] = append(byKey[mk], i)
		}
		if h, ok := elemHash(e.elem); ok {
			mk := matchKey{t, h}
			byHash[mk] = append(byHash[mk], i)
		}
		byType[t] = append(byType[t], i)
	}

	take := func(bucket []int) int {
		for _, i := range bucket {
			if !used[i] {
				return i
			}
		}
		return -1
	}

	next := ch.matched[:0]
	for _, elem := range elements {
		t := reflect.TypeOf(elem)
		i := -1
		// Step 2: best match in priority order.
		if k, ok := elemKey(elem); ok {
			i = take(byKey[matchKey{t, k}])
		}
		if i < 0 {
			if h, ok := elemHash(elem); ok {
				if j := take(byHash[matchKey{t, h}]); j >= 0 && elemEqual(elem, old[j].elem) {
					i = j
				}
			}
		}
		if i < 0 {
			i = take(byType[t])
		}

		if i >= 0 {
			used[i] = true
			n := old[i].node
			st := n.State()
			if !st.attached {
				st.attached = true
				n.OnAttach()
			}
			if !elemEqual(elem, old[i].elem) || forcedUpdate(elem) {
				elem.Update(n)
				ch.invalidate(elem.Capabilities() & autoInvalidate)
			}
			st.caps = elem.Capabilities()
			next = append(next, entry{elem, n})
			continue
		}

		// Step 3: no match, instantiate.
		n := elem.Create()
		st := n.State()
		st.caps = elem.Capabilities()
		st.attached = true
		n.OnAttach()
		elem.Update(n)
		ch.invalidate(elem.Capabilities() & autoInvalidate)
		next = append(next, entry{elem, n})
	}

	// Step 4: detach leftovers.
	for i, e := range old {
		if !used[i] {
			st := e.node.State()
			if st.attached {
				st.attached = false
				e.node.OnDetach()
				ch.invalidate(st.caps & autoInvalidate)
			}
			st.parent, st.child = nil, nil
		}
	}

	// Step 5: splice and rebuild links and aggregates.
	ch.entries = append(ch.entries[:0], next...)
	ch.matched = next[:0]
	ch.used = used[:0]
	ch.relink()
}

// relink rebuilds parent/child links and aggregate masks after a reorder.
func (ch *Chain) relink() {
	agg := Capability(0)
	for i := len(ch.entries) - 1; i >= 0; i-- {
		st := ch.entries[i].node.State()
		agg |= st.caps
		st.aggregate = agg
		if i > 0 {
			st.parent = ch.entries[i-1].node
		} else {
			st.parent = nil
		}
		if i < len(ch.entries)-1 {
			st.child = ch.entries[i+1].node
		} else {
			st.child = nil
		}
	}
}

// Detach detaches every node, leaving the chain empty. Used when the owning
// layout node is removed.
func (ch *Chain) Detach() {
	for _, e := range ch.entries {
		st := e.node.State()
		if st.attached {
			st.attached = false
			e.node.OnDetach()
		}
		st.parent, st.child = nil, nil
	}
	ch.entries = ch.entries[:0]
}

// ForEachForward visits nodes from head to tail until f returns false.
func (ch *Chain) ForEachForward(f func(Node) bool) {
	for _, e := range ch.entries {
		if !f(e.node) {
			return
		}
	}
}

// ForEachMatching visits nodes whose own mask intersects mask, head to tail,
// until f returns false. Whole suffixes are skipped when their aggregate
// mask rules them out.
func (ch *Chain) ForEachMatching(mask Capability, f func(Node) bool) {
	for _, e := range ch.entries {
		st := e.node.State()
		if !st.aggregate.Any(mask) {
			return
		}
		if st.caps.Any(mask) && !f(e.node) {
			return
		}
	}
}

// Head returns the outermost node, or nil for an empty chain.
func (ch *Chain) Head() Node {
	if len(ch.entries) == 0 {
		return nil
	}
	return ch.entries[0].node
}

// Tail returns the innermost node, or nil for an empty chain.
func (ch *Chain) Tail() Node {
	if len(ch.entries) == 0 {
		return nil
	}
	return ch.entries[len(ch.entries)-1].node
}
