package snapshot

import "src.weft.dev/pkg/snapid"

// The pinning table tracks, for every live snapshot, the lowest id whose
// records the snapshot may still need to read. The overall lowest pin is the
// threshold below which old state records can be reused.
type pinningTable struct {
	// Sorted ascending. Ids may repeat when several snapshots pin the same id.
	ids []snapid.Id
}

type pinHandle struct {
	id     snapid.Id
	pinned bool
}

func (p *pinningTable) pin(id snapid.Id) pinHandle {
	i := p.search(id)
	p.ids = append(p.ids, 0)
	copy(p.ids[i+1:], p.ids[i:])
	p.ids[i] = id
	return pinHandle{id, true}
}

func (p *pinningTable) release(h *pinHandle) {
	if !h.pinned {
		return
	}
	h.pinned = false
	i := p.search(h.id)
	// Ids repeat; remove one occurrence.
	for p.ids[i] != h.id {
		i++
	}
	p.ids = append(p.ids[:i], p.ids[i+1:]...)
}

// lowest returns the lowest pinned id, or def if nothing is pinned.
func (p *pinningTable) lowest(def snapid.Id) snapid.Id {
	if len(p.ids) == 0 {
		return def
	}
	return p.ids[0]
}

func (p *pinningTable) search(id snapid.Id) int {
	lo, hi := 0, len(p.ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.ids[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
