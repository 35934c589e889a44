// Package snapid defines snapshot ids and an immutable set of them.
//
// Snapshot ids are allocated from a monotonically increasing counter. A
// snapshot carries a Set of the ids that are invisible to it; the set is
// consulted on every state read, so it is kept compact and copy-on-write,
// making it safe to share between a snapshot and its children.
package snapid

import (
	"fmt"
	"math"
	"math/bits"
	"sort"
	"strings"
)

// Id identifies a snapshot.
type Id int64

const (
	// Invalid is never assigned to a snapshot. Records stamped with it are
	// unreadable from every snapshot.
	Invalid Id = 0
	// Preexisting is the id of records that predate all snapshots. Every
	// state object keeps exactly one reachable record with this id.
	Preexisting Id = 1
	// Max is greater than any id the allocator will produce. Stamping a
	// record with Max hides it until its real id is assigned.
	Max Id = math.MaxInt64
)

const (
	chunkBits = 6
	chunkSize = 1 << chunkBits // ids per chunk
	chunkMask = chunkSize - 1
)

// A chunk covers ids [base, base+chunkSize).
type chunk struct {
	base Id
	bits uint64
}

// Set is an immutable ordered set of snapshot ids. The zero value is the
// empty set. All methods are value-receiver and return derived sets without
// mutating the receiver, so a Set may be shared freely.
//
// The representation is a sorted slice of 64-bit chunks, which handles ids
// sparsely scattered over the full Id range; membership is O(log n) in the
// number of chunks and derivation copies only the chunk slice.
type Set struct {
	chunks []chunk
}

// Empty is an empty Set.
var Empty = Set{}

// search returns the position of the chunk with the given base, or the
// position it would be inserted at.
func (s Set) search(base Id) int {
	return sort.Search(len(s.chunks), func(i int) bool {
		return s.chunks[i].base >= base
	})
}

// Has reports whether id is in the set.
func (s Set) Has(id Id) bool {
	base := id &^ chunkMask
	i := s.search(base)
	if i == len(s.chunks) || s.chunks[i].base != base {
		return false
	}
	return s.chunks[i].bits&(1<<uint(id&chunkMask)) != 0
}

// Set returns an almost identical Set, with the given id added.
func (s Set) Set(id Id) Set {
	base := id &^ chunkMask
	bit := uint64(1) << uint(id&chunkMask)
	i := s.search(base)
	if i < len(s.chunks) && s.chunks[i].base == base {
		if s.chunks[i].bits&bit != 0 {
			return s
		}
		chunks := make([]chunk, len(s.chunks))
		copy(chunks, s.chunks)
		chunks[i].bits |= bit
		return Set{chunks}
	}
	chunks := make([]chunk, len(s.chunks)+1)
	copy(chunks, s.chunks[:i])
	chunks[i] = chunk{base, bit}
	copy(chunks[i+1:], s.chunks[i:])
	return Set{chunks}
}

// Clear returns an almost identical Set, with the given id removed.
func (s Set) Clear(id Id) Set {
	base := id &^ chunkMask
	bit := uint64(1) << uint(id&chunkMask)
	i := s.search(base)
	if i == len(s.chunks) || s.chunks[i].base != base || s.chunks[i].bits&bit == 0 {
		return s
	}
	if s.chunks[i].bits == bit {
		// Chunk becomes empty; drop it.
		if len(s.chunks) == 1 {
			return Empty
		}
		chunks := make([]chunk, len(s.chunks)-1)
		copy(chunks, s.chunks[:i])
		copy(chunks[i:], s.chunks[i+1:])
		return Set{chunks}
	}
	chunks := make([]chunk, len(s.chunks))
	copy(chunks, s.chunks)
	chunks[i].bits &^= bit
	return Set{chunks}
}

// IsEmpty reports whether the set contains no ids.
func (s Set) IsEmpty() bool { return len(s.chunks) == 0 }

// Lowest returns the smallest id in the set, or def if the set is empty.
func (s Set) Lowest(def Id) Id {
	if len(s.chunks) == 0 {
		return def
	}
	c := s.chunks[0]
	return c.base + Id(bits.TrailingZeros64(c.bits))
}

// Union returns the set of ids present in either set.
func (s Set) Union(t Set) Set {
	if len(s.chunks) == 0 {
		return t
	}
	if len(t.chunks) == 0 {
		return s
	}
	var chunks []chunk
	i, j := 0, 0
	for i < len(s.chunks) && j < len(t.chunks) {
		a, b := s.chunks[i], t.chunks[j]
		switch {
		case a.base < b.base:
			chunks = append(chunks, a)
			i++
		case a.base > b.base:
			chunks = append(chunks, b)
			j++
		default:
			chunks = append(chunks, chunk{a.base, a.bits | b.bits})
			i++
			j++
		}
	}
	chunks = append(chunks, s.chunks[i:]...)
	chunks = append(chunks, t.chunks[j:]...)
	return Set{chunks}
}

// AndNot returns the set of ids present in s but not in t.
func (s Set) AndNot(t Set) Set {
	if len(s.chunks) == 0 || len(t.chunks) == 0 {
		return s
	}
	var chunks []chunk
	j := 0
	for _, a := range s.chunks {
		for j < len(t.chunks) && t.chunks[j].base < a.base {
			j++
		}
		bits := a.bits
		if j < len(t.chunks) && t.chunks[j].base == a.base {
			bits &^= t.chunks[j].bits
		}
		if bits != 0 {
			chunks = append(chunks, chunk{a.base, bits})
		}
	}
	if chunks == nil {
		return Empty
	}
	return Set{chunks}
}

// Each calls f for every id in the set, in increasing order.
func (s Set) Each(f func(Id)) {
	for _, c := range s.chunks {
		b := c.bits
		for b != 0 {
			f(c.base + Id(bits.TrailingZeros64(b)))
			b &= b - 1
		}
	}
}

// Equal reports whether two sets contain the same ids.
func (s Set) Equal(t Set) bool {
	if len(s.chunks) != len(t.chunks) {
		return false
	}
	for i, c := range s.chunks {
		if c != t.chunks[i] {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	s.Each(func(id Id) {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		fmt.Fprint(&sb, int64(id))
	})
	sb.WriteByte('}')
	return sb.String()
}
