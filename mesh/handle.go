// Package mesh implements the rank-local entity store: mesh entities of
// dimension 0..3 with their defining connectivity, coordinates, parallel
// status, and typed per-entity tag data. A Store holds one partition; all
// cross-rank coordination lives in the parallel package.
package mesh

import "sort"

// EntityHandle identifies one entity in a Store. The topological dimension
// lives in the top byte and a 1-based table index in the low bits, so the
// zero value is never a valid handle.
type EntityHandle uint64

const handleDimShift = 56

// InvalidHandle is the zero handle, held by no entity.
const InvalidHandle EntityHandle = 0

// HandleFrom packs a dimension and a zero-based table index into a handle.
func HandleFrom(dim, index int) EntityHandle {
	return EntityHandle(uint64(dim)<<handleDimShift | uint64(index+1))
}

// Dim returns the topological dimension encoded in the handle.
func (h EntityHandle) Dim() int {
	return int(h >> handleDimShift)
}

// Index returns the zero-based table index encoded in the handle.
func (h EntityHandle) Index() int {
	return int(h&((1<<handleDimShift)-1)) - 1
}

// IsValid reports whether the handle refers to an entity at all.
func (h EntityHandle) IsValid() bool {
	return h&((1<<handleDimShift)-1) != 0
}

// EntitySet is an ordered collection of unique entity handles. Iteration
// order is ascending handle order, which groups entities by dimension and
// keeps every cross-rank protocol deterministic.
type EntitySet struct {
	handles []EntityHandle
}

// NewEntitySet builds a set from the given handles, deduplicating them.
func NewEntitySet(hs ...EntityHandle) *EntitySet {
	s := &EntitySet{}
	for _, h := range hs {
		s.Add(h)
	}
	return s
}

// Add inserts a handle, keeping the set sorted. Adding an existing handle is
// a no-op.
func (s *EntitySet) Add(h EntityHandle) {
	i := sort.Search(len(s.handles), func(i int) bool { return s.handles[i] >= h })
	if i < len(s.handles) && s.handles[i] == h {
		return
	}
	s.handles = append(s.handles, 0)
	copy(s.handles[i+1:], s.handles[i:])
	s.handles[i] = h
}

// Contains reports whether h is in the set.
func (s *EntitySet) Contains(h EntityHandle) bool {
	i := sort.Search(len(s.handles), func(i int) bool { return s.handles[i] >= h })
	return i < len(s.handles) && s.handles[i] == h
}

// Len returns the number of handles in the set.
func (s *EntitySet) Len() int { return len(s.handles) }

// Handles returns the sorted handle slice. The slice is shared with the set
// and must not be mutated by the caller.
func (s *EntitySet) Handles() []EntityHandle { return s.handles }

// Union returns a new set containing the handles of both sets.
func (s *EntitySet) Union(o *EntitySet) *EntitySet {
	out := &EntitySet{handles: make([]EntityHandle, len(s.handles))}
	copy(out.handles, s.handles)
	for _, h := range o.handles {
		out.Add(h)
	}
	return out
}

// Intersect returns a new set with the handles present in both sets.
func (s *EntitySet) Intersect(o *EntitySet) *EntitySet {
	out := &EntitySet{}
	a, b := s.handles, o.handles
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out.handles = append(out.handles, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Subtract returns a new set with the handles of s that are not in o.
func (s *EntitySet) Subtract(o *EntitySet) *EntitySet {
	out := &EntitySet{}
	for _, h := range s.handles {
		if !o.Contains(h) {
			out.handles = append(out.handles, h)
		}
	}
	return out
}

// FilterDim returns a new set holding only the handles of dimension dim.
func (s *EntitySet) FilterDim(dim int) *EntitySet {
	out := &EntitySet{}
	for _, h := range s.handles {
		if h.Dim() == dim {
			out.handles = append(out.handles, h)
		}
	}
	return out
}
