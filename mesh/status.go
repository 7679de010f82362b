package mesh

// Status records the parallel state of an entity as a bitmask. The bits
// mirror the classic pstatus convention: an entity with no bits set is a
// purely local, owned entity.
type Status uint8

const (
	// StatusNotOwned marks an entity whose authoritative copy lives on
	// another rank.
	StatusNotOwned Status = 1 << iota
	// StatusShared marks an entity held by at least one other rank.
	StatusShared
	// StatusMultishared marks an entity held by more than two ranks total.
	StatusMultishared
	// StatusInterface marks a shared entity of dimension below the mesh
	// dimension sitting on a partition interface.
	StatusInterface
	// StatusGhost marks an entity copied in during ghost layer construction.
	StatusGhost
)

// FilterOp selects how FilterStatus matches the given bits.
type FilterOp int

const (
	// FilterAnd keeps entities carrying all of the given bits.
	FilterAnd FilterOp = iota
	// FilterOr keeps entities carrying any of the given bits.
	FilterOr
	// FilterNot keeps entities carrying none of the given bits.
	FilterNot
)

// FilterStatus returns the subset of set whose status matches bits under op.
// FilterStatus(cells, StatusNotOwned, FilterNot) yields the owned cells.
func (s *Store) FilterStatus(set *EntitySet, bits Status, op FilterOp) *EntitySet {
	out := &EntitySet{}
	for _, h := range set.Handles() {
		st := s.Status(h)
		keep := false
		switch op {
		case FilterAnd:
			keep = st&bits == bits
		case FilterOr:
			keep = st&bits != 0
		case FilterNot:
			keep = st&bits == 0
		}
		if keep {
			out.handles = append(out.handles, h)
		}
	}
	return out
}
