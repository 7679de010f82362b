// Package partition assigns the cells of a global mesh to ranks before
// any rank loads its share. Every rank runs the same deterministic
// assignment over the same cell list, so the decomposition needs no
// communication.
package partition

import (
	"fmt"
	"sort"
	"strings"
)

// Cell is the partitioning view of one global cell: its position in the
// generator's cell order and its centroid.
type Cell struct {
	Index   int
	X, Y, Z float64
}

// Partitioner maps every global cell to a rank.
type Partitioner interface {
	// Assign returns one rank per cell, each in [0, ranks).
	Assign(cells []Cell, ranks int) ([]int, error)

	// Name identifies the strategy in configs and logs.
	Name() string
}

// Block assigns consecutive runs of cells to each rank, the last rank
// absorbing the remainder.
type Block struct{}

func (Block) Name() string { return "block" }

func (Block) Assign(cells []Cell, ranks int) ([]int, error) {
	if err := checkRanks(ranks); err != nil {
		return nil, err
	}
	per := (len(cells) + ranks - 1) / ranks
	out := make([]int, len(cells))
	for i := range cells {
		r := i / per
		if r >= ranks {
			r = ranks - 1
		}
		out[i] = r
	}
	return out, nil
}

// RoundRobin deals cells to ranks cyclically.
type RoundRobin struct{}

func (RoundRobin) Name() string { return "roundrobin" }

func (RoundRobin) Assign(cells []Cell, ranks int) ([]int, error) {
	if err := checkRanks(ranks); err != nil {
		return nil, err
	}
	out := make([]int, len(cells))
	for i := range cells {
		out[i] = i % ranks
	}
	return out, nil
}

// RCB recursively bisects the cell cloud at the coordinate median of its
// widest axis, splitting the rank range proportionally, so neighboring
// cells tend to land on the same rank. Rank counts need not be powers of
// two.
type RCB struct{}

func (RCB) Name() string { return "rcb" }

func (RCB) Assign(cells []Cell, ranks int) ([]int, error) {
	if err := checkRanks(ranks); err != nil {
		return nil, err
	}
	out := make([]int, len(cells))
	work := make([]int, len(cells))
	for i := range work {
		work[i] = i
	}
	rcbSplit(cells, work, 0, ranks, out)
	return out, nil
}

// rcbSplit assigns the cells listed in work to the rank range
// [lo, lo+n). work is reordered in place.
func rcbSplit(cells []Cell, work []int, lo, n int, out []int) {
	if n == 1 || len(work) == 0 {
		for _, i := range work {
			out[cells[i].Index] = lo
		}
		return
	}
	axis := widestAxis(cells, work)
	sort.Slice(work, func(a, b int) bool {
		ca, cb := axisCoord(cells[work[a]], axis), axisCoord(cells[work[b]], axis)
		if ca != cb {
			return ca < cb
		}
		return cells[work[a]].Index < cells[work[b]].Index
	})
	nl := (n + 1) / 2
	cut := len(work) * nl / n
	rcbSplit(cells, work[:cut], lo, nl, out)
	rcbSplit(cells, work[cut:], lo+nl, n-nl, out)
}

// widestAxis picks the coordinate axis with the largest extent over the
// listed cells.
func widestAxis(cells []Cell, work []int) int {
	var lo, hi [3]float64
	for k, i := range work {
		c := cells[i]
		p := [3]float64{c.X, c.Y, c.Z}
		for a := 0; a < 3; a++ {
			if k == 0 || p[a] < lo[a] {
				lo[a] = p[a]
			}
			if k == 0 || p[a] > hi[a] {
				hi[a] = p[a]
			}
		}
	}
	axis := 0
	for a := 1; a < 3; a++ {
		if hi[a]-lo[a] > hi[axis]-lo[axis] {
			axis = a
		}
	}
	return axis
}

func axisCoord(c Cell, axis int) float64 {
	switch axis {
	case 0:
		return c.X
	case 1:
		return c.Y
	default:
		return c.Z
	}
}

// ByName returns the strategy a config string names.
func ByName(name string) (Partitioner, error) {
	switch strings.ToLower(name) {
	case "block", "":
		return Block{}, nil
	case "roundrobin", "round-robin":
		return RoundRobin{}, nil
	case "rcb":
		return RCB{}, nil
	}
	return nil, fmt.Errorf("partition: unknown strategy %q", name)
}

func checkRanks(ranks int) error {
	if ranks < 1 {
		return fmt.Errorf("partition: %d ranks", ranks)
	}
	return nil
}

// Stats summarizes the load balance of an assignment.
type Stats struct {
	Ranks     int
	Min, Max  int
	Avg       float64
	Imbalance float64 // Max / Avg
}

// Summarize computes per-rank cell counts for an assignment.
func Summarize(assign []int, ranks int) Stats {
	counts := make([]int, ranks)
	for _, r := range assign {
		counts[r]++
	}
	s := Stats{Ranks: ranks, Avg: float64(len(assign)) / float64(ranks)}
	for i, n := range counts {
		if i == 0 || n < s.Min {
			s.Min = n
		}
		if n > s.Max {
			s.Max = n
		}
	}
	if s.Avg > 0 {
		s.Imbalance = float64(s.Max) / s.Avg
	}
	return s
}

// Validate checks that every cell landed on a real rank and every rank
// received at least one cell.
func Validate(assign []int, ranks int) error {
	counts := make([]int, ranks)
	for i, r := range assign {
		if r < 0 || r >= ranks {
			return fmt.Errorf("partition: cell %d assigned to rank %d of %d", i, r, ranks)
		}
		counts[r]++
	}
	for r, n := range counts {
		if n == 0 {
			return fmt.Errorf("partition: rank %d received no cells", r)
		}
	}
	return nil
}
