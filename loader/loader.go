// Package loader builds each rank's share of a mesh. A global mesh
// description, generated or read from a file, is partitioned by a
// deterministic strategy and only the rank's own cells enter its store;
// the halo machinery later rediscovers the copies at the seams.
package loader

import (
	"fmt"

	"github.com/vijaysm/halo-exchange/mesh"
	"github.com/vijaysm/halo-exchange/partition"
)

// Vertex is one global mesh vertex.
type Vertex struct {
	GID     int64
	X, Y, Z float64
}

// Mesh is a global mesh description before distribution.
type Mesh struct {
	Dim   int
	Verts []Vertex
	// Cells lists each cell's defining vertex global ids, in ring order
	// for surface cells.
	Cells [][]int64
	// Parts optionally carries a partition assignment read from the
	// source file, one rank per cell.
	Parts []int
}

// Generator produces a global mesh description.
type Generator interface {
	Generate() (*Mesh, error)
	Name() string
}

// LoadPartitioned distributes m across size ranks using p and fills s
// with this rank's cells and their vertices. The full assignment is
// returned so callers can report balance.
func LoadPartitioned(s *mesh.Store, m *Mesh, p partition.Partitioner, rank, size int) ([]int, error) {
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("loader: rank %d of %d", rank, size)
	}
	if m.Dim != s.Dim() {
		return nil, fmt.Errorf("loader: %d-dimensional mesh into a %d-dimensional store", m.Dim, s.Dim())
	}

	byGID := make(map[int64]Vertex, len(m.Verts))
	for _, v := range m.Verts {
		if _, dup := byGID[v.GID]; dup {
			return nil, fmt.Errorf("loader: duplicate vertex gid %d", v.GID)
		}
		byGID[v.GID] = v
	}

	cells := make([]partition.Cell, len(m.Cells))
	for i, conn := range m.Cells {
		if err := checkCellShape(m.Dim, len(conn)); err != nil {
			return nil, fmt.Errorf("loader: cell %d: %w", i, err)
		}
		c := partition.Cell{Index: i}
		for _, gid := range conn {
			v, ok := byGID[gid]
			if !ok {
				return nil, fmt.Errorf("loader: cell %d references unknown vertex %d", i, gid)
			}
			c.X += v.X
			c.Y += v.Y
			c.Z += v.Z
		}
		n := float64(len(conn))
		c.X, c.Y, c.Z = c.X/n, c.Y/n, c.Z/n
		cells[i] = c
	}

	assign, err := p.Assign(cells, size)
	if err != nil {
		return nil, err
	}
	if err := partition.Validate(assign, size); err != nil {
		return nil, err
	}

	for i, conn := range m.Cells {
		if assign[i] != rank {
			continue
		}
		verts := make([]mesh.EntityHandle, len(conn))
		for k, gid := range conn {
			v := byGID[gid]
			verts[k], _ = s.AddVertex(gid, v.X, v.Y, v.Z)
		}
		if _, created := s.AddEntity(m.Dim, verts); !created {
			return nil, fmt.Errorf("loader: cell %d appears twice in the mesh", i)
		}
	}
	return assign, nil
}

func checkCellShape(dim, nverts int) error {
	switch dim {
	case 2:
		if nverts == 3 || nverts == 4 {
			return nil
		}
	case 3:
		if nverts == 4 {
			return nil
		}
	}
	return fmt.Errorf("unsupported %d-vertex cell in dimension %d", nverts, dim)
}

// FromFile replays the partition assignment the mesh file carried.
func FromFile(m *Mesh) (partition.Partitioner, error) {
	if len(m.Parts) == 0 {
		return nil, fmt.Errorf("loader: mesh carries no partition data")
	}
	if len(m.Parts) != len(m.Cells) {
		return nil, fmt.Errorf("loader: %d partition entries for %d cells", len(m.Parts), len(m.Cells))
	}
	return fileParts{parts: m.Parts}, nil
}

type fileParts struct {
	parts []int
}

func (f fileParts) Name() string { return "file" }

func (f fileParts) Assign(cells []partition.Cell, ranks int) ([]int, error) {
	if len(cells) != len(f.parts) {
		return nil, fmt.Errorf("loader: file assignment covers %d cells, mesh has %d", len(f.parts), len(cells))
	}
	out := make([]int, len(f.parts))
	copy(out, f.parts)
	return out, nil
}
