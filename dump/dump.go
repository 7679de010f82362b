// Package dump captures per-rank snapshots of a distributed mesh for
// inspection and regression diffing. A snapshot is plain data; it can
// be written as YAML for golden comparisons or into SQLite for ad-hoc
// queries across runs.
package dump

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/vijaysm/halo-exchange/mesh"
	"github.com/vijaysm/halo-exchange/parallel"
)

// Snapshot is one rank's view of its mesh at a point in time.
type Snapshot struct {
	RunID    string    `yaml:"run_id"`
	Rank     int       `yaml:"rank"`
	Size     int       `yaml:"size"`
	Dim      int       `yaml:"dim"`
	Counts   []int     `yaml:"counts"`
	Entities []Entity  `yaml:"entities"`
	Tags     []TagDump `yaml:"tags,omitempty"`
}

// Entity records one entity's parallel state. Vertices carry their
// global id and coordinates; higher dimensions carry -1 and their
// centroid.
type Entity struct {
	Dim      int        `yaml:"dim"`
	Index    int        `yaml:"index"`
	GID      int64      `yaml:"gid"`
	Status   string     `yaml:"status"`
	Owner    int        `yaml:"owner"`
	Ranks    []int      `yaml:"ranks,omitempty"`
	Layer    int        `yaml:"layer"`
	Source   int        `yaml:"source"`
	Centroid [3]float64 `yaml:"centroid,flow"`
}

// TagDump records every entity's entry for one tag.
type TagDump struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Width   int      `yaml:"width"`
	Entries []TagRow `yaml:"entries"`
}

// TagRow is one entity's tag entry, decoded into the matching column.
type TagRow struct {
	Dim    int       `yaml:"dim"`
	Index  int       `yaml:"index"`
	Floats []float64 `yaml:"floats,omitempty,flow"`
	Ints   []int64   `yaml:"ints,omitempty,flow"`
}

// Capture records the rank's view of the mesh: entity statuses, ghost
// provenance, sharing lists and the given tags' entries. It must not
// run concurrently with resolve, ghost construction or exchanges on
// the same Comm.
func Capture(c *parallel.Comm, runID string, tags ...*mesh.Tag) *Snapshot {
	s := c.Store()
	snap := &Snapshot{RunID: runID, Rank: c.Rank(), Size: c.Size(), Dim: s.Dim()}
	for dim := 0; dim <= s.Dim(); dim++ {
		snap.Counts = append(snap.Counts, s.NumEntities(dim))
	}
	for dim := 0; dim <= s.Dim(); dim++ {
		for _, h := range s.EntitiesByDimension(dim).Handles() {
			e := Entity{
				Dim:    dim,
				Index:  h.Index(),
				GID:    -1,
				Status: statusString(s.Status(h)),
				Owner:  c.Rank(),
				Layer:  s.GhostLayer(h),
				Source: s.GhostSource(h),
			}
			if dim == 0 {
				e.GID = s.VertexGID(h)
				e.Centroid[0], e.Centroid[1], e.Centroid[2] = s.Coords(h)
			} else {
				e.Centroid[0], e.Centroid[1], e.Centroid[2] = s.Centroid(h)
			}
			if entry, ok := c.Sharing(h); ok {
				e.Owner = entry.Owner
				e.Ranks = append([]int(nil), entry.Ranks...)
			}
			snap.Entities = append(snap.Entities, e)
		}
	}
	for _, t := range tags {
		td := TagDump{Name: t.Name(), Type: typeString(t.Type()), Width: t.Width()}
		for dim := 0; dim <= s.Dim(); dim++ {
			for _, h := range s.EntitiesByDimension(dim).Handles() {
				td.Entries = append(td.Entries, tagRow(t, h))
			}
		}
		snap.Tags = append(snap.Tags, td)
	}
	return snap
}

func statusString(st mesh.Status) string {
	if st == 0 {
		return "owned"
	}
	names := []struct {
		bit  mesh.Status
		name string
	}{
		{mesh.StatusNotOwned, "not_owned"},
		{mesh.StatusShared, "shared"},
		{mesh.StatusMultishared, "multishared"},
		{mesh.StatusInterface, "interface"},
		{mesh.StatusGhost, "ghost"},
	}
	var parts []string
	for _, n := range names {
		if st&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

func typeString(dt mesh.DataType) string {
	switch dt {
	case mesh.Float32:
		return "float32"
	case mesh.Float64:
		return "float64"
	case mesh.INT32:
		return "int32"
	case mesh.INT64:
		return "int64"
	}
	return "unknown"
}

func tagRow(t *mesh.Tag, h mesh.EntityHandle) TagRow {
	raw := t.Entry(h)
	row := TagRow{Dim: h.Dim(), Index: h.Index()}
	for j := 0; j < t.Width(); j++ {
		switch t.Type() {
		case mesh.Float32:
			bits := binary.LittleEndian.Uint32(raw[j*4:])
			row.Floats = append(row.Floats, float64(math.Float32frombits(bits)))
		case mesh.Float64:
			bits := binary.LittleEndian.Uint64(raw[j*8:])
			row.Floats = append(row.Floats, math.Float64frombits(bits))
		case mesh.INT32:
			row.Ints = append(row.Ints, int64(int32(binary.LittleEndian.Uint32(raw[j*4:]))))
		case mesh.INT64:
			row.Ints = append(row.Ints, int64(binary.LittleEndian.Uint64(raw[j*8:])))
		}
	}
	return row
}
