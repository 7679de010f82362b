package loader

import (
	"fmt"
	"math"
)

// LatLonSphere generates a quadrilateral band mesh on the unit sphere:
// NLat cell rows by NLon cell columns with periodic longitude. Vertex
// rows sit strictly between the poles so every cell is a proper quad.
type LatLonSphere struct {
	NLat, NLon int
}

func (g LatLonSphere) Name() string { return "latlon-sphere" }

func (g LatLonSphere) Generate() (*Mesh, error) {
	if g.NLat < 1 || g.NLon < 3 {
		return nil, fmt.Errorf("loader: sphere needs at least 1 row and 3 columns, got %dx%d", g.NLat, g.NLon)
	}
	m := &Mesh{Dim: 2}
	rows := g.NLat + 1
	for i := 0; i < rows; i++ {
		lat := -math.Pi/2 + math.Pi*float64(i+1)/float64(rows+1)
		for j := 0; j < g.NLon; j++ {
			lon := 2 * math.Pi * float64(j) / float64(g.NLon)
			m.Verts = append(m.Verts, Vertex{
				GID: g.gid(i, j),
				X:   math.Cos(lat) * math.Cos(lon),
				Y:   math.Cos(lat) * math.Sin(lon),
				Z:   math.Sin(lat),
			})
		}
	}
	for i := 0; i < g.NLat; i++ {
		for j := 0; j < g.NLon; j++ {
			jn := (j + 1) % g.NLon
			m.Cells = append(m.Cells, []int64{
				g.gid(i, j), g.gid(i, jn), g.gid(i+1, jn), g.gid(i+1, j),
			})
		}
	}
	return m, nil
}

func (g LatLonSphere) gid(i, j int) int64 { return int64(i*g.NLon + j) }

// PlanarGrid generates NX by NY unit quads on the z=0 plane.
type PlanarGrid struct {
	NX, NY int
}

func (g PlanarGrid) Name() string { return "planar-grid" }

func (g PlanarGrid) Generate() (*Mesh, error) {
	if g.NX < 1 || g.NY < 1 {
		return nil, fmt.Errorf("loader: grid needs positive extents, got %dx%d", g.NX, g.NY)
	}
	m := &Mesh{Dim: 2}
	for j := 0; j <= g.NY; j++ {
		for i := 0; i <= g.NX; i++ {
			m.Verts = append(m.Verts, Vertex{
				GID: g.gid(i, j),
				X:   float64(i),
				Y:   float64(j),
			})
		}
	}
	for j := 0; j < g.NY; j++ {
		for i := 0; i < g.NX; i++ {
			m.Cells = append(m.Cells, []int64{
				g.gid(i, j), g.gid(i+1, j), g.gid(i+1, j+1), g.gid(i, j+1),
			})
		}
	}
	return m, nil
}

func (g PlanarGrid) gid(i, j int) int64 { return int64(j*(g.NX+1) + i) }
