package loader

import (
	"fmt"

	"github.com/notargets/gocfd/DG3D/mesh/readers"
	"github.com/notargets/gocfd/DG3D/tetrahedra/tetelement"
)

// ReadTetMeshFile reads a tetrahedral mesh file through the gocfd
// readers and lifts it into a global description. Supported formats are
// whatever the readers recognize; anything else fails at read time.
func ReadTetMeshFile(path string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	// Only the vertex and connectivity tables are consumed, so the
	// lowest polynomial order suffices.
	el, err := tetelement.NewElement3DFromMesh(1, msh)
	if err != nil {
		return nil, fmt.Errorf("loader: build elements for %s: %w", path, err)
	}
	dg := el.DG3D
	m := &Mesh{Dim: 3}
	for i := range dg.VX {
		m.Verts = append(m.Verts, Vertex{
			GID: int64(i),
			X:   dg.VX[i],
			Y:   dg.VY[i],
			Z:   dg.VZ[i],
		})
	}
	for k, conn := range dg.EToV {
		if len(conn) != 4 {
			return nil, fmt.Errorf("loader: element %d in %s is not a tetrahedron", k, path)
		}
		cell := make([]int64, 4)
		for i, v := range conn {
			cell[i] = int64(v)
		}
		m.Cells = append(m.Cells, cell)
	}
	return m, nil
}
