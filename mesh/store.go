package mesh

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// GlobalKey is the canonical cross-rank identity of an entity: the dimension
// byte followed by the sorted defining-vertex global ids in big-endian form.
// Two ranks holding copies of the same entity always derive the same key.
type GlobalKey string

// KeyOf builds the canonical key for an entity of the given dimension from
// its defining-vertex global ids. The input slice is not modified.
func KeyOf(dim int, gids []int64) GlobalKey {
	sorted := make([]int64, len(gids))
	copy(sorted, gids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	buf := make([]byte, 1+8*len(sorted))
	buf[0] = byte(dim)
	for i, g := range sorted {
		binary.BigEndian.PutUint64(buf[1+8*i:], uint64(g))
	}
	return GlobalKey(buf)
}

// ParseKey decodes a canonical key back into its dimension and sorted
// defining-vertex global ids.
func ParseKey(k GlobalKey) (dim int, gids []int64) {
	b := []byte(k)
	dim = int(b[0])
	gids = make([]int64, (len(b)-1)/8)
	for i := range gids {
		gids[i] = int64(binary.BigEndian.Uint64(b[1+8*i:]))
	}
	return dim, gids
}

// entityTable holds one dimension's entities in parallel slices.
type entityTable struct {
	gid    []int64          // vertex global id (dimension 0 only)
	conn   [][]EntityHandle // defining vertices, ring order for 2D cells (dim > 0)
	coords []float64        // x,y,z triples (dimension 0 only)
	key    []GlobalKey
	status []Status
	layer  []uint8
	source []int
}

func (t *entityTable) count() int { return len(t.status) }

// Store is the rank-local entity database. Entity shape is append-only:
// ghost construction adds entities, nothing ever removes one, and handles
// stay stable for the life of the store.
type Store struct {
	dim    int // topological dimension of the cells (2 or 3)
	tables [4]entityTable

	byKey map[GlobalKey]EntityHandle
	byGID map[int64]EntityHandle
	// v2c maps each vertex to the cells of dimension dim using it, the
	// reverse index behind AdjacentCells.
	v2c     map[EntityHandle][]EntityHandle
	tagData *TagStore
}

// NewStore creates an empty store for a mesh of the given cell dimension.
func NewStore(dim int) *Store {
	if dim < 1 || dim > 3 {
		panic(fmt.Sprintf("mesh: unsupported cell dimension %d", dim))
	}
	s := &Store{
		dim:   dim,
		byKey: make(map[GlobalKey]EntityHandle),
		byGID: make(map[int64]EntityHandle),
		v2c:   make(map[EntityHandle][]EntityHandle),
	}
	s.tagData = newTagStore(s)
	return s
}

// Dim returns the cell dimension of the mesh held by this store.
func (s *Store) Dim() int { return s.dim }

// Tags returns the store's tag database.
func (s *Store) Tags() *TagStore { return s.tagData }

// AddVertex inserts a vertex with its global id and coordinates, returning
// the existing handle when the id is already present.
func (s *Store) AddVertex(gid int64, x, y, z float64) (EntityHandle, bool) {
	if h, ok := s.byGID[gid]; ok {
		return h, false
	}
	t := &s.tables[0]
	h := HandleFrom(0, t.count())
	t.gid = append(t.gid, gid)
	t.coords = append(t.coords, x, y, z)
	t.conn = append(t.conn, nil)
	t.key = append(t.key, KeyOf(0, []int64{gid}))
	t.status = append(t.status, 0)
	t.layer = append(t.layer, 0)
	t.source = append(t.source, -1)
	s.byGID[gid] = h
	s.byKey[t.key[h.Index()]] = h
	return h, true
}

// AddEntity inserts an entity of the given dimension defined by its vertex
// handles (ring order for 2D cells). Insertion is keyed on the canonical
// identity, so re-adding an entity that already exists returns the original
// handle with created=false, the property ghost construction relies on.
func (s *Store) AddEntity(dim int, verts []EntityHandle) (h EntityHandle, created bool) {
	if dim < 1 || dim > s.dim {
		panic(fmt.Sprintf("mesh: entity dimension %d outside store range", dim))
	}
	gids := make([]int64, len(verts))
	for i, v := range verts {
		gids[i] = s.VertexGID(v)
	}
	k := KeyOf(dim, gids)
	if h, ok := s.byKey[k]; ok {
		return h, false
	}
	t := &s.tables[dim]
	h = HandleFrom(dim, t.count())
	conn := make([]EntityHandle, len(verts))
	copy(conn, verts)
	t.conn = append(t.conn, conn)
	t.gid = append(t.gid, 0)
	t.key = append(t.key, k)
	t.status = append(t.status, 0)
	t.layer = append(t.layer, 0)
	t.source = append(t.source, -1)
	s.byKey[k] = h
	if dim == s.dim {
		for _, v := range conn {
			s.v2c[v] = append(s.v2c[v], h)
		}
	}
	return h, true
}

// NumEntities returns the number of entities of one dimension.
func (s *Store) NumEntities(dim int) int { return s.tables[dim].count() }

// EntitiesByDimension returns all entities of one dimension as a set.
func (s *Store) EntitiesByDimension(dim int) *EntitySet {
	t := &s.tables[dim]
	out := &EntitySet{handles: make([]EntityHandle, t.count())}
	for i := range out.handles {
		out.handles[i] = HandleFrom(dim, i)
	}
	return out
}

// Connectivity returns the defining vertex handles of an entity of
// dimension > 0. The returned slice must not be mutated.
func (s *Store) Connectivity(h EntityHandle) []EntityHandle {
	return s.tables[h.Dim()].conn[h.Index()]
}

// VertexGID returns the global id of a vertex.
func (s *Store) VertexGID(h EntityHandle) int64 {
	if h.Dim() != 0 {
		panic("mesh: VertexGID on non-vertex handle")
	}
	return s.tables[0].gid[h.Index()]
}

// VertexByGID looks up a vertex handle by its global id.
func (s *Store) VertexByGID(gid int64) (EntityHandle, bool) {
	h, ok := s.byGID[gid]
	return h, ok
}

// Coords returns the coordinates of a vertex.
func (s *Store) Coords(h EntityHandle) (x, y, z float64) {
	if h.Dim() != 0 {
		panic("mesh: Coords on non-vertex handle")
	}
	c := s.tables[0].coords[h.Index()*3:]
	return c[0], c[1], c[2]
}

// Key returns the canonical cross-rank identity of an entity.
func (s *Store) Key(h EntityHandle) GlobalKey {
	return s.tables[h.Dim()].key[h.Index()]
}

// FindByKey resolves a canonical key to the local handle holding it.
func (s *Store) FindByKey(k GlobalKey) (EntityHandle, bool) {
	h, ok := s.byKey[k]
	return h, ok
}

// Status returns the parallel status bits of an entity.
func (s *Store) Status(h EntityHandle) Status {
	return s.tables[h.Dim()].status[h.Index()]
}

// SetStatus replaces the status bits of an entity.
func (s *Store) SetStatus(h EntityHandle, st Status) {
	s.tables[h.Dim()].status[h.Index()] = st
}

// AddStatus sets the given bits on an entity.
func (s *Store) AddStatus(h EntityHandle, st Status) {
	s.tables[h.Dim()].status[h.Index()] |= st
}

// MarkGhost flags an entity as a ghost copy received from source at the
// given layer and records both in the entity record.
func (s *Store) MarkGhost(h EntityHandle, layer, source int) {
	t := &s.tables[h.Dim()]
	t.status[h.Index()] |= StatusGhost | StatusNotOwned | StatusShared
	t.layer[h.Index()] = uint8(layer)
	t.source[h.Index()] = source
}

// GhostLayer returns the ghost layer index of an entity, 0 for owned ones.
func (s *Store) GhostLayer(h EntityHandle) int {
	return int(s.tables[h.Dim()].layer[h.Index()])
}

// GhostSource returns the rank a ghost entity was copied from, -1 otherwise.
func (s *Store) GhostSource(h EntityHandle) int {
	return s.tables[h.Dim()].source[h.Index()]
}

// CreateSubEntities materializes every sub-entity of the given dimension for
// every cell currently in the store, deduplicating against entities that
// already exist. Returns the number created. Resolution of shared interface
// entities requires the bridge dimension to be populated first.
func (s *Store) CreateSubEntities(dim int) (int, error) {
	if dim < 1 || dim >= s.dim {
		return 0, fmt.Errorf("mesh: sub-entity dimension %d outside 1..%d", dim, s.dim-1)
	}
	created := 0
	for _, cell := range s.EntitiesByDimension(s.dim).Handles() {
		groups, err := s.subEntityVerts(cell, dim)
		if err != nil {
			return created, err
		}
		for _, verts := range groups {
			if _, fresh := s.AddEntity(dim, verts); fresh {
				created++
			}
		}
	}
	return created, nil
}

// SubEntityKeys enumerates the canonical keys of a cell's sub-entities of
// the given dimension without materializing them.
func (s *Store) SubEntityKeys(cell EntityHandle, dim int) ([]GlobalKey, error) {
	if dim == 0 {
		conn := s.Connectivity(cell)
		keys := make([]GlobalKey, len(conn))
		for i, v := range conn {
			keys[i] = s.Key(v)
		}
		return keys, nil
	}
	groups, err := s.subEntityVerts(cell, dim)
	if err != nil {
		return nil, err
	}
	keys := make([]GlobalKey, len(groups))
	for i, verts := range groups {
		gids := make([]int64, len(verts))
		for j, v := range verts {
			gids[j] = s.VertexGID(v)
		}
		keys[i] = KeyOf(dim, gids)
	}
	return keys, nil
}

// subEntityVerts lists the vertex groups defining each sub-entity of a cell.
// 2D cells are vertex rings, so edges are consecutive pairs. 3D supports
// tetrahedra: edges are all pairs and faces all triples of the four corners.
func (s *Store) subEntityVerts(cell EntityHandle, dim int) ([][]EntityHandle, error) {
	conn := s.Connectivity(cell)
	n := len(conn)
	switch s.dim {
	case 2:
		if dim != 1 {
			return nil, fmt.Errorf("mesh: 2D cells have no dimension-%d sub-entities", dim)
		}
		out := make([][]EntityHandle, n)
		for i := 0; i < n; i++ {
			out[i] = []EntityHandle{conn[i], conn[(i+1)%n]}
		}
		return out, nil
	case 3:
		if n != 4 {
			return nil, fmt.Errorf("mesh: only tetrahedral 3D cells supported, got %d vertices", n)
		}
		switch dim {
		case 1:
			out := make([][]EntityHandle, 0, 6)
			for i := 0; i < 4; i++ {
				for j := i + 1; j < 4; j++ {
					out = append(out, []EntityHandle{conn[i], conn[j]})
				}
			}
			return out, nil
		case 2:
			out := make([][]EntityHandle, 0, 4)
			for i := 0; i < 4; i++ {
				face := make([]EntityHandle, 0, 3)
				for j := 0; j < 4; j++ {
					if j != i {
						face = append(face, conn[j])
					}
				}
				out = append(out, face)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("mesh: no dimension-%d sub-entities for %dD cells", dim, s.dim)
}

// AdjacentCells returns the cells adjacent to a bridge entity, meaning the
// bridge's vertex set forms one of the cell's sub-entities of the bridge
// dimension. Bridge vertices reach cells through the vertex-to-cell index.
func (s *Store) AdjacentCells(bridge EntityHandle) (*EntitySet, error) {
	bd := bridge.Dim()
	if bd >= s.dim {
		return nil, fmt.Errorf("mesh: bridge dimension %d not below cell dimension %d", bd, s.dim)
	}
	if bd == 0 {
		return NewEntitySet(s.v2c[bridge]...), nil
	}
	return s.adjacentByKey(bd, s.Key(bridge), s.Connectivity(bridge)[0])
}

// AdjacentCellsByKey resolves adjacency for a bridge entity that may not be
// materialized locally, identified by its canonical key. Keys whose vertices
// are not all present yield an empty set.
func (s *Store) AdjacentCellsByKey(k GlobalKey) (*EntitySet, error) {
	dim, gids := ParseKey(k)
	if dim >= s.dim {
		return nil, fmt.Errorf("mesh: bridge dimension %d not below cell dimension %d", dim, s.dim)
	}
	verts := make([]EntityHandle, len(gids))
	for i, g := range gids {
		h, ok := s.byGID[g]
		if !ok {
			return &EntitySet{}, nil
		}
		verts[i] = h
	}
	if dim == 0 {
		return NewEntitySet(s.v2c[verts[0]]...), nil
	}
	return s.adjacentByKey(dim, k, verts[0])
}

// adjacentByKey scans the cells around one bridge vertex for those whose
// sub-entities include the bridge key.
func (s *Store) adjacentByKey(bridgeDim int, k GlobalKey, vertex EntityHandle) (*EntitySet, error) {
	out := &EntitySet{}
	for _, cell := range s.v2c[vertex] {
		keys, err := s.SubEntityKeys(cell, bridgeDim)
		if err != nil {
			return nil, err
		}
		for _, ck := range keys {
			if ck == k {
				out.Add(cell)
				break
			}
		}
	}
	return out, nil
}
