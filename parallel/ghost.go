package parallel

import (
	"fmt"

	"github.com/vijaysm/halo-exchange/mesh"
)

// ghostReqKey dedupes bridge requests per target rank across rounds.
type ghostReqKey struct {
	rank int
	key  mesh.GlobalKey
}

// vertexDef carries one vertex of a ghost cell definition.
type vertexDef struct {
	gid     int64
	x, y, z float64
}

// cellRecord is one ghost cell definition on the wire: the true owner,
// the sender's and owner's local handles, and the defining vertices in
// ring order.
type cellRecord struct {
	owner       int
	srcHandle   mesh.EntityHandle
	ownerHandle mesh.EntityHandle
	verts       []vertexDef
}

// BuildGhostLayers grows depth layers of ghost cells around the owned
// region. Cells are pulled layer by layer: each round, boundary cells
// reach across bridgeDim-dimensional bridge entities to ranks holding
// the far side, and the far side answers with full cell definitions.
// Between rounds the thin-layer correction pass (correctSharing) settles
// sharing metadata so partitions shallower than depth stay consistent.
//
// targetDim names the dimension being ghosted and must equal the store's
// cell dimension. depth 0 is a no-op. Each call walks layers 1..depth
// against the current entity state: rings already present run as empty
// rounds, so repeating a build inserts nothing new and a deeper build
// extends the halo from the rings built before.
func (c *Comm) BuildGhostLayers(targetDim, bridgeDim, depth int) error {
	if depth < 0 {
		return fmt.Errorf("parallel: ghost depth %d below 0", depth)
	}
	if targetDim != c.store.Dim() {
		return fmt.Errorf("parallel: ghost target dimension %d, store holds %d-dimensional cells",
			targetDim, c.store.Dim())
	}
	if bridgeDim < 0 || bridgeDim >= targetDim {
		return fmt.Errorf("parallel: bridge dimension %d outside 0..%d", bridgeDim, targetDim-1)
	}
	if depth == 0 {
		c.log.Debug().Msg("ghost depth 0, nothing to build")
		return nil
	}

	requested := make(map[ghostReqKey]struct{})
	for layer := 1; layer <= depth; layer++ {
		added, err := c.buildLayer(bridgeDim, layer, requested)
		if err != nil {
			return fmt.Errorf("parallel: ghost layer %d: %w", layer, err)
		}
		total, err := c.allReduceSum(added)
		if err != nil {
			return err
		}
		c.log.Debug().Int("layer", layer).Int("added", added).Int64("total", total).
			Msg("ghost layer built")
		if layer < depth {
			if err := c.correctSharing(); err != nil {
				return err
			}
		}
	}

	c.generation++
	c.plan = nil
	return nil
}

// buildLayer runs one request/answer/acknowledge round and returns how
// many ghost cells this rank inserted.
func (c *Comm) buildLayer(bridgeDim, layer int, requested map[ghostReqKey]struct{}) (int, error) {
	// Ask every rank plausibly holding the far side of a frontier bridge.
	reqs := make([][]byte, c.Size())
	for _, cell := range c.frontierCells(layer) {
		keys, err := c.store.SubEntityKeys(cell, bridgeDim)
		if err != nil {
			return 0, err
		}
		for _, bk := range keys {
			for _, target := range c.holderTargets(bk) {
				rk := ghostReqKey{rank: target, key: bk}
				if _, done := requested[rk]; done {
					continue
				}
				requested[rk] = struct{}{}
				reqs[target] = appendKey(reqs[target], bk)
			}
		}
	}
	if err := c.sendAll(tagGhostRequest, reqs); err != nil {
		return 0, err
	}

	// Answer with adjacent cells the requester does not hold yet.
	resps := make([][]byte, c.Size())
	err := c.recvAll(tagGhostRequest, func(from int, payload []byte) error {
		if from == c.Rank() {
			return nil
		}
		rd := newWireReader(payload)
		served := make(map[mesh.EntityHandle]struct{})
		for rd.more() {
			bk := rd.key()
			if rd.err != nil {
				break
			}
			adj, err := c.store.AdjacentCellsByKey(bk)
			if err != nil {
				return err
			}
			for _, cell := range adj.Handles() {
				if _, dup := served[cell]; dup {
					continue
				}
				if e, ok := c.shared[cell]; ok && e.holds(from) {
					continue
				}
				served[cell] = struct{}{}
				resps[from] = c.appendCellRecord(resps[from], cell)
			}
		}
		return rd.err
	})
	if err != nil {
		return 0, err
	}
	if err := c.sendAll(tagGhostCells, resps); err != nil {
		return 0, err
	}

	// Insert what arrived and acknowledge our handles to the sender and
	// the true owner, so both sides of the remote-handle table fill in.
	added := 0
	acks := make([][]byte, c.Size())
	err = c.recvAll(tagGhostCells, func(from int, payload []byte) error {
		rd := newWireReader(payload)
		for rd.more() {
			rec, err := readCellRecord(rd)
			if err != nil {
				return err
			}
			h, fresh := c.insertGhostCell(rec, from, layer, acks)
			if fresh {
				added++
			}
			ackRec := appendKey(nil, c.store.Key(h))
			ackRec = appendU64(ackRec, uint64(h))
			acks[from] = append(acks[from], ackRec...)
			if rec.owner != from && rec.owner != c.Rank() {
				acks[rec.owner] = append(acks[rec.owner], ackRec...)
			}
		}
		return rd.err
	})
	if err != nil {
		return 0, err
	}
	if err := c.sendAll(tagGhostAck, acks); err != nil {
		return 0, err
	}

	err = c.recvAll(tagGhostAck, func(from int, payload []byte) error {
		rd := newWireReader(payload)
		for rd.more() {
			k := rd.key()
			theirs := rd.handle()
			if rd.err != nil {
				break
			}
			h, ok := c.store.FindByKey(k)
			if !ok {
				return fmt.Errorf("parallel: ack from rank %d for unknown entity key", from)
			}
			c.addHolder(h, c.ensureSharing(h), from, theirs)
			if h.Dim() == 0 {
				c.markVertexHolder(c.store.VertexGID(h), from)
			}
		}
		return rd.err
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// frontierCells lists the cells whose bridges reach into the next layer:
// owned cells for the first round, last round's ghosts afterwards.
func (c *Comm) frontierCells(layer int) []mesh.EntityHandle {
	var out []mesh.EntityHandle
	for _, h := range c.store.EntitiesByDimension(c.store.Dim()).Handles() {
		st := c.store.Status(h)
		if layer == 1 {
			if st&(mesh.StatusGhost|mesh.StatusNotOwned) == 0 {
				out = append(out, h)
			}
			continue
		}
		if st&mesh.StatusGhost != 0 && c.store.GhostLayer(h) == layer-1 {
			out = append(out, h)
		}
	}
	return out
}

// appendCellRecord serializes one local cell for a requester: true owner,
// our handle, the owner's handle where known, and the vertex ring with
// coordinates.
func (c *Comm) appendCellRecord(dst []byte, cell mesh.EntityHandle) []byte {
	owner := c.Rank()
	ownerHandle := cell
	if e, ok := c.shared[cell]; ok {
		owner = e.Owner
		if owner != c.Rank() {
			ownerHandle = mesh.InvalidHandle
			if rh, ok := e.RemoteHandle(owner); ok {
				ownerHandle = rh
			}
		}
	}
	conn := c.store.Connectivity(cell)
	dst = appendU16(dst, uint16(owner))
	dst = appendU64(dst, uint64(cell))
	dst = appendU64(dst, uint64(ownerHandle))
	dst = appendU16(dst, uint16(len(conn)))
	for _, v := range conn {
		x, y, z := c.store.Coords(v)
		dst = appendU64(dst, uint64(c.store.VertexGID(v)))
		dst = appendF64(dst, x)
		dst = appendF64(dst, y)
		dst = appendF64(dst, z)
	}
	return dst
}

func readCellRecord(rd *wireReader) (cellRecord, error) {
	var rec cellRecord
	rec.owner = int(rd.u16())
	rec.srcHandle = rd.handle()
	rec.ownerHandle = rd.handle()
	n := int(rd.u16())
	if rd.err != nil {
		return rec, rd.err
	}
	rec.verts = make([]vertexDef, n)
	for i := range rec.verts {
		rec.verts[i] = vertexDef{
			gid: int64(rd.u64()),
			x:   rd.f64(),
			y:   rd.f64(),
			z:   rd.f64(),
		}
	}
	return rec, rd.err
}

// insertGhostCell installs a received cell definition, reusing vertices
// and cells already present. Fresh ghost vertices are acknowledged to the
// sender and owner alongside the cell, so their holder lists fill in too.
func (c *Comm) insertGhostCell(rec cellRecord, from, layer int, acks [][]byte) (mesh.EntityHandle, bool) {
	verts := make([]mesh.EntityHandle, len(rec.verts))
	for i, vd := range rec.verts {
		v, fresh := c.store.AddVertex(vd.gid, vd.x, vd.y, vd.z)
		if fresh {
			c.store.MarkGhost(v, layer, from)
			ackRec := appendKey(nil, c.store.Key(v))
			ackRec = appendU64(ackRec, uint64(v))
			acks[from] = append(acks[from], ackRec...)
			if rec.owner != from && rec.owner != c.Rank() {
				acks[rec.owner] = append(acks[rec.owner], ackRec...)
			}
		}
		c.markVertexHolder(vd.gid, c.Rank())
		c.markVertexHolder(vd.gid, from)
		c.markVertexHolder(vd.gid, rec.owner)
		verts[i] = v
	}

	h, fresh := c.store.AddEntity(c.store.Dim(), verts)
	if fresh {
		c.store.MarkGhost(h, layer, from)
		entry := &SharedEntry{
			Owner:  rec.owner,
			Ranks:  []int{c.Rank()},
			remote: make(map[int]mesh.EntityHandle),
		}
		c.addHolder(h, entry, from, rec.srcHandle)
		if rec.owner != from {
			c.addHolder(h, entry, rec.owner, rec.ownerHandle)
		}
		c.setSharing(h, entry)
		return h, true
	}

	// Already held, perhaps as an interface cell or earlier ghost; only
	// merge the holder knowledge, never flip ownership outside the
	// correction pass.
	entry := c.ensureSharing(h)
	c.addHolder(h, entry, from, rec.srcHandle)
	if rec.owner != from {
		c.addHolder(h, entry, rec.owner, rec.ownerHandle)
	}
	return h, false
}
