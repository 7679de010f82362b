// Package parallel implements the distributed side of halo exchange: it
// resolves which ranks share which entities, grows ghost layers across
// partition boundaries, and synchronizes tag values from owners to their
// remote copies.
//
// All operations are collective: every rank of the group must call them in
// the same order. The fixed sequence is resolve, build ghost layers, then
// any number of tag exchanges.
package parallel

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/rs/zerolog"

	"github.com/vijaysm/halo-exchange/comm"
	"github.com/vijaysm/halo-exchange/mesh"
)

// ErrTopologyConflict reports contradictory cross-rank topology: two ranks
// claiming ownership of the same entity, or sharing metadata still in flux
// after the correction pass limit.
var ErrTopologyConflict = errors.New("parallel: contradictory partition topology")

// Protocol message tags. Tag 0 is reserved by the transport handshake.
const (
	tagResolveClaim = iota + 1
	tagResolveVerdict
	tagGhostRequest
	tagGhostCells
	tagGhostAck
	tagCorrectRegister
	tagCorrectVerdict
	tagExchangePlan
	tagExchangeData
)

// DefaultMaxCorrectionPasses bounds the thin-layer correction loop. The
// loop normally settles in two passes; the bound exists to turn metadata
// that never stops changing into a hard error instead of an endless loop.
const DefaultMaxCorrectionPasses = 5

// SharedEntry is the cross-rank record of one shared entity: its owner,
// every rank holding a copy, and the holders' local handles where known.
type SharedEntry struct {
	Owner int
	Ranks []int // sorted, self included
	// remote maps a holder rank to the entity's handle on that rank.
	remote map[int]mesh.EntityHandle
}

// RemoteHandle returns the entity's handle on the given rank, if known.
func (e *SharedEntry) RemoteHandle(rank int) (mesh.EntityHandle, bool) {
	h, ok := e.remote[rank]
	return h, ok
}

func (e *SharedEntry) holds(rank int) bool {
	i := sort.SearchInts(e.Ranks, rank)
	return i < len(e.Ranks) && e.Ranks[i] == rank
}

// equal reports whether two entries carry identical metadata.
func (e *SharedEntry) equal(o *SharedEntry) bool {
	if e.Owner != o.Owner || len(e.Ranks) != len(o.Ranks) || len(e.remote) != len(o.remote) {
		return false
	}
	for i, r := range e.Ranks {
		if o.Ranks[i] != r {
			return false
		}
	}
	for r, h := range e.remote {
		if oh, ok := o.remote[r]; !ok || oh != h {
			return false
		}
	}
	return true
}

// Config tunes a Comm beyond its endpoint and store.
type Config struct {
	// MaxCorrectionPasses caps the thin-layer correction loop; zero means
	// DefaultMaxCorrectionPasses.
	MaxCorrectionPasses int
	Logger              zerolog.Logger
}

// Comm ties one rank's entity store to the process group and carries the
// sharing metadata both the ghost builder and the exchange engine read.
// Sharing metadata is a rank-local replica kept consistent by the resolve
// and correction rounds, never a shared structure.
type Comm struct {
	ep    comm.Endpoint
	store *mesh.Store
	log   zerolog.Logger

	maxPasses int

	// shared holds one entry per locally held shared entity.
	shared map[mesh.EntityHandle]*SharedEntry
	// vertexHolders maps a vertex global id to the ranks known to hold a
	// copy, the hint set that targets ghost requests.
	vertexHolders map[int64]map[int]struct{}

	// generation counts topology mutations; exchange plans cache against
	// it and rebuild when stale.
	generation uint64
	plan       *exchangePlan
}

// New wraps an endpoint and a store into a parallel mesh communicator.
func New(ep comm.Endpoint, store *mesh.Store, cfg Config) *Comm {
	passes := cfg.MaxCorrectionPasses
	if passes <= 0 {
		passes = DefaultMaxCorrectionPasses
	}
	return &Comm{
		ep:            ep,
		store:         store,
		log:           cfg.Logger.With().Int("rank", ep.Rank()).Logger(),
		maxPasses:     passes,
		shared:        make(map[mesh.EntityHandle]*SharedEntry),
		vertexHolders: make(map[int64]map[int]struct{}),
	}
}

// Rank returns the local rank id.
func (c *Comm) Rank() int { return c.ep.Rank() }

// Size returns the process group size.
func (c *Comm) Size() int { return c.ep.Size() }

// Store returns the entity store this communicator manages.
func (c *Comm) Store() *mesh.Store { return c.store }

// Sharing returns the sharing record of an entity, if it is shared.
func (c *Comm) Sharing(h mesh.EntityHandle) (*SharedEntry, bool) {
	e, ok := c.shared[h]
	return e, ok
}

// SharedEntities returns every locally held shared entity.
func (c *Comm) SharedEntities() *mesh.EntitySet {
	out := mesh.NewEntitySet()
	for h := range c.shared {
		out.Add(h)
	}
	return out
}

// Neighbors returns the ranks this rank shares at least one entity with.
func (c *Comm) Neighbors() []int {
	seen := make(map[int]struct{})
	for _, e := range c.shared {
		for _, r := range e.Ranks {
			if r != c.Rank() {
				seen[r] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// homeRank deterministically assigns a rendezvous rank to a key so every
// holder of the same entity routes its claim to the same place.
func homeRank(k mesh.GlobalKey, size int) int {
	h := fnv.New64a()
	h.Write([]byte(k))
	return int(h.Sum64() % uint64(size))
}

// markVertexHolder records that rank holds a copy of the vertex.
func (c *Comm) markVertexHolder(gid int64, rank int) {
	set, ok := c.vertexHolders[gid]
	if !ok {
		set = make(map[int]struct{})
		c.vertexHolders[gid] = set
	}
	set[rank] = struct{}{}
}

// holderTargets intersects the holder hints of a bridge key's vertices:
// the ranks that plausibly hold entities adjacent to it. Self is excluded.
func (c *Comm) holderTargets(k mesh.GlobalKey) []int {
	_, gids := mesh.ParseKey(k)
	var out []int
	for i, gid := range gids {
		set := c.vertexHolders[gid]
		if len(set) == 0 {
			return nil
		}
		if i == 0 {
			for r := range set {
				if r != c.Rank() {
					out = append(out, r)
				}
			}
			continue
		}
		kept := out[:0]
		for _, r := range out {
			if _, ok := set[r]; ok {
				kept = append(kept, r)
			}
		}
		out = kept
		if len(out) == 0 {
			return nil
		}
	}
	sort.Ints(out)
	return out
}

// setSharing installs an authoritative sharing record for a local entity,
// refreshing status bits and holder hints. Reports whether the record
// changed.
func (c *Comm) setSharing(h mesh.EntityHandle, entry *SharedEntry) bool {
	prev, had := c.shared[h]
	if had && prev.equal(entry) {
		return false
	}
	c.shared[h] = entry

	st := c.store.Status(h)
	st |= mesh.StatusShared
	if len(entry.Ranks) > 2 {
		st |= mesh.StatusMultishared
	} else {
		st &^= mesh.StatusMultishared
	}
	if entry.Owner == c.Rank() {
		st &^= mesh.StatusNotOwned
	} else {
		st |= mesh.StatusNotOwned
	}
	c.store.SetStatus(h, st)

	if h.Dim() == 0 {
		gid := c.store.VertexGID(h)
		for _, r := range entry.Ranks {
			c.markVertexHolder(gid, r)
		}
	}
	return true
}

// ensureSharing returns the entity's sharing entry, creating a minimal
// self-owned one when absent.
func (c *Comm) ensureSharing(h mesh.EntityHandle) *SharedEntry {
	if e, ok := c.shared[h]; ok {
		return e
	}
	e := &SharedEntry{
		Owner:  c.Rank(),
		Ranks:  []int{c.Rank()},
		remote: make(map[int]mesh.EntityHandle),
	}
	c.shared[h] = e
	return e
}

// addHolder extends an entry with one more holding rank and its handle.
func (c *Comm) addHolder(h mesh.EntityHandle, entry *SharedEntry, rank int, remote mesh.EntityHandle) {
	if !entry.holds(rank) {
		entry.Ranks = append(entry.Ranks, rank)
		sort.Ints(entry.Ranks)
	}
	if remote.IsValid() {
		entry.remote[rank] = remote
	}
	st := c.store.Status(h)
	st |= mesh.StatusShared
	if len(entry.Ranks) > 2 {
		st |= mesh.StatusMultishared
	}
	c.store.SetStatus(h, st)
}

// sendAll delivers one payload per rank, self included, so receive loops
// can run a fixed deterministic schedule.
func (c *Comm) sendAll(tag int, payloads [][]byte) error {
	for r := 0; r < c.Size(); r++ {
		if err := c.ep.Send(r, tag, payloads[r]); err != nil {
			return fmt.Errorf("parallel: send phase %d to rank %d: %w", tag, r, err)
		}
	}
	return nil
}

// recvAll collects one payload per rank in rank order.
func (c *Comm) recvAll(tag int, handle func(from int, payload []byte) error) error {
	for r := 0; r < c.Size(); r++ {
		payload, err := c.ep.Recv(r, tag)
		if err != nil {
			return fmt.Errorf("parallel: recv phase %d from rank %d: %w", tag, r, err)
		}
		if err := handle(r, payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Comm) allReduceSum(v int) (int64, error) {
	return comm.AllReduce(c.ep, int64(v), comm.ReduceSum)
}
