package parallel

import (
	"fmt"
	"sort"

	"github.com/vijaysm/halo-exchange/mesh"
)

// sendRec pairs an owned entity with its handle on one receiving rank.
type sendRec struct {
	local  mesh.EntityHandle
	remote mesh.EntityHandle
}

// exchangePlan caches, per peer, which owned entities this rank feeds and
// how many entities per dimension each peer will feed it. The plan stays
// valid until the sharing or ghost state changes.
type exchangePlan struct {
	generation uint64
	sendTo     [][]sendRec
	peerCount  [][4]int
}

// buildPlan derives the exchange plan from the sharing table and swaps
// per-dimension send counts with every peer, so each side knows exactly
// which ranks will talk to it. Collective.
func (c *Comm) buildPlan() (*exchangePlan, error) {
	if c.plan != nil && c.plan.generation == c.generation {
		return c.plan, nil
	}

	p := &exchangePlan{
		generation: c.generation,
		sendTo:     make([][]sendRec, c.Size()),
		peerCount:  make([][4]int, c.Size()),
	}
	for h, e := range c.shared {
		if e.Owner != c.Rank() {
			continue
		}
		for _, r := range e.Ranks {
			if r == c.Rank() {
				continue
			}
			rh, ok := e.RemoteHandle(r)
			if !ok {
				// Holder known but not yet addressable; it settles on the
				// next correction pass.
				continue
			}
			p.sendTo[r] = append(p.sendTo[r], sendRec{local: h, remote: rh})
		}
	}
	for r := range p.sendTo {
		sort.Slice(p.sendTo[r], func(i, j int) bool {
			return p.sendTo[r][i].local < p.sendTo[r][j].local
		})
	}

	msgs := make([][]byte, c.Size())
	for r := range msgs {
		var counts [4]uint32
		for _, rec := range p.sendTo[r] {
			counts[rec.local.Dim()]++
		}
		for _, n := range counts {
			msgs[r] = appendU32(msgs[r], n)
		}
	}
	if err := c.sendAll(tagExchangePlan, msgs); err != nil {
		return nil, err
	}
	err := c.recvAll(tagExchangePlan, func(from int, payload []byte) error {
		if from == c.Rank() {
			return nil
		}
		rd := newWireReader(payload)
		for d := 0; d < 4; d++ {
			p.peerCount[from][d] = int(rd.u32())
		}
		return rd.err
	})
	if err != nil {
		return nil, err
	}

	c.plan = p
	return p, nil
}

// Exchange pushes the owners' tag values to every remote copy of the
// shared and ghost entities whose dimensions appear in set. Collective:
// all ranks must call it with sets covering the same dimensions and a tag
// of the same name and shape. Owned values are never overwritten.
func (c *Comm) Exchange(t *mesh.Tag, set *mesh.EntitySet) error {
	plan, err := c.buildPlan()
	if err != nil {
		return err
	}

	var dims [4]bool
	for _, h := range set.Handles() {
		dims[h.Dim()] = true
	}

	for r := 0; r < c.Size(); r++ {
		payload := c.packTagValues(t, plan.sendTo[r], dims)
		if payload == nil {
			continue
		}
		if err := c.ep.Send(r, tagExchangeData, payload); err != nil {
			return fmt.Errorf("parallel: exchange %q to rank %d: %w", t.Name(), r, err)
		}
	}

	for r := 0; r < c.Size(); r++ {
		if r == c.Rank() || !expectsData(plan.peerCount[r], dims) {
			continue
		}
		payload, err := c.ep.Recv(r, tagExchangeData)
		if err != nil {
			return fmt.Errorf("parallel: exchange %q from rank %d: %w", t.Name(), r, err)
		}
		if err := c.unpackTagValues(t, r, payload); err != nil {
			return err
		}
	}

	c.log.Debug().Str("tag", t.Name()).Msg("tag exchange complete")
	return nil
}

// packTagValues serializes the tag entries of the plan records matching
// the requested dimensions, nil when none match.
func (c *Comm) packTagValues(t *mesh.Tag, recs []sendRec, dims [4]bool) []byte {
	n := 0
	for _, rec := range recs {
		if dims[rec.local.Dim()] {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	buf := appendKey(nil, mesh.GlobalKey(t.Name()))
	buf = appendU32(buf, uint32(t.EntrySize()))
	buf = appendU32(buf, uint32(n))
	for _, rec := range recs {
		if !dims[rec.local.Dim()] {
			continue
		}
		buf = appendU64(buf, uint64(rec.remote))
		buf = t.AppendEntry(buf, rec.local)
	}
	return buf
}

func (c *Comm) unpackTagValues(t *mesh.Tag, from int, payload []byte) error {
	rd := newWireReader(payload)
	name := string(rd.key())
	size := int(rd.u32())
	n := int(rd.u32())
	if rd.err != nil {
		return rd.err
	}
	if name != t.Name() || size != t.EntrySize() {
		return fmt.Errorf("parallel: rank %d sent tag %q (%d bytes), expected %q (%d bytes): %w",
			from, name, size, t.Name(), t.EntrySize(), mesh.ErrTagMismatch)
	}
	for i := 0; i < n; i++ {
		h := rd.handle()
		raw := rd.take(size)
		if rd.err != nil {
			return rd.err
		}
		if c.store.Status(h)&mesh.StatusNotOwned == 0 {
			return fmt.Errorf("parallel: rank %d addressed owned entity during tag exchange", from)
		}
		if err := t.SetEntry(h, raw); err != nil {
			return err
		}
	}
	return rd.err
}

// expectsData reports whether a peer advertising the given per-dimension
// counts will send anything for the requested dimensions.
func expectsData(counts [4]int, dims [4]bool) bool {
	for d, want := range dims {
		if want && counts[d] > 0 {
			return true
		}
	}
	return false
}
