package comm

import "fmt"

// MemGroup is an in-process group: every rank's endpoint delivers straight
// into the receiver's mailbox. Tests run one goroutine per rank against a
// shared MemGroup.
type MemGroup struct {
	size  int
	boxes []*mailbox
}

// NewMemGroup creates a group of size in-process ranks.
func NewMemGroup(size int) *MemGroup {
	if size < 1 {
		panic(fmt.Sprintf("comm: group size %d below 1", size))
	}
	g := &MemGroup{size: size, boxes: make([]*mailbox, size)}
	for i := range g.boxes {
		g.boxes[i] = newMailbox()
	}
	return g
}

// Endpoint returns the endpoint for one rank of the group.
func (g *MemGroup) Endpoint(rank int) Endpoint {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("comm: rank %d outside group of %d", rank, g.size))
	}
	return &memEndpoint{group: g, rank: rank}
}

type memEndpoint struct {
	group *MemGroup
	rank  int
}

func (e *memEndpoint) Rank() int { return e.rank }
func (e *memEndpoint) Size() int { return e.group.size }

func (e *memEndpoint) Send(to, tag int, payload []byte) error {
	if to < 0 || to >= e.group.size {
		return fmt.Errorf("comm: send to rank %d outside group of %d", to, e.group.size)
	}
	// Copy so the caller may reuse its buffer, matching wire transports.
	owned := make([]byte, len(payload))
	copy(owned, payload)
	e.group.boxes[to].put(e.rank, tag, owned)
	recordMessage("mem", "send", len(payload))
	return nil
}

func (e *memEndpoint) Recv(from, tag int) ([]byte, error) {
	if from < 0 || from >= e.group.size {
		return nil, fmt.Errorf("comm: recv from rank %d outside group of %d", from, e.group.size)
	}
	payload, err := e.group.boxes[e.rank].take(from, tag)
	if err != nil {
		return nil, err
	}
	recordMessage("mem", "recv", len(payload))
	return payload, nil
}

func (e *memEndpoint) Close() error {
	e.group.boxes[e.rank].close()
	return nil
}
