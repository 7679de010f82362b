package comm

import (
	"encoding/binary"
	"fmt"
)

// Collective traffic lives in its own tag space well above protocol tags.
const (
	barrierGatherTag  = 0x7f000001
	barrierReleaseTag = 0x7f000002
	reduceTag         = 0x7f000003
	bcastTag          = 0x7f000004
	gatherTag         = 0x7f000005
)

// ReduceOp selects the combining operation of Reduce and AllReduce.
type ReduceOp int

const (
	ReduceSum ReduceOp = iota + 1
	ReduceMax
	ReduceMin
)

func (op ReduceOp) combine(a, b int64) int64 {
	switch op {
	case ReduceSum:
		return a + b
	case ReduceMax:
		if a > b {
			return a
		}
		return b
	case ReduceMin:
		if a < b {
			return a
		}
		return b
	default:
		panic(fmt.Sprintf("comm: unknown reduce op %d", op))
	}
}

// Barrier blocks until every rank of the group has entered it. Collectives
// on one endpoint must not overlap each other; phased protocols call them
// between phases.
func Barrier(ep Endpoint) error {
	if ep.Size() == 1 {
		return nil
	}
	const root = 0
	if ep.Rank() == root {
		for r := 1; r < ep.Size(); r++ {
			if _, err := ep.Recv(r, barrierGatherTag); err != nil {
				return err
			}
		}
		for r := 1; r < ep.Size(); r++ {
			if err := ep.Send(r, barrierReleaseTag, nil); err != nil {
				return err
			}
		}
		return nil
	}
	if err := ep.Send(root, barrierGatherTag, nil); err != nil {
		return err
	}
	_, err := ep.Recv(root, barrierReleaseTag)
	return err
}

// Reduce combines every rank's value at root. The result is meaningful on
// root only; other ranks receive 0.
func Reduce(ep Endpoint, root int, value int64, op ReduceOp) (int64, error) {
	if root < 0 || root >= ep.Size() {
		return 0, fmt.Errorf("comm: reduce root %d outside group of %d", root, ep.Size())
	}
	if ep.Rank() != root {
		return 0, ep.Send(root, reduceTag, encodeInt64(value))
	}
	acc := value
	for r := 0; r < ep.Size(); r++ {
		if r == root {
			continue
		}
		payload, err := ep.Recv(r, reduceTag)
		if err != nil {
			return 0, err
		}
		v, err := decodeInt64(payload)
		if err != nil {
			return 0, err
		}
		acc = op.combine(acc, v)
	}
	return acc, nil
}

// AllReduce combines every rank's value and returns the result on all
// ranks.
func AllReduce(ep Endpoint, value int64, op ReduceOp) (int64, error) {
	const root = 0
	acc, err := Reduce(ep, root, value, op)
	if err != nil {
		return 0, err
	}
	if ep.Rank() == root {
		payload := encodeInt64(acc)
		for r := 1; r < ep.Size(); r++ {
			if err := ep.Send(r, bcastTag, payload); err != nil {
				return 0, err
			}
		}
		return acc, nil
	}
	payload, err := ep.Recv(root, bcastTag)
	if err != nil {
		return 0, err
	}
	return decodeInt64(payload)
}

// Gather collects every rank's payload at root, indexed by rank. The
// result is meaningful on root only; other ranks receive nil.
func Gather(ep Endpoint, root int, payload []byte) ([][]byte, error) {
	if root < 0 || root >= ep.Size() {
		return nil, fmt.Errorf("comm: gather root %d outside group of %d", root, ep.Size())
	}
	if ep.Rank() != root {
		return nil, ep.Send(root, gatherTag, payload)
	}
	out := make([][]byte, ep.Size())
	out[root] = payload
	for r := 0; r < ep.Size(); r++ {
		if r == root {
			continue
		}
		p, err := ep.Recv(r, gatherTag)
		if err != nil {
			return nil, err
		}
		out[r] = p
	}
	return out, nil
}

func encodeInt64(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func decodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("comm: reduce payload is %d bytes, want 8", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}
