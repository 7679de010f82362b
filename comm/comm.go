// Package comm provides rank-to-rank messaging for mesh partition
// exchange. A process group of N ranks exposes one Endpoint per rank;
// messages are matched on the receive side by sender rank and message tag,
// in FIFO order per (sender, tag) pair.
//
// Two transports implement Endpoint: an in-process group for tests and
// single-machine runs (NewMemGroup) and a TCP mesh for multi-process runs
// (DialTCP).
package comm

import "errors"

// ErrClosed reports an operation on a closed endpoint.
var ErrClosed = errors.New("comm: endpoint closed")

// Endpoint is one rank's connection to the process group.
//
// Send never blocks on the receiver. Recv blocks until a message from the
// given rank with the given tag arrives, or the endpoint closes. Sending
// to the endpoint's own rank loops back locally. A message tag namespaces
// a protocol phase; traffic with different tags never interferes.
type Endpoint interface {
	Rank() int
	Size() int
	Send(to, tag int, payload []byte) error
	Recv(from, tag int) ([]byte, error)
	Close() error
}
