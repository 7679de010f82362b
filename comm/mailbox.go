package comm

import "sync"

type msgKey struct {
	from int
	tag  int
}

// mailbox is the receive side shared by both transports: messages queue
// per (sender, tag) pair in arrival order and block receivers until
// matched or closed.
type mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queues map[msgKey][][]byte
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{queues: make(map[msgKey][][]byte)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// put enqueues a payload already owned by the mailbox, waking any waiting
// receiver. Delivery to a closed mailbox is dropped.
func (m *mailbox) put(from, tag int, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	k := msgKey{from, tag}
	m.queues[k] = append(m.queues[k], payload)
	m.cond.Broadcast()
}

// take blocks until a message matching (from, tag) is available and
// dequeues it, or fails with ErrClosed once the mailbox closes.
func (m *mailbox) take(from, tag int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := msgKey{from, tag}
	for {
		if q := m.queues[k]; len(q) > 0 {
			payload := q[0]
			if len(q) == 1 {
				delete(m.queues, k)
			} else {
				m.queues[k] = q[1:]
			}
			return payload, nil
		}
		if m.closed {
			return nil, ErrClosed
		}
		m.cond.Wait()
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}
