package comm

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Message tag 0 is reserved for the connection handshake; group protocols
// must tag their traffic 1 or higher.
const (
	handshakeTag   = 0
	connectTimeout = 30 * time.Second
	dialRetryEvery = 100 * time.Millisecond
)

// TCPOptions configures one rank of a TCP process group.
type TCPOptions struct {
	Rank int
	Size int
	// Peers holds every rank's listen address indexed by rank;
	// Peers[Rank] is the local bind address.
	Peers  []string
	Limits Limits
	Logger zerolog.Logger
}

// DialTCP connects one rank into a fully meshed TCP group. Every rank
// listens on its own address, dials every higher rank and accepts from
// every lower one, so each pair shares exactly one connection. DialTCP
// returns once all peer links are up and their reader loops running.
func DialTCP(opts TCPOptions) (Endpoint, error) {
	if opts.Size < 1 || opts.Rank < 0 || opts.Rank >= opts.Size {
		return nil, fmt.Errorf("comm: rank %d outside group of %d", opts.Rank, opts.Size)
	}
	if len(opts.Peers) != opts.Size {
		return nil, fmt.Errorf("comm: %d peer addresses for group of %d", len(opts.Peers), opts.Size)
	}
	if opts.Limits.MaxPayloadBytes == 0 {
		opts.Limits = DefaultLimits()
	}

	ln, err := net.Listen("tcp", opts.Peers[opts.Rank])
	if err != nil {
		return nil, fmt.Errorf("comm: listen %s: %w", opts.Peers[opts.Rank], err)
	}
	e := &tcpEndpoint{
		rank:      opts.Rank,
		size:      opts.Size,
		limits:    opts.Limits,
		log:       opts.Logger.With().Int("rank", opts.Rank).Logger(),
		ln:        ln,
		peerAddrs: opts.Peers,
		conns:     make([]net.Conn, opts.Size),
		sendMu:    make([]sync.Mutex, opts.Size),
		box:       newMailbox(),
	}

	deadline := time.Now().Add(connectTimeout)
	errc := make(chan error, 2)
	var setup sync.WaitGroup
	setup.Add(2)
	go func() {
		defer setup.Done()
		errc <- e.acceptLowerRanks(deadline)
	}()
	go func() {
		defer setup.Done()
		errc <- e.dialHigherRanks(deadline)
	}()
	setup.Wait()
	close(errc)
	for err := range errc {
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	for peer := range e.conns {
		if e.conns[peer] == nil {
			continue
		}
		e.wg.Add(1)
		go e.readLoop(peer)
	}
	e.log.Info().Int("size", e.size).Msg("tcp group connected")
	return e, nil
}

type tcpEndpoint struct {
	rank      int
	size      int
	limits    Limits
	log       zerolog.Logger
	ln        net.Listener
	peerAddrs []string
	conns     []net.Conn
	sendMu    []sync.Mutex
	box       *mailbox

	wg        sync.WaitGroup
	closing   atomic.Bool
	closeOnce sync.Once
}

// acceptLowerRanks collects one handshaked connection from every rank
// below ours.
func (e *tcpEndpoint) acceptLowerRanks(deadline time.Time) error {
	if tl, ok := e.ln.(*net.TCPListener); ok {
		tl.SetDeadline(deadline)
	}
	for remaining := e.rank; remaining > 0; remaining-- {
		conn, err := e.ln.Accept()
		if err != nil {
			return fmt.Errorf("comm: accept: %w", err)
		}
		conn.SetReadDeadline(deadline)
		sender, tag, _, err := ReadFrame(conn, e.limits)
		if err != nil {
			conn.Close()
			return fmt.Errorf("comm: handshake from %s: %w", conn.RemoteAddr(), err)
		}
		if tag != handshakeTag || sender < 0 || sender >= e.rank {
			conn.Close()
			return fmt.Errorf("comm: bad handshake from %s: tag=%d sender=%d",
				conn.RemoteAddr(), tag, sender)
		}
		if e.conns[sender] != nil {
			conn.Close()
			return fmt.Errorf("comm: duplicate connection from rank %d", sender)
		}
		conn.SetReadDeadline(time.Time{})
		e.conns[sender] = conn
		e.log.Debug().Int("peer", sender).Msg("accepted peer link")
	}
	return nil
}

// dialHigherRanks connects to every rank above ours, retrying while their
// listeners come up.
func (e *tcpEndpoint) dialHigherRanks(deadline time.Time) error {
	for peer := e.rank + 1; peer < e.size; peer++ {
		addr := e.peerAddrs[peer]
		var conn net.Conn
		for {
			var err error
			conn, err = net.DialTimeout("tcp", addr, time.Until(deadline))
			if err == nil {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("comm: dial rank %d at %s: %w", peer, addr, err)
			}
			time.Sleep(dialRetryEvery)
		}
		if err := WriteFrame(conn, e.rank, handshakeTag, nil, e.limits); err != nil {
			conn.Close()
			return fmt.Errorf("comm: handshake to rank %d: %w", peer, err)
		}
		e.conns[peer] = conn
		e.log.Debug().Int("peer", peer).Msg("dialed peer link")
	}
	return nil
}

func (e *tcpEndpoint) Rank() int { return e.rank }
func (e *tcpEndpoint) Size() int { return e.size }

func (e *tcpEndpoint) Send(to, tag int, payload []byte) error {
	if to < 0 || to >= e.size {
		return fmt.Errorf("comm: send to rank %d outside group of %d", to, e.size)
	}
	if to == e.rank {
		owned := make([]byte, len(payload))
		copy(owned, payload)
		e.box.put(e.rank, tag, owned)
		recordMessage("tcp", "send", len(payload))
		return nil
	}
	e.sendMu[to].Lock()
	defer e.sendMu[to].Unlock()
	if err := WriteFrame(e.conns[to], e.rank, tag, payload, e.limits); err != nil {
		return fmt.Errorf("comm: send to rank %d: %w", to, err)
	}
	recordMessage("tcp", "send", len(payload))
	return nil
}

func (e *tcpEndpoint) Recv(from, tag int) ([]byte, error) {
	if from < 0 || from >= e.size {
		return nil, fmt.Errorf("comm: recv from rank %d outside group of %d", from, e.size)
	}
	payload, err := e.box.take(from, tag)
	if err != nil {
		return nil, err
	}
	recordMessage("tcp", "recv", len(payload))
	return payload, nil
}

// readLoop moves frames from one peer connection into the mailbox. Any
// read failure tears the endpoint down so blocked receivers fail fast
// instead of hanging on a dead group.
func (e *tcpEndpoint) readLoop(peer int) {
	defer e.wg.Done()
	conn := e.conns[peer]
	for {
		sender, tag, payload, err := ReadFrame(conn, e.limits)
		if err != nil {
			if !e.closing.Load() {
				e.log.Error().Err(err).Int("peer", peer).Msg("peer link lost")
				e.teardown()
			}
			return
		}
		if sender != peer {
			e.log.Warn().Int("peer", peer).Int("claimed", sender).Msg("frame sender mismatch")
		}
		e.box.put(peer, tag, payload)
	}
}

// teardown closes the transport without waiting for reader loops, safe to
// call from a reader itself.
func (e *tcpEndpoint) teardown() {
	e.closeOnce.Do(func() {
		e.closing.Store(true)
		e.ln.Close()
		for _, c := range e.conns {
			if c != nil {
				c.Close()
			}
		}
		e.box.close()
	})
}

func (e *tcpEndpoint) Close() error {
	e.closing.Store(true)
	e.teardown()
	e.wg.Wait()
	return nil
}
