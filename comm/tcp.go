package comm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRetryInterval is how long ConnectTCP waits
// between attempts to dial a peer that is not listening
// yet.
const DefaultRetryInterval = 50 * time.Millisecond

// DefaultHandshakeTimeout is how long a new connection
// may take to identify itself.
const DefaultHandshakeTimeout = 5 * time.Second

// TCPConfig describes one rank's view of a TCP run.
type TCPConfig struct {
	// Rank is the local rank.
	Rank int

	// Addrs contains the listening address of every rank,
	// including the local one.
	Addrs []string

	// Session identifies the run. Connections from other
	// sessions are rejected.
	// If empty, the nil UUID is used.
	Session string

	// RetryInterval is the time between dial attempts.
	// If 0, DefaultRetryInterval is used.
	RetryInterval time.Duration

	// HandshakeTimeout bounds the exchange of hellos on
	// each connection, regardless of the connect context.
	// If 0, DefaultHandshakeTimeout is used.
	HandshakeTimeout time.Duration
}

func (t *TCPConfig) handshakeTimeout() time.Duration {
	if t.HandshakeTimeout == 0 {
		return DefaultHandshakeTimeout
	}
	return t.HandshakeTimeout
}

// A TCPTransport connects every pair of ranks with a TCP
// connection.
//
// Every data frame is acknowledged by the receiver once a
// matching Recv takes it, which is what makes Send block.
type TCPTransport struct {
	rank  int
	size  int
	peers []*tcpPeer
}

// ListenTCP listens on the local rank's address and then
// calls ConnectTCP.
func ListenTCP(ctx context.Context, cfg TCPConfig) (*TCPTransport, error) {
	if cfg.Rank < 0 || cfg.Rank >= len(cfg.Addrs) {
		return nil, fmt.Errorf("rank %d out of range for %d addresses", cfg.Rank, len(cfg.Addrs))
	}
	listener, err := net.Listen("tcp", cfg.Addrs[cfg.Rank])
	if err != nil {
		return nil, WithKind(ErrTransport, "listen", err)
	}
	return ConnectTCP(ctx, cfg, listener)
}

// ConnectTCP establishes the full mesh of connections.
//
// The local rank dials every lower rank and accepts a
// connection from every higher rank on the listener.
// The listener is closed before ConnectTCP returns.
//
// Dials are retried until ctx is done, since the other
// ranks may not be listening yet.
func ConnectTCP(ctx context.Context, cfg TCPConfig, listener net.Listener) (*TCPTransport, error) {
	size := len(cfg.Addrs)
	if cfg.Rank < 0 || cfg.Rank >= size {
		listener.Close()
		return nil, fmt.Errorf("rank %d out of range for %d addresses", cfg.Rank, size)
	}
	session := uuid.Nil
	if cfg.Session != "" {
		var err error
		session, err = uuid.Parse(cfg.Session)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("parse session: %w", err)
		}
	}

	t := &TCPTransport{rank: cfg.Rank, size: size, peers: make([]*tcpPeer, size)}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stop:
		}
	}()

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- t.acceptPeers(ctx, listener, session, cfg.handshakeTimeout())
	}()
	dialErr := t.dialPeers(ctx, cfg, session)
	if dialErr != nil {
		listener.Close()
	}
	err := <-acceptErr
	close(stop)
	listener.Close()

	if dialErr != nil {
		err = dialErr
	}
	if err != nil {
		t.Close()
		return nil, WithKind(ErrTransport, "connect mesh", err)
	}

	for _, p := range t.peers {
		if p != nil {
			go p.readLoop()
		}
	}
	return t, nil
}

type acceptedPeer struct {
	rank int
	conn net.Conn
}

// acceptPeers waits for every higher rank to connect.
//
// Each connection identifies itself on its own Goroutine,
// so a client that never sends a hello cannot hold up the
// rest of the mesh.
func (t *TCPTransport) acceptPeers(ctx context.Context, listener net.Listener, session uuid.UUID,
	timeout time.Duration) error {
	remaining := t.size - 1 - t.rank
	if remaining == 0 {
		return nil
	}

	identified := make(chan acceptedPeer)
	done := make(chan struct{})
	defer close(done)

	listenErr := make(chan error, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				listenErr <- err
				return
			}
			go t.identify(conn, session, timeout, identified, done)
		}
	}()

	for remaining > 0 {
		select {
		case p := <-identified:
			if t.peers[p.rank] != nil {
				p.conn.Close()
				continue
			}
			if _, err := p.conn.Write([]byte{1}); err != nil {
				p.conn.Close()
				continue
			}
			p.conn.SetDeadline(time.Time{})
			t.peers[p.rank] = newTCPPeer(p.rank, p.conn)
			remaining--
		case err := <-listenErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	return nil
}

// identify reads the hello of an accepted connection and
// closes the connection if it is not a member of this run.
func (t *TCPTransport) identify(conn net.Conn, session uuid.UUID, timeout time.Duration,
	identified chan<- acceptedPeer, done <-chan struct{}) {
	conn.SetDeadline(time.Now().Add(timeout))
	h, err := readHello(conn)
	if err != nil || h.session != session || h.size != t.size ||
		h.rank <= t.rank || h.rank >= t.size {
		conn.Close()
		return
	}
	select {
	case identified <- acceptedPeer{rank: h.rank, conn: conn}:
	case <-done:
		conn.Close()
	}
}

func (t *TCPTransport) dialPeers(ctx context.Context, cfg TCPConfig, session uuid.UUID) error {
	interval := cfg.RetryInterval
	if interval == 0 {
		interval = DefaultRetryInterval
	}
	var dialer net.Dialer
	for rank := 0; rank < t.rank; rank++ {
		var conn net.Conn
		for {
			var err error
			conn, err = dialer.DialContext(ctx, "tcp", cfg.Addrs[rank])
			if err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("dial rank %d: %w", rank, ctx.Err())
			case <-time.After(interval):
			}
		}
		if err := t.handshake(conn, session, cfg.handshakeTimeout()); err != nil {
			conn.Close()
			return fmt.Errorf("handshake with rank %d: %w", rank, err)
		}
		t.peers[rank] = newTCPPeer(rank, conn)
	}
	return nil
}

func (t *TCPTransport) handshake(conn net.Conn, session uuid.UUID, timeout time.Duration) error {
	conn.SetDeadline(time.Now().Add(timeout))
	if err := writeHello(conn, &hello{session: session, rank: t.rank, size: t.size}); err != nil {
		return err
	}
	var ok [1]byte
	if _, err := io.ReadFull(conn, ok[:]); err != nil {
		return err
	}
	if ok[0] != 1 {
		return errors.New("handshake rejected")
	}
	return conn.SetDeadline(time.Time{})
}

func (t *TCPTransport) Rank() int {
	return t.rank
}

func (t *TCPTransport) Size() int {
	return t.size
}

func (t *TCPTransport) Send(dst int, tag Tag, payload []byte) error {
	p, err := t.peer(dst)
	if err != nil {
		return err
	}
	ctx := fmt.Sprintf("send to rank %d", dst)
	acks := p.acks(tag)
	if err := p.write(&frame{kind: frameData, tag: tag, payload: payload}); err != nil {
		return WithKind(ErrTransport, ctx, err)
	}
	select {
	case <-acks:
		return nil
	case <-p.failed:
		// The ack may have arrived right before the
		// connection ended.
		select {
		case <-acks:
			return nil
		default:
			return WithKind(ErrTransport, ctx, p.err)
		}
	}
}

func (t *TCPTransport) Recv(src int, tag Tag) ([]byte, error) {
	p, err := t.peer(src)
	if err != nil {
		return nil, err
	}
	ctx := fmt.Sprintf("receive from rank %d", src)
	inbox := p.inbox(tag)
	var payload []byte
	select {
	case payload = <-inbox:
	case <-p.failed:
		select {
		case payload = <-inbox:
		default:
			return nil, WithKind(ErrTransport, ctx, p.err)
		}
	}
	if err := p.write(&frame{kind: frameAck, tag: tag}); err != nil {
		return nil, WithKind(ErrTransport, ctx, err)
	}
	return payload, nil
}

// Close closes every connection.
func (t *TCPTransport) Close() error {
	var firstErr error
	for _, p := range t.peers {
		if p == nil {
			continue
		}
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *TCPTransport) peer(rank int) (*tcpPeer, error) {
	if rank < 0 || rank >= t.size || rank == t.rank {
		return nil, WithKind(ErrTransport, "", fmt.Errorf("no connection to rank %d", rank))
	}
	return t.peers[rank], nil
}

type tcpPeer struct {
	rank   int
	conn   net.Conn
	reader *bufio.Reader

	writeLock sync.Mutex

	lock      sync.Mutex
	inboxes   map[Tag]chan []byte
	ackQueues map[Tag]chan struct{}

	// err is set before failed is closed.
	err    error
	failed chan struct{}
}

func newTCPPeer(rank int, conn net.Conn) *tcpPeer {
	return &tcpPeer{
		rank:      rank,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		inboxes:   map[Tag]chan []byte{},
		ackQueues: map[Tag]chan struct{}{},
		failed:    make(chan struct{}),
	}
}

func (p *tcpPeer) write(f *frame) error {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	return writeFrame(p.conn, f)
}

// Each sender waits for an acknowledgment before sending
// again, so one buffered slot per tag is always enough
// for the read loop never to block.
func (p *tcpPeer) inbox(tag Tag) chan []byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch, ok := p.inboxes[tag]
	if !ok {
		ch = make(chan []byte, 1)
		p.inboxes[tag] = ch
	}
	return ch
}

func (p *tcpPeer) acks(tag Tag) chan struct{} {
	p.lock.Lock()
	defer p.lock.Unlock()
	ch, ok := p.ackQueues[tag]
	if !ok {
		ch = make(chan struct{}, 1)
		p.ackQueues[tag] = ch
	}
	return ch
}

func (p *tcpPeer) readLoop() {
	for {
		f, err := readFrame(p.reader)
		if err != nil {
			p.err = err
			close(p.failed)
			return
		}
		switch f.kind {
		case frameData:
			p.inbox(f.tag) <- f.payload
		case frameAck:
			p.acks(f.tag) <- struct{}{}
		}
	}
}

// SpawnTCP is like Spawn, but the ranks are connected by
// a TCP mesh over the loopback interface.
//
// The mesh must be established before ctx is done.
func SpawnTCP(ctx context.Context, size, coordinator int, f func(c *Comms) error) error {
	listeners := make([]net.Listener, size)
	addrs := make([]string, size)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			for _, l := range listeners[:i] {
				l.Close()
			}
			return WithKind(ErrTransport, "listen", err)
		}
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}
	session := uuid.NewString()

	errs := make([]error, size)
	var wg sync.WaitGroup
	for i := range listeners {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = spawnTCPRank(ctx, rank, coordinator, addrs, session, listeners[rank], f)
		}(i)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			return &RankError{Rank: rank, Err: err}
		}
	}
	return nil
}

func spawnTCPRank(ctx context.Context, rank, coordinator int, addrs []string, session string,
	listener net.Listener, f func(c *Comms) error) error {
	topology, err := NewTopology(rank, len(addrs), coordinator)
	if err != nil {
		listener.Close()
		return err
	}
	cfg := TCPConfig{Rank: rank, Addrs: addrs, Session: session}
	transport, err := ConnectTCP(ctx, cfg, listener)
	if err != nil {
		return err
	}
	defer transport.Close()
	c, err := NewComms(topology, transport)
	if err != nil {
		return err
	}
	return f(c)
}
