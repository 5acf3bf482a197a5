package comm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/unixpickle/essentials"
)

// A LocalNetwork connects ranks that run as Goroutines in
// the same process.
//
// Sends and receives rendezvous: neither side returns
// until its partner has arrived.
// The network keeps track of how many ranks are blocked;
// once every live rank is blocked and nothing can match,
// all of the blocked operations fail with ErrDeadlock.
type LocalNetwork struct {
	lock sync.Mutex
	size int

	live    int
	closed  []bool
	blocked int

	sends map[localKey][]*localOp
	recvs map[localKey][]*localOp
}

type localKey struct {
	src int
	dst int
	tag Tag
}

type localOp struct {
	payload []byte
	result  chan localResult
}

type localResult struct {
	payload []byte
	err     error
}

// NewLocalNetwork creates a network for the given number
// of ranks.
func NewLocalNetwork(size int) *LocalNetwork {
	if size < 1 {
		panic("invalid network size")
	}
	return &LocalNetwork{
		size:   size,
		live:   size,
		closed: make([]bool, size),
		sends:  map[localKey][]*localOp{},
		recvs:  map[localKey][]*localOp{},
	}
}

// Endpoint gets the Transport for a rank.
//
// Each rank's Endpoint should be used by exactly one
// Goroutine and closed when that Goroutine is done.
func (l *LocalNetwork) Endpoint(rank int) *LocalEndpoint {
	if rank < 0 || rank >= l.size {
		panic("rank out of range")
	}
	return &LocalEndpoint{network: l, rank: rank}
}

func (l *LocalNetwork) send(src, dst int, tag Tag, payload []byte) error {
	if dst < 0 || dst >= l.size {
		return WithKind(ErrTransport, "", fmt.Errorf("send to invalid rank %d", dst))
	}
	msg := append([]byte{}, payload...)
	key := localKey{src: src, dst: dst, tag: tag}

	l.lock.Lock()
	if l.closed[dst] {
		l.lock.Unlock()
		return WithKind(ErrTransport, "", fmt.Errorf("send to closed rank %d", dst))
	}
	if waiters := l.recvs[key]; len(waiters) > 0 {
		op := waiters[0]
		l.dequeue(l.recvs, key)
		l.blocked--
		l.lock.Unlock()
		op.result <- localResult{payload: msg}
		return nil
	}
	op := &localOp{payload: msg, result: make(chan localResult, 1)}
	l.sends[key] = append(l.sends[key], op)
	l.blocked++
	l.checkDeadlock()
	l.lock.Unlock()

	return (<-op.result).err
}

func (l *LocalNetwork) recv(src, dst int, tag Tag) ([]byte, error) {
	if src < 0 || src >= l.size {
		return nil, WithKind(ErrTransport, "", fmt.Errorf("receive from invalid rank %d", src))
	}
	key := localKey{src: src, dst: dst, tag: tag}

	l.lock.Lock()
	if waiters := l.sends[key]; len(waiters) > 0 {
		op := waiters[0]
		l.dequeue(l.sends, key)
		l.blocked--
		l.lock.Unlock()
		op.result <- localResult{}
		return op.payload, nil
	}
	if l.closed[src] {
		l.lock.Unlock()
		return nil, WithKind(ErrTransport, "", fmt.Errorf("receive from closed rank %d", src))
	}
	op := &localOp{result: make(chan localResult, 1)}
	l.recvs[key] = append(l.recvs[key], op)
	l.blocked++
	l.checkDeadlock()
	l.lock.Unlock()

	res := <-op.result
	return res.payload, res.err
}

func (l *LocalNetwork) close(rank int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed[rank] {
		return
	}
	l.closed[rank] = true
	l.live--
	l.checkDeadlock()
}

func (l *LocalNetwork) dequeue(m map[localKey][]*localOp, key localKey) {
	waiters := m[key]
	essentials.OrderedDelete(&waiters, 0)
	if len(waiters) == 0 {
		delete(m, key)
	} else {
		m[key] = waiters
	}
}

// checkDeadlock fails every pending operation if no live
// rank is able to make progress.
//
// The caller must hold the lock.
func (l *LocalNetwork) checkDeadlock() {
	if l.blocked == 0 || l.blocked < l.live {
		return
	}
	err := WithKind(ErrTransport, "", ErrDeadlock)
	for _, m := range []map[localKey][]*localOp{l.sends, l.recvs} {
		for key, waiters := range m {
			for _, op := range waiters {
				op.result <- localResult{err: err}
			}
			delete(m, key)
		}
	}
	l.blocked = 0
}

// A LocalEndpoint is one rank's Transport on a
// LocalNetwork.
type LocalEndpoint struct {
	network *LocalNetwork
	rank    int
}

func (l *LocalEndpoint) Rank() int {
	return l.rank
}

func (l *LocalEndpoint) Size() int {
	return l.network.size
}

func (l *LocalEndpoint) Send(dst int, tag Tag, payload []byte) error {
	return l.network.send(l.rank, dst, tag, payload)
}

func (l *LocalEndpoint) Recv(src int, tag Tag) ([]byte, error) {
	return l.network.recv(src, l.rank, tag)
}

// Close marks the rank as finished, so that partners that
// are still waiting on it can be reported as deadlocked.
func (l *LocalEndpoint) Close() error {
	l.network.close(l.rank)
	return nil
}

// Spawn runs f for every rank of a new LocalNetwork, each
// in its own Goroutine, and waits for all of them.
//
// The returned error is the first error by rank order,
// annotated with the rank that produced it.
func Spawn(size, coordinator int, f func(c *Comms) error) error {
	network := NewLocalNetwork(size)
	return SpawnOn(network, coordinator, func(t Transport) Transport { return t }, f)
}

// SpawnOn is like Spawn, but it uses an existing network
// and lets the caller wrap each rank's Transport.
func SpawnOn(network *LocalNetwork, coordinator int, wrap func(t Transport) Transport,
	f func(c *Comms) error) error {
	topologies := make([]Topology, network.size)
	for i := range topologies {
		t, err := NewTopology(i, network.size, coordinator)
		if err != nil {
			return err
		}
		topologies[i] = t
	}

	errs := make([]error, network.size)
	var wg sync.WaitGroup
	for i := range topologies {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			endpoint := network.Endpoint(rank)
			defer endpoint.Close()
			errs[rank] = f(&Comms{Topology: topologies[rank], Transport: wrap(endpoint)})
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

// A RankError records which rank produced an error.
type RankError struct {
	Rank int
	Err  error
}

func (r *RankError) Error() string {
	return fmt.Sprintf("rank %d: %v", r.Rank, r.Err)
}

func (r *RankError) Unwrap() error {
	return r.Err
}

// IsDeadlock checks if an error came from a deadlocked
// LocalNetwork.
func IsDeadlock(err error) bool {
	return errors.Is(err, ErrDeadlock)
}
