package comm

import (
	"fmt"
	"sync/atomic"
)

// A Tag separates independent message streams between the
// same pair of ranks.
type Tag uint32

// Tags used by the collective operations in this module.
// Applications may use any tag at or above TagUser.
const (
	TagBoundary Tag = iota + 1
	TagReduce
	TagResult
	TagBroadcast
	TagGather

	TagUser Tag = 1 << 16
)

// A Transport moves opaque payloads between the ranks of
// a run.
//
// All operations are blocking: Send does not return until
// the matching Recv has taken the payload, and Recv does
// not return until a matching Send occurs.
// Payloads between a given source, destination and tag
// arrive in the order they were sent.
type Transport interface {
	// Rank is the local rank.
	Rank() int

	// Size is the number of ranks in the run.
	Size() int

	// Send a payload to the destination rank.
	// The payload may be reused once Send returns.
	Send(dst int, tag Tag, payload []byte) error

	// Recv the next payload sent by src with the tag.
	Recv(src int, tag Tag) ([]byte, error)

	// Close releases the Transport's resources.
	Close() error
}

// Comms is a process's handle on the rest of the run.
// It is created once at process start and passed to every
// component that needs to communicate.
type Comms struct {
	Topology  Topology
	Transport Transport
}

// NewComms checks that a Topology and Transport agree
// about the run and bundles them together.
func NewComms(t Topology, tr Transport) (*Comms, error) {
	if t.Rank() != tr.Rank() || t.Size() != tr.Size() {
		return nil, fmt.Errorf("topology %v does not match transport rank %d/%d",
			t, tr.Rank(), tr.Size())
	}
	return &Comms{Topology: t, Transport: tr}, nil
}

// Rank gets the local rank.
func (c *Comms) Rank() int {
	return c.Topology.Rank()
}

// Size gets the number of ranks.
func (c *Comms) Size() int {
	return c.Topology.Size()
}

// Coordinator gets the coordinator's rank.
func (c *Comms) Coordinator() int {
	return c.Topology.Coordinator()
}

// IsCoordinator checks if this rank is the coordinator.
func (c *Comms) IsCoordinator() bool {
	return c.Topology.IsCoordinator()
}

// Close closes the underlying Transport.
func (c *Comms) Close() error {
	return c.Transport.Close()
}

// Send encodes a value and sends it to a rank.
//
// If codec is nil, CodecFor is used.
func Send[T any](c *Comms, codec Codec[T], value T, dst int, tag Tag) error {
	if codec == nil {
		codec = CodecFor[T]()
	}
	data, err := codec.Encode(value)
	if err != nil {
		return WithKind(ErrCodec, fmt.Sprintf("encode for rank %d", dst), err)
	}
	return c.Transport.Send(dst, tag, data)
}

// Recv receives a value from a rank and decodes it.
//
// If codec is nil, CodecFor is used.
func Recv[T any](c *Comms, codec Codec[T], src int, tag Tag) (T, error) {
	if codec == nil {
		codec = CodecFor[T]()
	}
	data, err := c.Transport.Recv(src, tag)
	if err != nil {
		var zero T
		return zero, err
	}
	value, err := codec.Decode(data)
	if err != nil {
		var zero T
		return zero, WithKind(ErrCodec, fmt.Sprintf("decode from rank %d", src), err)
	}
	return value, nil
}

// Counting wraps a Transport and counts the messages that
// pass through it.
type Counting struct {
	Transport

	sends atomic.Int64
	recvs atomic.Int64
}

// NewCounting wraps a Transport.
func NewCounting(t Transport) *Counting {
	return &Counting{Transport: t}
}

// Send forwards to the wrapped Transport.
func (c *Counting) Send(dst int, tag Tag, payload []byte) error {
	c.sends.Add(1)
	return c.Transport.Send(dst, tag, payload)
}

// Recv forwards to the wrapped Transport.
func (c *Counting) Recv(src int, tag Tag) ([]byte, error) {
	c.recvs.Add(1)
	return c.Transport.Recv(src, tag)
}

// Sends gets the number of Send calls so far.
func (c *Counting) Sends() int {
	return int(c.sends.Load())
}

// Recvs gets the number of Recv calls so far.
func (c *Counting) Recvs() int {
	return int(c.recvs.Load())
}
