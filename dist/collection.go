// Package dist implements data-parallel collections that
// are partitioned across the ranks of a run.
//
// Every rank runs the same program. Operations that
// communicate, like Load and Reduce, must be called by all
// ranks in the same order; purely local operations, like
// Map, may be called freely.
package dist

import (
	"github.com/unixpickle/spmd/comm"
	"github.com/unixpickle/spmd/reduce"
)

// A Collection is one rank's partition of a distributed
// value.
type Collection[T any] struct {
	comms *comm.Comms
	value T
}

// New wraps a locally computed value as this rank's
// partition of a Collection.
func New[T any](c *comm.Comms, value T) *Collection[T] {
	return &Collection[T]{comms: c, value: value}
}

// Comms gets the communicator the Collection belongs to.
func (c *Collection[T]) Comms() *comm.Comms {
	return c.comms
}

// Value gets this rank's partition.
func (c *Collection[T]) Value() T {
	return c.value
}

// Map applies f to this rank's partition without any
// communication.
//
// The source Collection is left as it was, so f should
// not modify its argument.
func Map[T, R any](c *Collection[T], f func(T) R) *Collection[R] {
	return &Collection[R]{comms: c.comms, value: f(c.value)}
}

// Reduce combines the partitions of every rank with a
// binomial tree and delivers the result to the
// coordinator.
//
// See ReduceWith for details.
func Reduce[T any](c *Collection[T], fn reduce.Combiner[T]) (*Collected[T], error) {
	return ReduceWith[T](c, reduce.Binomial[T]{}, comm.CodecFor[T](), fn)
}

// ReduceWith combines the partitions of every rank using
// the given reduction algorithm and codec.
//
// All ranks must call it at the same point in the program.
// Only the coordinator's Collected holds the result; for
// every other rank it is empty.
//
// The combiner should be associative. The order in which
// partitions are combined depends on the Reducer.
func ReduceWith[T any](c *Collection[T], r reduce.Reducer[T], codec comm.Codec[T],
	fn reduce.Combiner[T]) (*Collected[T], error) {
	res, ok, err := r.Reduce(c.comms, codec, c.value, fn)
	if err != nil {
		return nil, err
	}
	return &Collected[T]{value: res, ok: ok}, nil
}

// AllReduce combines the partitions of every rank and
// gives the result to all of them, as a Collection whose
// partitions are identical.
func AllReduce[T any](c *Collection[T], fn reduce.Combiner[T]) (*Collection[T], error) {
	res, err := reduce.Allreduce(c.comms, comm.CodecFor[T](), c.value, fn)
	if err != nil {
		return nil, err
	}
	return New(c.comms, res), nil
}
