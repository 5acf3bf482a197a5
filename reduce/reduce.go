// Package reduce implements collective operations that
// combine values held by the different ranks of a run.
package reduce

import "github.com/unixpickle/spmd/comm"

// A Combiner merges two partial results into one.
//
// It must not modify its arguments, and it should only
// depend on them.
type Combiner[T any] func(a, b T) T

// A Reducer is an algorithm that applies a Combiner to
// values that are distributed across ranks.
//
// Every rank must call Reduce with the same Combiner, at
// the same point in the program.
// The coordinator receives the combined value and ok set
// to true; every other rank gets the zero value and false.
type Reducer[T any] interface {
	Reduce(c *comm.Comms, codec comm.Codec[T], value T, fn Combiner[T]) (result T, ok bool, err error)
}

// toCoordinator moves a value held by root to the
// coordinator, so that only the coordinator reports it.
func toCoordinator[T any](c *comm.Comms, codec comm.Codec[T], root int, value T) (T, bool, error) {
	var zero T
	coordinator := c.Coordinator()
	switch c.Rank() {
	case root:
		if root == coordinator {
			return value, true, nil
		}
		return zero, false, comm.Send(c, codec, value, coordinator, comm.TagResult)
	case coordinator:
		res, err := comm.Recv(c, codec, root, comm.TagResult)
		if err != nil {
			return zero, false, err
		}
		return res, true, nil
	}
	return zero, false, nil
}
