package reduce

import "github.com/unixpickle/spmd/comm"

// Binomial reduces values by repeatedly pairing the lower
// half of the active ranks with the upper half.
//
// In every round with n active ranks, the first
// ceil(n/2) ranks are receivers. Rank r in the upper half
// sends its value to rank r-ceil(n/2) and drops out.
// If n is odd, the last receiver has no partner and keeps
// its value for the round.
// A receiver always passes its own running value as the
// first argument to the Combiner, so the combination order
// is fixed for every size.
//
// The reduction finishes on rank 0, which then forwards
// the result to the coordinator if it is a different rank.
type Binomial[T any] struct{}

// Reduce runs the reduction.
func (b Binomial[T]) Reduce(c *comm.Comms, codec comm.Codec[T], value T,
	fn Combiner[T]) (T, bool, error) {
	res, err := binomialToRoot(c, codec, value, fn)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return toCoordinator(c, codec, 0, res)
}

// binomialToRoot runs the rounds of the reduction.
// The result is only meaningful on rank 0.
func binomialToRoot[T any](c *comm.Comms, codec comm.Codec[T], value T, fn Combiner[T]) (T, error) {
	rank := c.Rank()
	for active := c.Size(); active > 1; active = (active + 1) / 2 {
		receivers := (active + 1) / 2
		if rank >= receivers {
			// Senders take no part in later rounds.
			return value, comm.Send(c, codec, value, rank-receivers, comm.TagReduce)
		} else if active%2 == 1 && rank == receivers-1 {
			continue
		}
		other, err := comm.Recv(c, codec, rank+receivers, comm.TagReduce)
		if err != nil {
			return value, err
		}
		value = fn(value, other)
	}
	return value, nil
}

// Rounds gets the number of communication rounds that a
// Binomial reduction takes for a given number of ranks.
//
// This is ceil(log2(size)), and 0 for a single rank.
func Rounds(size int) int {
	var rounds int
	for active := size; active > 1; active = (active + 1) / 2 {
		rounds++
	}
	return rounds
}
