package reduce

import "github.com/unixpickle/spmd/comm"

// Broadcast sends the root's value to every rank along a
// binomial tree and returns it.
//
// The value argument is ignored on every rank but root.
func Broadcast[T any](c *comm.Comms, codec comm.Codec[T], root int, value T) (T, error) {
	size := c.Size()
	if root < 0 || root >= size {
		panic("root out of range")
	}
	relRank := (c.Rank() - root + size) % size

	// Receive from the parent, which differs from us in
	// our lowest set bit.
	mask := 1
	for mask < size {
		if relRank&mask != 0 {
			parent := (relRank - mask + root) % size
			var err error
			value, err = comm.Recv(c, codec, parent, comm.TagBroadcast)
			if err != nil {
				return value, err
			}
			break
		}
		mask <<= 1
	}

	// Send to the children, largest subtree first.
	for mask >>= 1; mask > 0; mask >>= 1 {
		if relRank+mask < size {
			child := (relRank + mask + root) % size
			if err := comm.Send(c, codec, value, child, comm.TagBroadcast); err != nil {
				return value, err
			}
		}
	}
	return value, nil
}

// Allreduce combines the values of all ranks with a
// Binomial reduction and then broadcasts the result, so
// that every rank returns the combined value.
func Allreduce[T any](c *comm.Comms, codec comm.Codec[T], value T, fn Combiner[T]) (T, error) {
	res, err := binomialToRoot(c, codec, value, fn)
	if err != nil {
		return res, err
	}
	return Broadcast(c, codec, 0, res)
}
