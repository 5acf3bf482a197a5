package reduce

import "github.com/unixpickle/spmd/comm"

// Naive sends every value straight to the coordinator,
// which folds them in rank order.
type Naive[T any] struct{}

// Reduce runs the reduction.
func (n Naive[T]) Reduce(c *comm.Comms, codec comm.Codec[T], value T,
	fn Combiner[T]) (T, bool, error) {
	var zero T
	coordinator := c.Coordinator()
	if c.Rank() != coordinator {
		return zero, false, comm.Send(c, codec, value, coordinator, comm.TagGather)
	}

	res := value
	if coordinator != 0 {
		first, err := comm.Recv(c, codec, 0, comm.TagGather)
		if err != nil {
			return zero, false, err
		}
		res = first
	}
	for i := 1; i < c.Size(); i++ {
		incoming := value
		if i != coordinator {
			var err error
			incoming, err = comm.Recv(c, codec, i, comm.TagGather)
			if err != nil {
				return zero, false, err
			}
		}
		res = fn(res, incoming)
	}
	return res, true, nil
}
