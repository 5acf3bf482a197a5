package reduce

import "github.com/unixpickle/spmd/comm"

// Add is a Combiner that adds numbers.
func Add[N comm.Number](a, b N) N {
	return a + b
}

// SumVectors is a Combiner that computes a vector sum.
func SumVectors[N comm.Number](a, b []N) []N {
	if len(a) != len(b) {
		panic("mismatching lengths")
	}
	res := make([]N, len(a))
	for i, x := range a {
		res[i] = x + b[i]
	}
	return res
}

// MergeCounts is a Combiner that adds up the counts for
// every key in two mappings.
func MergeCounts[K comparable, N comm.Number](a, b map[K]N) map[K]N {
	res := make(map[K]N, len(a))
	for k, v := range a {
		res[k] = v
	}
	for k, v := range b {
		res[k] += v
	}
	return res
}

// Concat is a Combiner that joins strings.
//
// It is not commutative, which makes it useful for
// observing the order in which a Reducer combines values.
func Concat(a, b string) string {
	return a + b
}
