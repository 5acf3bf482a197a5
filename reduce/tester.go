package reduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/unixpickle/spmd/comm"
)

// RunReducerTests runs a battery of tests on Reducers for
// integers and vectors.
func RunReducerTests(t *testing.T, ints Reducer[int], vecs Reducer[[]float64]) {
	for numNodes := 1; numNodes <= 32; numNodes++ {
		coordinators := []int{0}
		if numNodes > 1 {
			coordinators = append(coordinators, numNodes-1)
		}
		for _, coordinator := range coordinators {
			testName := fmt.Sprintf("Nodes=%d,Coordinator=%d", numNodes, coordinator)
			t.Run(testName, func(t *testing.T) {
				testIntReduction(t, ints, numNodes, coordinator)
				for _, size := range []int{0, 1337} {
					testVecReduction(t, vecs, numNodes, coordinator, size)
				}
			})
		}
	}
}

func testIntReduction(t *testing.T, reducer Reducer[int], numNodes, coordinator int) {
	values := make([]int, numNodes)
	var sum int
	for i := range values {
		values[i] = rand.Intn(1000) - 500
		sum += values[i]
	}

	results := make([]int, numNodes)
	present := make([]bool, numNodes)
	err := comm.Spawn(numNodes, coordinator, func(c *comm.Comms) error {
		var err error
		results[c.Rank()], present[c.Rank()], err = reducer.Reduce(c, comm.CodecFor[int](),
			values[c.Rank()], Add[int])
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	verifyPresence(t, present, coordinator)
	if results[coordinator] != sum {
		t.Errorf("expected sum %d but got %d", sum, results[coordinator])
	}
}

func testVecReduction(t *testing.T, reducer Reducer[[]float64], numNodes, coordinator, size int) {
	vectors := make([][]float64, numNodes)
	sum := make([]float64, size)
	for i := range vectors {
		vectors[i] = make([]float64, size)
		for j := range vectors[i] {
			vectors[i][j] = rand.NormFloat64()
			sum[j] += vectors[i][j]
		}
	}

	results := make([][]float64, numNodes)
	present := make([]bool, numNodes)
	err := comm.Spawn(numNodes, coordinator, func(c *comm.Comms) error {
		var err error
		results[c.Rank()], present[c.Rank()], err = reducer.Reduce(c, comm.CodecFor[[]float64](),
			vectors[c.Rank()], SumVectors[float64])
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	verifyPresence(t, present, coordinator)
	actual := results[coordinator]
	if len(actual) != size {
		t.Fatalf("result has length %d but expected %d", len(actual), size)
	}
	for i, x := range sum {
		if math.Abs(x-actual[i]) > 1e-5 {
			t.Errorf("sum is incorrect (expected %f but got %f at component %d)",
				x, actual[i], i)
			break
		}
	}
}

func verifyPresence(t *testing.T, present []bool, coordinator int) {
	for rank, ok := range present {
		if ok != (rank == coordinator) {
			t.Errorf("rank %d: result present=%v with coordinator %d", rank, ok, coordinator)
		}
	}
}
