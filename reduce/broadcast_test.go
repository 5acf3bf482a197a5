package reduce

import (
	"fmt"
	"testing"

	"github.com/unixpickle/spmd/comm"
)

func TestBroadcast(t *testing.T) {
	for _, numNodes := range []int{1, 2, 5, 8, 13} {
		for _, root := range []int{0, numNodes / 2, numNodes - 1} {
			t.Run(fmt.Sprintf("Nodes=%d,Root=%d", numNodes, root), func(t *testing.T) {
				results := make([]string, numNodes)
				err := comm.Spawn(numNodes, 0, func(c *comm.Comms) error {
					value := ""
					if c.Rank() == root {
						value = "payload"
					}
					var err error
					results[c.Rank()], err = Broadcast[string](c, comm.StringCodec{}, root, value)
					return err
				})
				if err != nil {
					t.Fatal(err)
				}
				for rank, res := range results {
					if res != "payload" {
						t.Errorf("rank %d got %q", rank, res)
					}
				}
			})
		}
	}
}

func TestAllreduce(t *testing.T) {
	for _, numNodes := range []int{1, 2, 3, 7, 16, 17} {
		t.Run(fmt.Sprintf("Nodes=%d", numNodes), func(t *testing.T) {
			results := make([]int, numNodes)
			err := comm.Spawn(numNodes, 0, func(c *comm.Comms) error {
				var err error
				results[c.Rank()], err = Allreduce(c, comm.CodecFor[int](), c.Rank()+1, Add[int])
				return err
			})
			if err != nil {
				t.Fatal(err)
			}
			expected := numNodes * (numNodes + 1) / 2
			for rank, res := range results {
				if res != expected {
					t.Errorf("rank %d: expected %d but got %d", rank, expected, res)
				}
			}
		})
	}
}
