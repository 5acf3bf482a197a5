package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/spmd/comm"
	"github.com/unixpickle/spmd/reduce"
)

// RunInfo describes a specific run configuration.
type RunInfo struct {
	NumNodes int
	VecSize  int

	// UseTCP connects the nodes over loopback TCP instead
	// of an in-process network.
	UseTCP bool
}

// Run reduces a vector of the configured size with every
// node in its own Goroutine and returns the elapsed time.
//
// For TCP runs, the time includes setting up the mesh.
func (r *RunInfo) Run(reducer reduce.Reducer[[]float64]) time.Duration {
	spawn := comm.Spawn
	if r.UseTCP {
		spawn = func(size, coordinator int, f func(c *comm.Comms) error) error {
			return comm.SpawnTCP(context.Background(), size, coordinator, f)
		}
	}
	start := time.Now()
	err := spawn(r.NumNodes, 0, func(c *comm.Comms) error {
		vec := make([]float64, r.VecSize)
		for i := range vec {
			vec[i] = float64(c.Rank())
		}
		_, _, err := reducer.Reduce(c, comm.CodecFor[[]float64](), vec, reduce.SumVectors[float64])
		return err
	})
	essentials.Must(err)
	return time.Since(start)
}

func main() {
	var trials int
	var useTCP bool
	flag.IntVar(&trials, "trials", 3, "number of runs to average over")
	flag.BoolVar(&useTCP, "tcp", false, "connect nodes over loopback TCP")
	flag.Parse()

	reducers := []reduce.Reducer[[]float64]{
		reduce.Binomial[[]float64]{},
		reduce.Naive[[]float64]{},
	}
	reducerNames := []string{"Binomial", "Naive"}
	nodeCounts := []int{2, 7, 16, 32}
	vecSizes := []int{10, 10000, 1000000}

	// Markdown table header.
	fmt.Print("| Nodes | Size ")
	for _, reducerName := range reducerNames {
		fmt.Printf("| %s ", reducerName)
	}
	fmt.Println("|")
	for i := 0; i < 2+len(reducers); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, numNodes := range nodeCounts {
		for _, size := range vecSizes {
			runInfo := &RunInfo{NumNodes: numNodes, VecSize: size, UseTCP: useTCP}
			fmt.Printf("| %d | %d ", numNodes, size)
			for _, reducer := range reducers {
				var total time.Duration
				for i := 0; i < trials; i++ {
					total += runInfo.Run(reducer)
				}
				fmt.Printf("| %v ", total/time.Duration(essentials.MaxInt(trials, 1)))
			}
			fmt.Println("|")
		}
	}
}
