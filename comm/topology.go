package comm

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables consumed by TopologyFromEnv.
const (
	EnvRank        = "SPMD_RANK"
	EnvSize        = "SPMD_SIZE"
	EnvCoordinator = "SPMD_COORDINATOR"
)

// A Topology is a process's identity within a run.
//
// Every process in a run must observe the same Size.
type Topology struct {
	rank        int
	size        int
	coordinator int
}

// NewTopology creates a Topology after checking that the
// rank and coordinator are valid for the size.
func NewTopology(rank, size, coordinator int) (Topology, error) {
	if size < 1 {
		return Topology{}, fmt.Errorf("invalid size: %d", size)
	}
	if rank < 0 || rank >= size {
		return Topology{}, fmt.Errorf("rank %d out of range for size %d", rank, size)
	}
	if coordinator < 0 || coordinator >= size {
		return Topology{}, fmt.Errorf("coordinator %d out of range for size %d", coordinator, size)
	}
	return Topology{rank: rank, size: size, coordinator: coordinator}, nil
}

// TopologyFromEnv creates a Topology from the launch
// environment.
//
// If none of the variables are set, the process is the
// only member of its run.
func TopologyFromEnv() (Topology, error) {
	rank, err := envInt(EnvRank, 0)
	if err != nil {
		return Topology{}, err
	}
	size, err := envInt(EnvSize, 1)
	if err != nil {
		return Topology{}, err
	}
	coordinator, err := envInt(EnvCoordinator, 0)
	if err != nil {
		return Topology{}, err
	}
	return NewTopology(rank, size, coordinator)
}

// Rank is the process's ordinal in the run.
func (t Topology) Rank() int {
	return t.rank
}

// Size is the number of processes in the run.
func (t Topology) Size() int {
	return t.size
}

// Coordinator is the rank that ends up with collective
// results.
func (t Topology) Coordinator() int {
	return t.coordinator
}

// IsCoordinator checks if this process is the coordinator.
func (t Topology) IsCoordinator() bool {
	return t.rank == t.coordinator
}

// IsLast checks if this process has the highest rank.
func (t Topology) IsLast() bool {
	return t.rank == t.size-1
}

// SetCoordinator changes the coordinator.
//
// This may only be used while setting up a run, before
// any collective operation; every process must make the
// same change.
func (t *Topology) SetCoordinator(rank int) error {
	if rank < 0 || rank >= t.size {
		return fmt.Errorf("coordinator %d out of range for size %d", rank, t.size)
	}
	t.coordinator = rank
	return nil
}

func (t Topology) String() string {
	return fmt.Sprintf("rank %d/%d (coordinator %d)", t.rank, t.size, t.coordinator)
}

func envInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	x, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return x, nil
}
