package comm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Environment variables consumed by FromEnv, in addition
// to the ones read by TopologyFromEnv.
const (
	EnvAddrs   = "SPMD_ADDRS"
	EnvSession = "SPMD_SESSION"
)

// FromEnv builds the Comms for a process started by a
// launcher such as spmdrun.
//
// When the environment describes a run of size 1, no
// network connections are made.
// Otherwise, EnvAddrs must hold one comma-separated
// address per rank, and the TCP mesh is established
// before FromEnv returns.
func FromEnv(ctx context.Context) (*Comms, error) {
	topology, err := TopologyFromEnv()
	if err != nil {
		return nil, err
	}
	if topology.Size() == 1 {
		return NewComms(topology, NewLocalNetwork(1).Endpoint(0))
	}
	addrs := strings.Split(os.Getenv(EnvAddrs), ",")
	if len(addrs) != topology.Size() {
		return nil, fmt.Errorf("%s has %d addresses but the run has %d ranks",
			EnvAddrs, len(addrs), topology.Size())
	}
	transport, err := ListenTCP(ctx, TCPConfig{
		Rank:    topology.Rank(),
		Addrs:   addrs,
		Session: os.Getenv(EnvSession),
	})
	if err != nil {
		return nil, err
	}
	return NewComms(topology, transport)
}
