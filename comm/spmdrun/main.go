// Command spmdrun starts several copies of a program that
// form one run, each with its own rank.
//
// Usage:
//
//	spmdrun -n 4 [-host 127.0.0.1] [-port 7400] [-coordinator 0] program [args...]
//
// The copies find each other through the SPMD_*
// environment variables read by comm.FromEnv.
// If any copy fails, the others are killed.
package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/spmd/comm"
)

type exitInfo struct {
	Rank int
	Err  error
}

func main() {
	var size, port, coordinator int
	var host string
	flag.IntVar(&size, "n", 2, "number of ranks")
	flag.StringVar(&host, "host", "127.0.0.1", "host to listen on")
	flag.IntVar(&port, "port", 7400, "port of rank 0; rank i listens on port+i")
	flag.IntVar(&coordinator, "coordinator", 0, "rank that reports results")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: spmdrun [flags] program [args...]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	if _, err := comm.NewTopology(0, size, coordinator); err != nil {
		essentials.Die(err)
	}
	log.SetPrefix("spmdrun: ")

	session := uuid.NewString()
	addrs := make([]string, size)
	for i := range addrs {
		addrs[i] = net.JoinHostPort(host, strconv.Itoa(port+i))
	}
	env := append(os.Environ(),
		comm.EnvSize+"="+strconv.Itoa(size),
		comm.EnvCoordinator+"="+strconv.Itoa(coordinator),
		comm.EnvAddrs+"="+strings.Join(addrs, ","),
		comm.EnvSession+"="+session,
	)

	cmds := make([]*exec.Cmd, size)
	exits := make(chan exitInfo, size)
	for rank := range cmds {
		cmd := exec.Command(flag.Arg(0), flag.Args()[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(append([]string{}, env...), comm.EnvRank+"="+strconv.Itoa(rank))
		if err := cmd.Start(); err != nil {
			killAll(cmds[:rank])
			essentials.Die("start rank", rank, "-", err)
		}
		cmds[rank] = cmd
		go func(rank int) {
			exits <- exitInfo{Rank: rank, Err: cmds[rank].Wait()}
		}(rank)
	}

	failed := false
	for range cmds {
		info := <-exits
		if info.Err != nil && !failed {
			log.Printf("rank %d failed: %v", info.Rank, info.Err)
			failed = true
			killAll(cmds)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func killAll(cmds []*exec.Cmd) {
	for _, cmd := range cmds {
		// Exited processes report an error, which is fine.
		cmd.Process.Kill()
	}
}
