package comm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func tcpMesh(t *testing.T, size int, session string) []*TCPTransport {
	listeners := make([]net.Listener, size)
	addrs := make([]string, size)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transports := make([]*TCPTransport, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for i := range listeners {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			cfg := TCPConfig{Rank: rank, Addrs: addrs, Session: session}
			transports[rank], errs[rank] = ConnectTCP(ctx, cfg, listeners[rank])
		}(i)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}
	t.Cleanup(func() {
		for _, tr := range transports {
			tr.Close()
		}
	})
	return transports
}

func runTCP(t *testing.T, transports []*TCPTransport, f func(c *Comms) error) {
	errs := make([]error, len(transports))
	var wg sync.WaitGroup
	for i, tr := range transports {
		wg.Add(1)
		go func(rank int, tr Transport) {
			defer wg.Done()
			topology, err := NewTopology(rank, len(transports), 0)
			if err != nil {
				errs[rank] = err
				return
			}
			c, err := NewComms(topology, tr)
			if err != nil {
				errs[rank] = err
				return
			}
			errs[rank] = f(c)
		}(i, tr)
	}
	wg.Wait()
	for rank, err := range errs {
		if err != nil {
			t.Errorf("rank %d: %v", rank, err)
		}
	}
}

func TestTCPRing(t *testing.T) {
	for _, size := range []int{2, 3, 5} {
		t.Run(fmt.Sprintf("Size=%d", size), func(t *testing.T) {
			transports := tcpMesh(t, size, uuid.NewString())
			runTCP(t, transports, func(c *Comms) error {
				next := (c.Rank() + 1) % c.Size()
				prev := (c.Rank() + c.Size() - 1) % c.Size()
				msg := map[string]int{"from": c.Rank()}

				// Even ranks send first so the ring cannot
				// deadlock on synchronous sends.
				if c.Rank()%2 == 0 {
					if err := Send(c, nil, msg, next, TagUser); err != nil {
						return err
					}
				}
				res, err := Recv[map[string]int](c, nil, prev, TagUser)
				if err != nil {
					return err
				}
				if c.Rank()%2 == 1 {
					if err := Send(c, nil, msg, next, TagUser); err != nil {
						return err
					}
				}
				if res["from"] != prev {
					return fmt.Errorf("expected message from %d but got %v", prev, res)
				}
				return nil
			})
		})
	}
}

func TestTCPPipeline(t *testing.T) {
	transports := tcpMesh(t, 3, "")
	runTCP(t, transports, func(c *Comms) error {
		for i := 0; i < 10; i++ {
			if c.Rank() == 0 {
				if err := c.Transport.Send(1, TagUser, []byte{byte(i)}); err != nil {
					return err
				}
				continue
			}
			data, err := c.Transport.Recv(c.Rank()-1, TagUser)
			if err != nil {
				return err
			}
			if len(data) != 1 || data[0] != byte(i) {
				return fmt.Errorf("unexpected payload %v", data)
			}
			if !c.Topology.IsLast() {
				if err := c.Transport.Send(c.Rank()+1, TagUser, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func TestTCPRejectsStrangers(t *testing.T) {
	listeners := make([]net.Listener, 2)
	addrs := make([]string, 2)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}

	// A connection from another session arrives before
	// the real rank 1.
	stranger, err := net.Dial("tcp", addrs[0])
	if err != nil {
		t.Fatal(err)
	}
	defer stranger.Close()
	err = writeHello(stranger, &hello{session: uuid.New(), rank: 1, size: 2})
	if err != nil {
		t.Fatal(err)
	}

	session := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results := make(chan error, 2)
	transports := make([]*TCPTransport, 2)
	for i := range listeners {
		go func(rank int) {
			cfg := TCPConfig{Rank: rank, Addrs: addrs, Session: session}
			var err error
			transports[rank], err = ConnectTCP(ctx, cfg, listeners[rank])
			results <- err
		}(i)
	}
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatal(err)
		}
	}
	defer transports[0].Close()
	defer transports[1].Close()

	var ok [1]byte
	stranger.SetReadDeadline(time.Now().Add(time.Second))
	if n, _ := stranger.Read(ok[:]); n == 1 && ok[0] == 1 {
		t.Error("stranger was accepted")
	}
}

func TestTCPSilentStranger(t *testing.T) {
	listeners := make([]net.Listener, 2)
	addrs := make([]string, 2)
	for i := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		listeners[i] = l
		addrs[i] = l.Addr().String()
	}

	// This connection never says anything.
	stranger, err := net.Dial("tcp", addrs[0])
	if err != nil {
		t.Fatal(err)
	}
	defer stranger.Close()

	session := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	results := make(chan error, 2)
	transports := make([]*TCPTransport, 2)
	for i := range listeners {
		go func(rank int) {
			cfg := TCPConfig{
				Rank:             rank,
				Addrs:            addrs,
				Session:          session,
				HandshakeTimeout: time.Second / 2,
			}
			var err error
			transports[rank], err = ConnectTCP(ctx, cfg, listeners[rank])
			results <- err
		}(i)
	}
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatal(err)
		}
	}
	defer transports[0].Close()
	defer transports[1].Close()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("connecting took %v", elapsed)
	}

	// The stranger is hung up on once its handshake times out.
	var buf [1]byte
	stranger.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := stranger.Read(buf[:]); err != io.EOF {
		t.Errorf("expected the stranger to be closed but got %v", err)
	}
}

func TestTCPConnectTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	// Rank 1 will never show up.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second/4)
	defer cancel()
	cfg := TCPConfig{Rank: 0, Addrs: []string{l.Addr().String(), "127.0.0.1:1"}}
	if _, err := ConnectTCP(ctx, cfg, l); !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport failure but got %v", err)
	}
}

func TestTCPPeerFailure(t *testing.T) {
	transports := tcpMesh(t, 2, "")
	transports[1].Close()
	if _, err := transports[0].Recv(1, TagUser); !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport failure but got %v", err)
	}
}
