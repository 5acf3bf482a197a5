package reduce

import (
	"fmt"
	"math"
	"testing"

	"github.com/unixpickle/spmd/comm"
)

func TestBinomial(t *testing.T) {
	RunReducerTests(t, Binomial[int]{}, Binomial[[]float64]{})
}

func TestBinomialOrder(t *testing.T) {
	expected := map[int]string{
		1: "a",
		2: "ab",
		3: "acb",
		4: "acbd",
		5: "adcbe",
	}
	for numNodes := 1; numNodes <= 32; numNodes++ {
		names := make([]string, numNodes)
		for i := range names {
			names[i] = fmt.Sprintf("<%d>", i)
		}
		if numNodes <= 5 {
			for i := range names {
				names[i] = string(rune('a' + i))
			}
		}
		var result string
		err := comm.Spawn(numNodes, 0, func(c *comm.Comms) error {
			res, ok, err := Binomial[string]{}.Reduce(c, comm.StringCodec{}, names[c.Rank()], Concat)
			if ok {
				result = res
			}
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if exp, ok := expected[numNodes]; ok && result != exp {
			t.Errorf("nodes=%d: expected %s but got %s", numNodes, exp, result)
		}
		if exp := binomialOrder(names); result != exp {
			t.Errorf("nodes=%d: expected %s but got %s", numNodes, exp, result)
		}
	}
}

// binomialOrder sequentially computes the concatenation
// produced by a Binomial reduction.
func binomialOrder(values []string) string {
	values = append([]string{}, values...)
	for active := len(values); active > 1; active = (active + 1) / 2 {
		receivers := (active + 1) / 2
		for i := receivers; i < active; i++ {
			values[i-receivers] += values[i]
		}
	}
	return values[0]
}

func TestBinomialRounds(t *testing.T) {
	for numNodes := 1; numNodes <= 32; numNodes++ {
		expected := int(math.Ceil(math.Log2(float64(numNodes))))
		if actual := Rounds(numNodes); actual != expected {
			t.Errorf("nodes=%d: expected %d rounds but got %d", numNodes, expected, actual)
		}

		network := comm.NewLocalNetwork(numNodes)
		counters := make([]*comm.Counting, numNodes)
		err := comm.SpawnOn(network, 0, func(tr comm.Transport) comm.Transport {
			counters[tr.Rank()] = comm.NewCounting(tr)
			return counters[tr.Rank()]
		}, func(c *comm.Comms) error {
			_, _, err := Binomial[int]{}.Reduce(c, comm.CodecFor[int](), 1, Add[int])
			return err
		})
		if err != nil {
			t.Fatal(err)
		}

		// Rank 0 receives exactly once per round.
		if actual := counters[0].Recvs(); actual != expected {
			t.Errorf("nodes=%d: rank 0 received %d times but expected %d", numNodes, actual, expected)
		}
		var sends int
		for i, counter := range counters {
			sends += counter.Sends()
			if i > 0 && counter.Sends() != 1 {
				t.Errorf("nodes=%d: rank %d sent %d times", numNodes, i, counter.Sends())
			}
		}
		if sends != numNodes-1 {
			t.Errorf("nodes=%d: expected %d messages but got %d", numNodes, numNodes-1, sends)
		}
	}
}

func TestBinomialSingleNode(t *testing.T) {
	network := comm.NewLocalNetwork(1)
	counting := comm.NewCounting(network.Endpoint(0))
	topology, _ := comm.NewTopology(0, 1, 0)
	c, err := comm.NewComms(topology, counting)
	if err != nil {
		t.Fatal(err)
	}
	res, ok, err := Binomial[string]{}.Reduce(c, comm.StringCodec{}, "only", Concat)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || res != "only" {
		t.Errorf("expected only but got %s (ok=%v)", res, ok)
	}
	if counting.Sends()+counting.Recvs() != 0 {
		t.Error("a single node should not communicate")
	}
}

func TestBinomialCoordinatorForwarding(t *testing.T) {
	for _, coordinator := range []int{1, 4} {
		results := make([]string, 5)
		present := make([]bool, 5)
		err := comm.Spawn(5, coordinator, func(c *comm.Comms) error {
			var err error
			value := string(rune('a' + c.Rank()))
			results[c.Rank()], present[c.Rank()], err = Binomial[string]{}.Reduce(c,
				comm.StringCodec{}, value, Concat)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		verifyPresence(t, present, coordinator)
		if results[coordinator] != "adcbe" {
			t.Errorf("coordinator %d: expected adcbe but got %s", coordinator, results[coordinator])
		}
	}
}

func TestBinomialMaps(t *testing.T) {
	var result map[string]int
	err := comm.Spawn(3, 0, func(c *comm.Comms) error {
		counts := map[string]int{"all": 1, fmt.Sprint(c.Rank()): c.Rank()}
		res, ok, err := Binomial[map[string]int]{}.Reduce(c, comm.CodecFor[map[string]int](),
			counts, MergeCounts[string, int])
		if ok {
			result = res
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := map[string]int{"all": 3, "0": 0, "1": 1, "2": 2}
	if len(result) != len(expected) {
		t.Fatalf("expected %v but got %v", expected, result)
	}
	for k, v := range expected {
		if result[k] != v {
			t.Errorf("key %s: expected %d but got %d", k, v, result[k])
		}
	}
}
