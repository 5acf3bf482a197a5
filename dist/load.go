package dist

import (
	"fmt"
	"strings"

	"github.com/unixpickle/spmd/comm"
)

// TextFile loads a file across every rank of a run.
// It must be called by all ranks at once.
//
// See Load for how the file is split up.
//
// If the file cannot be opened, the returned error
// matches ErrSourceUnavailable and no communication has
// happened yet.
func TextFile(c *comm.Comms, path string, delim byte) (*Collection[string], error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return Load(c, src, delim)
}

// Load splits a Source into one partition per rank.
// It must be called by all ranks at once.
//
// Each rank reads its ByteRange and then fixes the tokens
// that were cut at the range boundaries: the start of a
// range up to and including the first delimiter belongs
// to the previous rank's last token, so it is handed to
// the previous rank.
// Afterwards, every rank holds whole delimiter-separated
// tokens, and concatenating the partitions in rank order
// gives back the input.
func Load(c *comm.Comms, src Source, delim byte) (*Collection[string], error) {
	start, end := ByteRange(c.Rank(), c.Size(), src.Size())
	buf := make([]byte, end-start)
	if n, err := src.ReadAt(buf, start); n != len(buf) {
		return nil, comm.WithKind(ErrSourceUnavailable,
			fmt.Sprintf("read bytes %d-%d", start, end), err)
	}
	text, err := repairBoundaries(c, string(buf), delim)
	if err != nil {
		return nil, err
	}
	return New(c, text), nil
}

// repairBoundaries exchanges token fragments with the
// neighboring ranks.
//
// Odd ranks hand their head to the previous rank before
// waiting for the next rank, and even ranks do the
// opposite, so the exchanges of neighboring pairs happen
// at the same time.
//
// A rank whose range has no delimiter at all holds the
// middle of a token that started on an earlier rank.
// It first completes the text with the fragment from the
// next rank and then hands all of it to the previous rank.
func repairBoundaries(c *comm.Comms, text string, delim byte) (string, error) {
	var codec comm.Codec[string] = comm.StringCodec{}
	rank := c.Rank()

	var head string
	sendsHead := false
	if rank > 0 {
		if idx := strings.IndexByte(text, delim); idx >= 0 {
			head, text = text[:idx+1], text[idx+1:]
			sendsHead = true
		}
	}
	sendHead := func() error {
		return comm.Send(c, codec, head, rank-1, comm.TagBoundary)
	}

	if sendsHead && rank%2 == 1 {
		if err := sendHead(); err != nil {
			return "", err
		}
	}
	if !c.Topology.IsLast() {
		suffix, err := comm.Recv(c, codec, rank+1, comm.TagBoundary)
		if err != nil {
			return "", err
		}
		text += suffix
	}
	if sendsHead && rank%2 == 0 {
		if err := sendHead(); err != nil {
			return "", err
		}
	}
	if rank > 0 && !sendsHead {
		if err := comm.Send(c, codec, text, rank-1, comm.TagBoundary); err != nil {
			return "", err
		}
		text = ""
	}
	return text, nil
}
