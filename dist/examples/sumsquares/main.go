// Command sumsquares sums the squares of the numbers in a
// text file with every rank of a run working on part of
// the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/spmd/comm"
	"github.com/unixpickle/spmd/dist"
)

// Squares is a partial result.
type Squares struct {
	Sum     float64
	Count   int
	Invalid int
}

func main() {
	var delims string
	var timeout time.Duration
	flag.StringVar(&delims, "delims", ",\n", "number delimiters; the first one splits the file")
	flag.DurationVar(&timeout, "timeout", time.Minute, "time limit for connecting to the other ranks")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: sumsquares [flags] <file>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 || delims == "" {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	c, err := comm.FromEnv(ctx)
	cancel()
	if err != nil {
		essentials.Die("connect:", err)
	}
	defer c.Close()
	log.SetPrefix(fmt.Sprintf("[rank %d] ", c.Rank()))

	coll, err := dist.TextFile(c, flag.Arg(0), delims[0])
	if err != nil {
		if errors.Is(err, dist.ErrSourceUnavailable) {
			if c.IsCoordinator() {
				log.Println(err)
			}
			os.Exit(1)
		}
		essentials.Die(err)
	}

	partial := dist.Map(coll, func(text string) Squares {
		var res Squares
		for _, tok := range dist.Tokens(text, delims) {
			x, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				res.Invalid++
				continue
			}
			res.Sum += x * x
			res.Count++
		}
		return res
	})
	log.Printf("squared %d numbers", partial.Value().Count)

	total, err := dist.Reduce(partial, func(a, b Squares) Squares {
		return Squares{Sum: a.Sum + b.Sum, Count: a.Count + b.Count, Invalid: a.Invalid + b.Invalid}
	})
	if err != nil {
		essentials.Die(err)
	}
	total.ForEach(func(s Squares) {
		if s.Invalid > 0 {
			log.Printf("skipped %d invalid tokens", s.Invalid)
		}
		fmt.Println(strconv.FormatFloat(s.Sum, 'f', -1, 64))
	})
}
