// Command wordcount counts the words in a text file with
// every rank of a run working on part of the file.
//
// Run it with spmdrun, for example:
//
//	spmdrun -n 4 wordcount input.txt
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/spmd/comm"
	"github.com/unixpickle/spmd/dist"
	"github.com/unixpickle/spmd/reduce"
)

func main() {
	var delims string
	var output string
	var timeout time.Duration
	flag.StringVar(&delims, "delims", " \n", "word delimiters; the first one splits the file")
	flag.StringVar(&output, "output", "", "file to write counts to (default: standard output)")
	flag.DurationVar(&timeout, "timeout", time.Minute, "time limit for connecting to the other ranks")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wordcount [flags] <file>")
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
	log.Printf("loaded %d bytes", len(coll.Value()))

	counts := dist.Map(coll, func(text string) map[string]int {
		res := map[string]int{}
		tok := dist.NewTokenizer(text, delims)
		for tok.Next() {
			res[tok.Token()]++
		}
		return res
	})
	total, err := dist.Reduce(counts, reduce.MergeCounts[string, int])
	if err != nil {
		essentials.Die(err)
	}

	if output == "" {
		total.ForEach(func(counts map[string]int) {
			essentials.Must(writeCounts(os.Stdout, counts))
		})
	} else if err := total.Persist(dist.FileWriter(writeCounts), output); err != nil {
		essentials.Die(err)
	}
}

// writeCounts prints the most frequent words first.
func writeCounts(w io.Writer, counts map[string]int) error {
	words := make([]string, 0, len(counts))
	freqs := make([]int, 0, len(counts))
	for word, n := range counts {
		words = append(words, word)
		freqs = append(freqs, n)
	}
	essentials.VoodooSort(freqs, func(i, j int) bool {
		if freqs[i] != freqs[j] {
			return freqs[i] > freqs[j]
		}
		return words[i] < words[j]
	}, words)
	for i, word := range words {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", word, freqs[i]); err != nil {
			return err
		}
	}
	return nil
}
