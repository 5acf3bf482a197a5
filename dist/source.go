package dist

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/unixpickle/spmd/comm"
)

// ErrSourceUnavailable indicates that the input for a load
// could not be opened or read.
//
// It is raised before any message is exchanged, so it is
// safe for the caller to recover from it.
var ErrSourceUnavailable = errors.New("source unavailable")

// A Source is input that every rank can read byte ranges
// from concurrently.
//
// *bytes.Reader and *strings.Reader are Sources.
type Source interface {
	io.ReaderAt
	Size() int64
}

// A FileSource is a Source backed by a file.
type FileSource struct {
	*os.File
	size int64
}

// OpenFile opens a file as a Source.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, comm.WithKind(ErrSourceUnavailable, "", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, comm.WithKind(ErrSourceUnavailable, "", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, comm.WithKind(ErrSourceUnavailable, "", fmt.Errorf("%s is a directory", path))
	}
	return &FileSource{File: f, size: info.Size()}, nil
}

// Size gets the size of the file when it was opened.
func (f *FileSource) Size() int64 {
	return f.size
}

// ByteRange computes the range [start, end) of an input
// of n bytes that a rank reads.
//
// Every rank but the last reads n/size bytes; the last
// rank also reads the remainder.
func ByteRange(rank, size int, n int64) (start, end int64) {
	if rank < 0 || rank >= size {
		panic("rank out of range")
	}
	chunk := n / int64(size)
	start = int64(rank) * chunk
	end = start + chunk
	if rank == size-1 {
		end = n
	}
	return
}
