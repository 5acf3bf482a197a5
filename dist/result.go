package dist

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/unixpickle/essentials"
)

// A Collected is the outcome of a reduction.
//
// The value is only present on the coordinator. On every
// other rank, the operations on a Collected do nothing.
type Collected[T any] struct {
	value T
	ok    bool
}

// Value gets the reduced value, if this rank holds it.
func (c *Collected[T]) Value() (T, bool) {
	return c.value, c.ok
}

// Present checks if this rank holds the reduced value.
func (c *Collected[T]) Present() bool {
	return c.ok
}

// MapCollected transforms the reduced value on the
// coordinator. On other ranks, f is not called.
func MapCollected[T, R any](c *Collected[T], f func(T) R) *Collected[R] {
	res := &Collected[R]{}
	if c.ok {
		res.value = f(c.value)
		res.ok = true
	}
	return res
}

// ForEach passes the reduced value to sink on the
// coordinator. On other ranks, sink is not called.
func (c *Collected[T]) ForEach(sink func(T)) {
	if c.ok {
		sink(c.value)
	}
}

// A Writer stores a value at some destination.
type Writer[T any] func(value T, dest string) error

// Persist saves the reduced value with w on the
// coordinator. On other ranks, it does nothing and
// returns nil.
func (c *Collected[T]) Persist(w Writer[T], dest string) error {
	if !c.ok {
		return nil
	}
	return w(c.value, dest)
}

// FileWriter creates a Writer that formats values into a
// file at the destination path.
//
// The file is written under a temporary name and renamed
// into place, so an error never leaves a partial file at
// the destination.
func FileWriter[T any](format func(w io.Writer, value T) error) Writer[T] {
	return func(value T, dest string) (err error) {
		defer essentials.AddCtxTo("persist "+dest, &err)

		f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
		if err != nil {
			return err
		}
		tmpPath := f.Name()
		defer func() {
			if err != nil {
				os.Remove(tmpPath)
			}
		}()

		w := bufio.NewWriter(f)
		if err := format(w, value); err != nil {
			f.Close()
			return err
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Rename(tmpPath, dest)
	}
}
