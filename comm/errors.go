package comm

import (
	"errors"

	"github.com/unixpickle/essentials"
)

var (
	// ErrTransport indicates that a send or receive could
	// not complete. A process that sees it cannot keep
	// participating in collective operations.
	ErrTransport = errors.New("transport failure")

	// ErrCodec indicates a payload that could not be
	// decoded into a well-formed value.
	ErrCodec = errors.New("codec failure")

	// ErrDeadlock is reported by a LocalNetwork when every
	// live rank is blocked waiting for a partner.
	// Errors that match it also match ErrTransport.
	ErrDeadlock = errors.New("deadlock: all ranks are blocked")
)

// WithKind attaches a sentinel kind and some context to
// an error, such that errors.Is(result, kind) holds.
//
// If err is nil, nil is returned.
func WithKind(kind error, ctx string, err error) error {
	if err == nil {
		return nil
	}
	if ctx != "" {
		err = essentials.AddCtx(ctx, err)
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (k *kindError) Error() string {
	return k.kind.Error() + ": " + k.err.Error()
}

func (k *kindError) Is(target error) bool {
	return target == k.kind
}

func (k *kindError) Unwrap() error {
	return k.err
}
