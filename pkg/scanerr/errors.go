// Package scanerr defines the error kinds shared by the storage layers and the
// scan service.
package scanerr

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies a failure independently of where it happened.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindCorrupted
	KindInvalidArgument
	KindInvalidOperation
	KindIOFailure
	KindMigrationFailed
)

var (
	ErrNotFound         = errors.New("not found")
	ErrCorrupted        = errors.New("corrupted")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrIOFailure        = errors.New("io failure")
	ErrMigrationFailed  = errors.New("migration failed")
)

var sentinels = map[Kind]error{
	KindNotFound:         ErrNotFound,
	KindCorrupted:        ErrCorrupted,
	KindInvalidArgument:  ErrInvalidArgument,
	KindInvalidOperation: ErrInvalidOperation,
	KindIOFailure:        ErrIOFailure,
	KindMigrationFailed:  ErrMigrationFailed,
}

// String returns the kind name used in messages and CLI output.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindCorrupted:
		return "Corrupted"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindIOFailure:
		return "IOFailure"
	case KindMigrationFailed:
		return "MigrationFailed"
	default:
		return "Unknown"
	}
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "load metadata") and Err carries the cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, sentinelText(e.Kind))
	case e.Err != nil:
		return e.Err.Error()
	default:
		return sentinelText(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind, so that
// errors.Is(err, scanerr.ErrNotFound) works through any wrapping.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && target == s
}

func sentinelText(k Kind) string {
	if s, ok := sentinels[k]; ok {
		return s.Error()
	}
	return "unknown error"
}

// E builds a classified error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// FromFS classifies a filesystem error: a missing path becomes NotFound,
// anything else IOFailure. Errors that already carry a kind keep it.
func FromFS(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return E(KindNotFound, op, err)
	}
	return E(KindIOFailure, op, err)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return KindUnknown
}
