// errors.go defines the error kinds every backend reports, so callers can tell an
// unknown id apart from an unreachable or unauthorized backend.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports an unknown id, path, or title.
	ErrNotFound = errors.New("not found")

	// ErrBackendUnavailable reports a network or filesystem failure, including a
	// pagination failure part-way through a listing.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrAuthExpired reports that the remote credential is no longer valid.
	ErrAuthExpired = errors.New("backend credentials expired")

	// ErrStreamIntegrity reports a violated chunk cursor invariant. It indicates a
	// programming defect, never a recoverable condition.
	ErrStreamIntegrity = errors.New("stream integrity violated")

	// ErrUnsupported reports an operation a backend does not provide.
	ErrUnsupported = errors.New("operation not supported")
)

// Error is the error type returned by backends.
type Error struct {
	Backend string
	Op      string
	ID      string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	msg := e.Backend + " " + e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error. A nil kind defaults to ErrBackendUnavailable.
func NewError(backend, op, id string, kind, err error) *Error {
	if kind == nil {
		kind = ErrBackendUnavailable
	}
	return &Error{Backend: backend, Op: op, ID: id, Kind: kind, Err: err}
}

// Wrap attaches backend context to err. Errors that already carry a kind and
// context cancellations are returned unchanged; anything else is reported as
// kind.
func Wrap(backend, op, id string, kind, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewError(backend, op, id, kind, err)
}

// KindOf returns the kind carried by err, or nil if err has none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrAuthExpired, ErrStreamIntegrity, ErrUnsupported, ErrBackendUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindLabel returns a short metric/log label for err's kind.
func KindLabel(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrAuthExpired:
		return "auth_expired"
	case ErrStreamIntegrity:
		return "stream_integrity"
	case ErrUnsupported:
		return "unsupported"
	case ErrBackendUnavailable:
		return "unavailable"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "other"
}
