package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the boundary layer.
type Kind uint8

const (
	// KindInternal is an unexpected failure: storage, zone translation,
	// network lookups. The request cannot be retried as-is.
	KindInternal Kind = iota

	// KindInvalidInput means the caller sent something that cannot be served.
	KindInvalidInput

	// KindNotFound means the request was valid but matched nothing.
	KindNotFound

	// KindBusy means the service is at capacity; retry later.
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindBusy:
		return "busy"
	default:
		return "internal"
	}
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrTooManyUploads) {
		return KindBusy
	}
	return KindInternal
}

func invalidInput(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

func invalidInputErr(op string, err error) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: err}
}

func notFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
