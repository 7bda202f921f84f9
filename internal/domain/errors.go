package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error raised by the imaging core or the orchestrator
// matches exactly one of these through errors.Is.
var (
	ErrDecode       = errors.New("decode error")
	ErrNotFound     = errors.New("not found")
	ErrProcessing   = errors.New("processing error")
	ErrInvalidState = errors.New("invalid state")
	ErrPersistence  = errors.New("persistence error")
)

// Error is a kind-tagged error. Msg is the human readable text surfaced to
// API consumers; Op names the operation that failed.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Is matches the kind sentinel so errors.Is(err, ErrDecode) works.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a kind-tagged error for operation op.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags cause with kind. A nil cause yields nil.
func Wrap(kind error, op string, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

var kinds = []error{ErrDecode, ErrNotFound, ErrProcessing, ErrInvalidState, ErrPersistence}

// KindOf returns the kind sentinel carried by err, or nil for untagged errors.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
