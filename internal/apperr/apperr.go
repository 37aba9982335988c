package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindForbidden       Kind = "FORBIDDEN"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindInvalidTime     Kind = "INVALID_TIME"
	KindInvalidState    Kind = "INVALID_STATE"
)

// Error is a rejected operation: a machine-readable kind plus a message fit for display.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(msg string) error        { return New(KindNotFound, msg) }
func Forbidden(msg string) error       { return New(KindForbidden, msg) }
func InvalidArgument(msg string) error { return New(KindInvalidArgument, msg) }
func InvalidTime(msg string) error     { return New(KindInvalidTime, msg) }
func InvalidState(msg string) error    { return New(KindInvalidState, msg) }

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
