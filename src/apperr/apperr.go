// Package apperr defines the error taxonomy shared by the realtime
// core. Mutating operations return these; controllers map them onto
// HTTP statuses. Watch streams never surface Transient errors to their
// consumers, they log and resubscribe instead.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation rejects bad input synchronously (self-connection,
	// empty message text). Never retried.
	KindValidation Kind = iota + 1
	// KindConflict signals a duplicate pending request or an already
	// connected pair. Surfaced to the user, never retried automatically.
	KindConflict
	// KindNotFound signals an accept/reject on a request that vanished,
	// typically because the other side raced a reject.
	KindNotFound
	// KindTransient wraps stream/store disconnects handled by
	// resubscription.
	KindTransient
)

type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// Message returns the user-facing text without any wrapped cause.
func (e *Error) Message() string { return e.msg }

func Validation(msg string) error { return &Error{kind: KindValidation, msg: msg} }
func Conflict(msg string) error   { return &Error{kind: KindConflict, msg: msg} }
func NotFound(msg string) error   { return &Error{kind: KindNotFound, msg: msg} }

func Transient(msg string, cause error) error {
	return &Error{kind: KindTransient, msg: msg, err: cause}
}

// IsKind reports whether err is an apperr.Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.kind == kind
}

func IsValidation(err error) bool { return IsKind(err, KindValidation) }
func IsConflict(err error) bool   { return IsKind(err, KindConflict) }
func IsNotFound(err error) bool   { return IsKind(err, KindNotFound) }
func IsTransient(err error) bool  { return IsKind(err, KindTransient) }
