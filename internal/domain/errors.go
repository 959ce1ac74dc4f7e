package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindUnauthorized      ErrorKind = "UNAUTHORIZED"
	KindBadRequest        ErrorKind = "BAD_REQUEST"
	KindInternal          ErrorKind = "INTERNAL_ERROR"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindGroupFull         ErrorKind = "GROUP_FULL"
	KindAlreadyMember     ErrorKind = "ALREADY_MEMBER"
	KindGroupClosed       ErrorKind = "GROUP_CLOSED"
	KindAlreadyPaidOut    ErrorKind = "ALREADY_PAID_OUT"
	KindBusy              ErrorKind = "BUSY"
)

// Error is the typed result every engine operation fails with.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the same request may succeed later unchanged.
func (e *Error) Retryable() bool {
	return e.Kind == KindBusy
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrBadRequest        = &Error{Kind: KindBadRequest, Message: "bad request"}
	ErrInternal          = &Error{Kind: KindInternal, Message: "internal error"}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrGroupFull         = &Error{Kind: KindGroupFull, Message: "group is full"}
	ErrAlreadyMember     = &Error{Kind: KindAlreadyMember, Message: "already a member"}
	ErrGroupClosed       = &Error{Kind: KindGroupClosed, Message: "group is not accepting this operation"}
	ErrAlreadyPaidOut    = &Error{Kind: KindAlreadyPaidOut, Message: "payout already received"}
	ErrBusy              = &Error{Kind: KindBusy, Message: "resource busy, retry later"}

	// ErrDuplicate is returned by the ledger when a dedupe key is already taken.
	// Services translate it; it never crosses the API boundary.
	ErrDuplicate = errors.New("duplicate ledger entry")
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(format string, args ...any) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func InsufficientFunds(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func GroupFull(format string, args ...any) *Error {
	return &Error{Kind: KindGroupFull, Message: fmt.Sprintf(format, args...)}
}

func AlreadyMember(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyMember, Message: fmt.Sprintf(format, args...)}
}

func GroupClosed(format string, args ...any) *Error {
	return &Error{Kind: KindGroupClosed, Message: fmt.Sprintf(format, args...)}
}

func AlreadyPaidOut(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyPaidOut, Message: fmt.Sprintf(format, args...)}
}

func Busy(format string, args ...any) *Error {
	return &Error{Kind: KindBusy, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a storage or invariant failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
