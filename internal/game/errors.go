package game

import (
	"errors"
	"fmt"
)

// Kind classifies an action failure. Every failing action leaves the room
// unchanged and is reported only to the caller.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindTurnOrder          Kind = "turn_order"
	KindNotOwned           Kind = "not_owned"
	KindInsufficientFunds  Kind = "insufficient_funds"
	KindInsufficientShares Kind = "insufficient_shares"
	KindState              Kind = "state"
)

// Error is the typed failure returned by every room operation.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches sentinels of the same kind, so errors.Is(err, ErrValidation)
// works for any validation failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrTurnOrder          = &Error{Kind: KindTurnOrder}
	ErrNotOwned           = &Error{Kind: KindNotOwned}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares = &Error{Kind: KindInsufficientShares}
	ErrState              = &Error{Kind: KindState}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

// KindOf returns the kind of a game error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
