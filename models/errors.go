// models/errors.go
package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected action. Kinds are stable strings sent to clients.
type ErrorKind string

const (
	KindNotFound             ErrorKind = "not_found"
	KindForbidden            ErrorKind = "forbidden"
	KindAlreadyInProgress    ErrorKind = "already_in_progress"
	KindAlreadyConnected     ErrorKind = "already_connected"
	KindInvalidWager         ErrorKind = "invalid_wager"
	KindInsufficientPlayers  ErrorKind = "insufficient_players"
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	KindClosed               ErrorKind = "closed"
	KindFull                 ErrorKind = "full"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindInternal             ErrorKind = "internal"
)

// Error is the typed error returned by every game operation.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is matches on kind, so errors.Is(err, ErrNotFound) holds for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

var (
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrAlreadyInProgress    = &Error{Kind: KindAlreadyInProgress}
	ErrAlreadyConnected     = &Error{Kind: KindAlreadyConnected}
	ErrInvalidWager         = &Error{Kind: KindInvalidWager}
	ErrInsufficientPlayers  = &Error{Kind: KindInsufficientPlayers}
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrClosed               = &Error{Kind: KindClosed}
	ErrFull                 = &Error{Kind: KindFull}
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
)

// Errorf builds a typed error of the given kind.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or KindInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
