package providers

import (
	"errors"
	"fmt"
)

// ErrAuthFailed matches every adapter failure via errors.Is.
var ErrAuthFailed = errors.New("provider authentication failed")

// Error is returned by adapters. ClientSide marks causes attributable to the
// request or the user's provider account (bad code, missing or unverified
// email) as opposed to transport or provider-side failures.
type Error struct {
	Provider   ID
	ClientSide bool
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every *Error match ErrAuthFailed.
func (e *Error) Is(target error) bool {
	return target == ErrAuthFailed
}

// ClientError builds a client-side *Error.
func ClientError(id ID, format string, args ...any) error {
	return &Error{Provider: id, ClientSide: true, Err: fmt.Errorf(format, args...)}
}

// TransportError builds a transport or provider-side *Error.
func TransportError(id ID, err error) error {
	return &Error{Provider: id, Err: err}
}
