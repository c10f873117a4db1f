// Package apperr classifies failures that reach the user.
//
// Every error crossing a network or parse boundary is converted into an
// *Error carrying a Kind. Components report them through a Notifier,
// which is the only path by which failures reach display state.
package apperr

import (
	"errors"
	"fmt"
	"sync"
)

// Kind describes how a failure should be handled
type Kind int

const (
	// Terminal failures need user action (bad config, revoked grant)
	Terminal Kind = iota
	// Transient failures may succeed if retried
	Transient
	// UserCancelable failures come from the user declining an action
	UserCancelable
	// Decode failures come from malformed provider responses
	Decode
)

// String returns a human-readable representation of the kind
func (k Kind) String() string {
	switch k {
	case Terminal:
		return "terminal"
	case Transient:
		return "transient"
	case UserCancelable:
		return "canceled"
	case Decode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a classified failure
type Error struct {
	Kind    Kind
	Op      string // Operation that failed, e.g. "auth.exchange"
	Message string // Message suitable for display
	Err     error  // Underlying cause, may be nil
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary returns true if retrying may succeed
func (e *Error) Temporary() bool {
	return e.Kind == Transient
}

// New creates a classified error
func New(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
// Unclassified errors are treated as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Notifier receives classified failures for display
type Notifier interface {
	Notify(err *Error)
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(err *Error)

// Notify calls f(err)
func (f NotifierFunc) Notify(err *Error) {
	f(err)
}

// Discard is a Notifier that drops every error
var Discard Notifier = NotifierFunc(func(*Error) {})

// Last keeps the most recent error for display
type Last struct {
	mu  sync.Mutex
	err *Error
}

// Notify records err
func (l *Last) Notify(err *Error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Get returns the most recent error, or nil
func (l *Last) Get() *Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Clear forgets the recorded error
func (l *Last) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = nil
}
