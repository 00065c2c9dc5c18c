package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure categories understood
// by the harness. The numeric values are a wire contract.
type ErrorKind int // AC

const ( // AC
	// ErrTimeout: the operation did not complete in time.
	ErrTimeout ErrorKind = 0
	// ErrNodeNotFound: the target node is unknown.
	ErrNodeNotFound ErrorKind = 1
	// ErrNotSupported: no handler for the discriminator.
	ErrNotSupported ErrorKind = 10
	// ErrTemporarilyUnavailable: the operation cannot
	// proceed right now.
	ErrTemporarilyUnavailable ErrorKind = 11
	// ErrMalformedRequest: input did not have the
	// expected shape.
	ErrMalformedRequest ErrorKind = 12
	// ErrCrash: unclassified failure that may have taken
	// effect.
	ErrCrash ErrorKind = 13
	// ErrAbort: unclassified failure known not to have
	// taken effect.
	ErrAbort ErrorKind = 14
	// ErrKeyDoesNotExist: the requested key is absent.
	ErrKeyDoesNotExist ErrorKind = 20
	// ErrKeyAlreadyExists: key creation collided.
	ErrKeyAlreadyExists ErrorKind = 21
	// ErrPreconditionFailed: a required precondition was
	// not met.
	ErrPreconditionFailed ErrorKind = 22
	// ErrTxnConflict: a conflicting transaction won.
	ErrTxnConflict ErrorKind = 30
)

var errorKindNames = map[ErrorKind]string{ // A
	ErrTimeout:                "timeout",
	ErrNodeNotFound:           "node-not-found",
	ErrNotSupported:           "not-supported",
	ErrTemporarilyUnavailable: "temporarily-unavailable",
	ErrMalformedRequest:       "malformed-request",
	ErrCrash:                  "crash",
	ErrAbort:                  "abort",
	ErrKeyDoesNotExist:        "key-does-not-exist",
	ErrKeyAlreadyExists:       "key-already-exists",
	ErrPreconditionFailed:     "precondition-failed",
	ErrTxnConflict:            "txn-conflict",
}

// String returns the kebab-case name of the kind.
func (k ErrorKind) String() string { // A
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Code returns the wire code of the kind.
func (k ErrorKind) Code() int { // H
	return int(k)
}

// Definite reports whether an error of this kind means
// the operation certainly did not take place. Timeout and
// Crash are indefinite.
func (k ErrorKind) Definite() bool { // A
	switch k {
	case ErrTimeout, ErrCrash:
		return false
	default:
		_, known := errorKindNames[k]
		return known
	}
}

// ErrorMessage is a protocol failure. It is returned from
// handlers and sent to peers as an "error" reply. The
// cause is for local diagnostics only and is never put on
// the wire.
type ErrorMessage struct { // AC
	kind  ErrorKind
	text  string
	cause error
}

// NewError creates an ErrorMessage of the given kind.
func NewError( // A
	kind ErrorKind,
	format string,
	args ...any,
) *ErrorMessage {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	return &ErrorMessage{kind: kind, text: text}
}

// WithCause returns a copy of e carrying cause.
func (e *ErrorMessage) WithCause(cause error) *ErrorMessage { // A
	cp := *e
	cp.cause = cause
	return &cp
}

// Kind returns the error kind.
func (e *ErrorMessage) Kind() ErrorKind { // H
	return e.kind
}

// Code returns the wire code.
func (e *ErrorMessage) Code() int { // H
	return int(e.kind)
}

// Text returns the human readable text.
func (e *ErrorMessage) Text() string { // H
	return e.text
}

// Error renders "[code] text", followed by a
// "\nSource: cause" line when a cause is attached.
func (e *ErrorMessage) Error() string { // A
	s := fmt.Sprintf("[%d] %s", int(e.kind), e.text)
	if e.cause != nil {
		s += "\nSource: " + e.cause.Error()
	}
	return s
}

// Unwrap returns the attached cause.
func (e *ErrorMessage) Unwrap() error { // A
	return e.cause
}

// Payload returns the wire payload of an "error" reply.
func (e *ErrorMessage) Payload() ErrorPayload { // A
	return ErrorPayload{Code: int(e.kind), Text: e.text}
}

// ErrorPayload is the body payload of an "error" message.
type ErrorPayload struct { // A
	Code int    `json:"code"`
	Text string `json:"text"`
}

// AsErrorMessage finds an *ErrorMessage in err's chain.
// Any other error is classified as Crash with err as the
// cause. A nil err yields nil.
func AsErrorMessage(err error) *ErrorMessage { // A
	if err == nil {
		return nil
	}
	var em *ErrorMessage
	if errors.As(err, &em) {
		return em
	}
	return NewError(ErrCrash, "internal error").WithCause(err)
}
