// Package apperr classifies failures coming back from remote calls.
//
// The runtime distinguishes exactly two kinds:
//   - Cancelled: the request was superseded or intentionally aborted. Never
//     user-facing, never retried.
//   - Unknown: everything else (transport, backend error, malformed payload).
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindCancelled marks a superseded or aborted request.
	KindCancelled Kind = "CANCELLED"

	// KindUnknown marks any other failure.
	KindUnknown Kind = "UNKNOWN"
)

// cancelMarkers are matched case-insensitively against an error's message and
// dynamic type name by Classify.
var cancelMarkers = []string{"abort", "cancel"}

// Error is a classified failure.
type Error struct {
	// Kind is the failure category.
	Kind Kind

	// Op names the operation that failed (e.g. "queue.set-queue").
	Op string

	// Err is the underlying failure, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, strings.ToLower(string(e.Kind)))
	default:
		return strings.ToLower(string(e.Kind))
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Cancelled wraps err as a cancellation of op.
func Cancelled(op string, err error) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// Unknown wraps err as an unclassified failure of op.
func Unknown(op string, err error) *Error {
	return &Error{Kind: KindUnknown, Op: op, Err: err}
}

// ErrSuperseded is returned to waiters of a request whose result was discarded
// because a newer request for the same target replaced it.
var ErrSuperseded = Cancelled("", errors.New("request superseded"))

// Classify returns the Kind of err. A nil error classifies as Unknown; callers
// are expected to check for nil first.
//
// Order of inspection: an explicit *Error kind, context.Canceled anywhere in
// the chain, then abort/cancel markers in the message or the type name.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ae *Error
	if errors.As(err, &ae) && ae.Kind == KindCancelled {
		return KindCancelled
	}

	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}

	msg := strings.ToLower(err.Error())
	typeName := strings.ToLower(fmt.Sprintf("%T", err))
	for _, marker := range cancelMarkers {
		if strings.Contains(msg, marker) || strings.Contains(typeName, marker) {
			return KindCancelled
		}
	}

	return KindUnknown
}

// IsCancelled reports whether err classifies as a cancellation.
func IsCancelled(err error) bool {
	return err != nil && Classify(err) == KindCancelled
}

// Message returns the human-readable text stored in a store's errorMessage
// field. Cancellations and nil produce "".
func Message(err error) string {
	if err == nil || IsCancelled(err) {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// From wraps err as a failure of op with its classified Kind. An err that is
// already an *Error keeps its kind and gains op only if it has none.
func From(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Op != "" || op == "" {
			return ae
		}
		return &Error{Kind: ae.Kind, Op: op, Err: err}
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}
