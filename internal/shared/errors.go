// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Errors shared by the session layer and the platform stores.
var (
	// ErrArgument indicates a missing or blank required argument or collaborator
	ErrArgument = errors.New("invalid argument")

	// ErrNotInitialized indicates that a session was used before it was opened
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidOperation indicates a violated usage contract, such as writing
	// through a read-only context or committing without a transaction
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrConnection indicates that the relational engine could not be reached
	ErrConnection = errors.New("connection failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindArgument represents invalid argument errors
	KindArgument
	// KindNotInitialized represents use-before-open errors
	KindNotInitialized
	// KindInvalidOperation represents contract violations
	KindInvalidOperation
	// KindConnection represents engine connectivity errors
	KindConnection
	// KindTimeout represents timeout errors
	KindTimeout
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "Argument"
	case KindNotInitialized:
		return "NotInitialized"
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindConnection:
		return "Connection"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindArgument:         ErrArgument,
	KindNotInitialized:   ErrNotInitialized,
	KindInvalidOperation: ErrInvalidOperation,
	KindConnection:       ErrConnection,
	KindTimeout:          ErrTimeout,
}

// kindPriorities defines the deterministic order for error classification.
// Higher priority (lower index) kinds are checked first in KindOf.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindArgument, ErrArgument},
	{KindNotInitialized, ErrNotInitialized},
	{KindInvalidOperation, ErrInvalidOperation},
	{KindConnection, ErrConnection},
}

// KindOf returns the Kind of the given error by checking against known sentinel errors.
// It traverses the error chain using a deterministic priority order:
//  1. KindCanceled (context.Canceled)
//  2. KindTimeout (context.DeadlineExceeded, ErrTimeout, net timeout errors)
//  3. KindArgument, KindNotInitialized, KindInvalidOperation
//  4. KindConnection
//
// A connection failure caused by a canceled open is therefore reported as KindCanceled.
// Returns KindUnknown for unrecognized errors.
//
// Example:
//
//	switch shared.KindOf(err) {
//	case shared.KindInvalidOperation:
//	    panic(err) // programming error, fail fast
//	case shared.KindConnection:
//	    return retryLater(err)
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether the given error has the specified kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SentinelOf returns the sentinel error for the given Kind.
// For KindUnknown and KindCanceled, it returns nil.
func SentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps an error with the sentinel error for the given kind,
// preserving the original error through error wrapping.
// If err is nil, returns the sentinel error for the kind.
// Marking an error with a kind it already has returns the error unchanged.
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	sentinel := SentinelOf(kind)
	if sentinel == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// Wrap wraps an error with additional context.
// If err is nil, Wrap returns nil. If context is empty, returns the original error.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// CloseInto runs closeFn and joins its error after *errp, so a release failure
// never replaces the error that triggered the release.
//
// Example:
//
//	func work(f *dbfactory.Factory) (err error) {
//	    defer shared.CloseInto(&err, f.Dispose)
//	    ...
//	}
func CloseInto(errp *error, closeFn func() error) {
	if closeErr := closeFn(); closeErr != nil {
		*errp = errors.Join(*errp, closeErr)
	}
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and our ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsArgument reports whether the error indicates an invalid argument.
func IsArgument(err error) bool {
	return errors.Is(err, ErrArgument)
}

// IsNotInitialized reports whether the error indicates use before open.
func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}

// IsInvalidOperation reports whether the error indicates a contract violation.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsConnection reports whether the error indicates an engine connectivity failure.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}
