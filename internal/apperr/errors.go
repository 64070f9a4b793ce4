// Package apperr defines the error taxonomy shared by the sync engine, the
// provider adapters and the CLI.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller must react to it.
type Kind string

const (
	// KindInternal is the fallback for errors that carry no classification.
	KindInternal Kind = "internal"

	// KindConfig is a missing required credential or setting. User-visible;
	// aborts the affected provider operation only.
	KindConfig Kind = "config"

	// KindParam is a bad user-supplied argument or profile name. User-visible;
	// raised before any I/O.
	KindParam Kind = "param"

	// KindValidation is a single raw item failing its shape check. The item is
	// skipped and the run continues.
	KindValidation Kind = "validation"

	// KindTransientAuth is a credential rejection that survived one refresh.
	KindTransientAuth Kind = "transient_auth"

	// KindTransport is a network or API failure that is not an auth signature.
	// Fatal to the current run.
	KindTransport Kind = "transport"

	// KindDuplicateName is a sync profile name collision.
	KindDuplicateName Kind = "duplicate_name"
)

// Error wraps a failure with its Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Config reports a missing credential or setting.
func Config(format string, args ...any) error {
	return New(KindConfig, format, args...)
}

// Param reports a bad user-supplied argument.
func Param(format string, args ...any) error {
	return New(KindParam, format, args...)
}

// Validation reports a malformed individual item.
func Validation(err error, format string, args ...any) error {
	if err == nil {
		return New(KindValidation, format, args...)
	}
	return Wrap(KindValidation, err, format, args...)
}

// TransientAuth reports a credential rejection that persisted after a refresh.
func TransientAuth(err error, format string, args ...any) error {
	return Wrap(KindTransientAuth, err, format, args...)
}

// Transport reports a network or API failure.
func Transport(err error, format string, args ...any) error {
	return Wrap(KindTransport, err, format, args...)
}

// DuplicateName reports a sync profile name collision.
func DuplicateName(name string) error {
	return New(KindDuplicateName, "sync profile %q already exists", name)
}

// KindOf extracts the outermost Kind from an error chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether any error in the chain has the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsUserVisible reports whether the CLI should print only the message, with
// no stack or error log line.
func IsUserVisible(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindParam, KindDuplicateName:
		return true
	}
	return false
}
