// Package errors bundles the error helpers used throughout enbox. Errors
// created or wrapped here carry a stack trace (via github.com/pkg/errors) and
// stay compatible with the Go 1.13 Is/As chain.
package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// New creates a new error based on message. Wrapped so that this package does
// not appear in the stack trace.
var New = errors.New

// Errorf creates an error based on a format string and values.
var Errorf = errors.Errorf

// Wrap annotates err with message. If err is nil, Wrap returns nil.
var Wrap = errors.Wrap

// Wrapf annotates err with the format specifier. If err is nil, Wrapf returns nil.
var Wrapf = errors.Wrapf

// WithMessage annotates err with message but does not record a second stack
// trace.
var WithMessage = errors.WithMessage

// WithStack annotates err with a stack trace at the point WithStack was called.
// If err is nil, WithStack returns nil.
var WithStack = errors.WithStack

// Cause returns the innermost error that does not implement Cause().
var Cause = errors.Cause

// As finds the first error in err's tree that matches target.
func As(err error, tgt interface{}) bool { return stderrors.As(err, tgt) }

// Is reports whether any error in err's tree matches target.
func Is(x, y error) bool { return stderrors.Is(x, y) }

// Join returns an error that wraps the given errors, nil values are discarded.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Unwrap returns the result of calling the Unwrap method on err, if any.
func Unwrap(err error) error { return stderrors.Unwrap(err) }
