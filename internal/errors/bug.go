package errors

import (
	"errors"
	"fmt"
)

// bugError marks an internal bookkeeping inconsistency. It is never the
// result of user input and must not be recovered from.
type bugError struct {
	msg string
	err error
}

func (e *bugError) Error() string {
	if e.err == nil {
		return "internal error: " + e.msg
	}
	return "internal error: " + e.msg + ": " + e.err.Error()
}

func (e *bugError) Unwrap() error {
	return e.err
}

// Bug returns an error that reports an internal inconsistency. The sentinel
// err stays matchable with errors.Is.
func Bug(err error, msg string) error {
	return WithStack(&bugError{msg: msg, err: err})
}

// Bugf is like Bug with a format string.
func Bugf(err error, format string, args ...interface{}) error {
	return Bug(err, fmt.Sprintf(format, args...))
}

// IsBug returns true if err was created by Bug or Bugf.
func IsBug(err error) bool {
	var bug *bugError
	return errors.As(err, &bug)
}
