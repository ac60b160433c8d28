package query

import (
	"errors"
	"fmt"
)

// ErrNotFound means a well-formed query matched nothing
var ErrNotFound = errors.New("not found")

// ErrTooManyResults means a list matched more records than the store is
// configured to return. Callers can still count the match.
var ErrTooManyResults = errors.New("too many results")

// InputError is a missing or malformed request parameter
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func badRequest(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failed Gateway call
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err is a client input error
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsStoreError reports whether err is a store failure
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
