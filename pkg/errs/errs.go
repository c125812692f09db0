// Package errs defines the typed application errors surfaced by the
// entity store, address resolver and callable registry.
package errs

import "fmt"

// Error is an application error carrying a stable code alongside an
// optional wrapped cause. It mirrors the teacher repo's pkg/apperror.Error
// minus the HTTP-status/echo wiring, which has no home once the wire
// protocol is out of scope.
type Error struct {
	Code     string
	Message  string
	Internal error
	Details  map[string]any
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error { return e.Internal }

// Is compares by Code so that errors.Is(err, errs.ErrNotFound) matches any
// *Error sharing that code, regardless of message/details/cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) WithInternal(err error) *Error {
	c := *e
	c.Internal = err
	return &c
}

func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

// Sentinel errors, one per §7 error kind.
var (
	ErrMalformedAddress   = New("malformed_address", "address does not satisfy the @uuid[.path] grammar")
	ErrNotFound           = New("not_found", "no record or graph with the given id")
	ErrAlreadyRegistered  = New("already_registered", "a graph with this version_id already exists")
	ErrInvariantViolation = New("invariant_violation", "operation would break a store invariant")
	ErrUnknownFunction    = New("unknown_function", "no function registered under this name")
	ErrDuplicateName      = New("duplicate_name", "a function is already registered under this name")
	ErrPathError          = New("path_error", "address path cannot be walked")
	ErrTypeMismatch       = New("type_mismatch", "runtime value does not satisfy the declared type")
	ErrFunctionFailed     = New("function_failed", "registered function returned an error")
	ErrStoreInconsistency = New("store_inconsistency", "internal store invariant was violated; this should be unreachable")
)
