// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package dex

// ErrorKind identifies a kind of error that can be used to define new errors
// via const SomeError = dex.ErrorKind("something").
type ErrorKind string

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// The error kinds raised by the order-matching core. Discovery swallows
// per-cell decode and validation failures; explicit APIs raise.
const (
	// ErrDecode means a raw cell payload did not parse as order data.
	ErrDecode = ErrorKind("decode failure")
	// ErrInvalidEntity means semantic validation of a parsed entity failed.
	ErrInvalidEntity = ErrorKind("invalid entity")
	// ErrInfeasibleMatch means a caller-supplied allowance is below the
	// order's minimum match size.
	ErrInfeasibleMatch = ErrorKind("infeasible match")
	// ErrInvalidDescendant means a cell claiming descent from an order
	// failed the confusion-attack checks.
	ErrInvalidDescendant = ErrorKind("invalid descendant")
	// ErrIncompatibleOrder means a match was requested in a direction the
	// order cannot be matched in.
	ErrIncompatibleOrder = ErrorKind("incompatible order")
	// ErrOverflow means an amount exceeded its declared width.
	ErrOverflow = ErrorKind("integer overflow")
)

// Error pairs an error with details.
type Error struct {
	wrapped error
	detail  string
}

// Error satisfies the error interface, combining the wrapped error message
// with the details.
func (e Error) Error() string {
	return e.wrapped.Error() + ": " + e.detail
}

// Unwrap returns the wrapped error, allowing errors.Is and errors.As to work.
func (e Error) Unwrap() error {
	return e.wrapped
}

// NewError wraps the provided Error with details in a Error, facilitating the
// use of errors.Is and errors.As via errors.Unwrap.
func NewError(err error, detail string) Error {
	return Error{
		wrapped: err,
		detail:  detail,
	}
}
