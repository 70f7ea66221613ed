// Package diag defines the errors raised while extracting scops and the
// reporter that prints them.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/raymyers/ralph-pet/pkg/cabs"
)

// Kind classifies extraction failures.
type Kind int

const (
	// Unsupported is a construct outside the analyzable subset.
	Unsupported Kind = iota
	// Missing is required structure that is absent, like a loop increment.
	Missing
	// UnbalancedPragmas is a scop/endscop pair that does not delimit a
	// range of statements of a single block.
	UnbalancedPragmas
	// Internal is a violated invariant of the extractor itself.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Unsupported:
		return "unsupported"
	case Missing:
		return "missing"
	case UnbalancedPragmas:
		return "unbalanced pragmas"
	case Internal:
		return "internal error"
	}
	return "unknown"
}

// Error is an extraction failure located in the source.
type Error struct {
	Kind Kind
	Msg  string
	Span cabs.Span

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.Msg
}

// Cause returns the underlying error of an internal error, which carries
// the stack trace of the failure.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Errorf returns an error of the given kind located at span.
func Errorf(kind Kind, span cabs.Span, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Span: span}
}

// Unsupportedf returns an Unsupported error located at span.
func Unsupportedf(span cabs.Span, format string, args ...interface{}) *Error {
	return Errorf(Unsupported, span, format, args...)
}

// Missingf returns a Missing error located at span.
func Missingf(span cabs.Span, format string, args ...interface{}) *Error {
	return Errorf(Missing, span, format, args...)
}

// Internalf returns an Internal error. The stack at the point of the call
// is recorded.
func Internalf(format string, args ...interface{}) *Error {
	cause := errors.Errorf(format, args...)
	return &Error{Kind: Internal, Msg: cause.Error(), cause: cause}
}

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsInternal reports whether err is an internal error.
func IsInternal(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Internal
}
