package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the kinds of failure the harvester distinguishes
type ErrorType string

const (
	ErrorTypeResolutionExhausted ErrorType = "resolution_exhausted"
	ErrorTypeAuthRequired        ErrorType = "auth_required"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeNotResolvable       ErrorType = "not_resolvable"
	ErrorTypeDownloadFailed      ErrorType = "download_failed"
	ErrorTypeRefreshTimeout      ErrorType = "refresh_timeout"
	ErrorTypeRefreshUnavailable  ErrorType = "refresh_unavailable"
	ErrorTypeNoContent           ErrorType = "no_content"
	ErrorTypeUnknown             ErrorType = "unknown"
)

// Sentinel errors. Typed errors of the matching type compare equal to these via errors.Is.
var (
	ErrRefreshTimeout     = &Error{Type: ErrorTypeRefreshTimeout, Message: "authentication not detected before timeout"}
	ErrRefreshUnavailable = &Error{Type: ErrorTypeRefreshUnavailable, Message: "browser automation is not available"}
	ErrNoContent          = &Error{Type: ErrorTypeNoContent, Message: "no valid video found"}
	ErrNoCredential       = &Error{Type: ErrorTypeAuthRequired, Message: "no valid cookie file"}
)

// Error carries a failure type alongside the operation that produced it
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

// New creates a typed error
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap attaches a type to an underlying error
func Wrap(t ErrorType, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "" && e.Err != nil:
		fmt.Fprintf(&b, "%s: %v", e.Message, e.Err)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Message != "":
		b.WriteString(e.Message)
	default:
		fmt.Fprintf(&b, "%s error", e.Type)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// TypeOf returns the type of the first *Error in err's chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is is a re-export of the standard errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is a re-export of the standard errors.As
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Truncate shortens an error message for per-source reasons
func Truncate(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	r := []rune(msg)
	if len(r) <= max {
		return msg
	}
	return string(r[:max])
}
