package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Code is the machine-readable error class returned to API clients.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	// CodeDependency covers mobile-money gateway and datastore outages.
	CodeDependency Code = "DEPENDENCY_ERROR"
	// CodeFailedPrecondition signals missing required configuration.
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
)

// Policy describes how a code is rendered over HTTP.
type Policy struct {
	HTTPStatus int
	// PublicMessage replaces the internal message unless ClientMessage is set.
	PublicMessage string
	// ClientMessage lets the caller's own message through to the client.
	ClientMessage bool
	ExposeDetails bool
	// RetryAfter is sent as a Retry-After hint when non-zero.
	RetryAfter time.Duration
}

var policies = map[Code]Policy{
	CodeValidation:         {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", ClientMessage: true, ExposeDetails: true},
	CodeUnauthorized:       {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ClientMessage: true},
	CodeNotFound:           {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", ClientMessage: true},
	CodeConflict:           {HTTPStatus: http.StatusConflict, PublicMessage: "payment already recorded", ClientMessage: true},
	CodeIdempotency:        {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused with a different request", ClientMessage: true, ExposeDetails: true},
	CodeRateLimit:          {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "too many status checks", ClientMessage: true, RetryAfter: 30 * time.Second},
	CodeInternal:           {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error"},
	CodeDependency:         {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "payment provider unavailable; retry with the same Idempotency-Key", ExposeDetails: true, RetryAfter: 15 * time.Second},
	CodeFailedPrecondition: {HTTPStatus: http.StatusPreconditionFailed, PublicMessage: "service not configured", ClientMessage: true},
}

// PolicyFor returns the rendering policy of code, falling back to internal.
func PolicyFor(code Code) Policy {
	if p, ok := policies[code]; ok {
		return p
	}
	return policies[CodeInternal]
}

// Error is a classified error. The message is for logs and, when the code's
// policy allows it, for the client.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap classifies cause. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches client-facing details and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost classified error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}
