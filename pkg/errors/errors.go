package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInvariant     Code = "INVARIANT_VIOLATION"
	CodePaymentFailed Code = "PAYMENT_FAILED"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets the typed message and details reach the client.
	DetailsAllowed bool
}

const (
	retryable   = true
	showDetails = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, !retryable, "validation failed", showDetails},
	CodeUnauthorized:  {http.StatusUnauthorized, !retryable, "authentication required", !showDetails},
	CodeForbidden:     {http.StatusForbidden, !retryable, "access denied", !showDetails},
	CodeNotFound:      {http.StatusNotFound, !retryable, "resource not found", !showDetails},
	CodeConflict:      {http.StatusConflict, !retryable, "conflict detected", !showDetails},
	CodeStateConflict: {http.StatusUnprocessableEntity, !retryable, "state transition disallowed", showDetails},
	CodeInvariant:     {http.StatusUnprocessableEntity, !retryable, "payment state invariant violated", showDetails},
	CodePaymentFailed: {http.StatusPaymentRequired, retryable, "payment could not be processed", showDetails},
	CodeIdempotency:   {http.StatusConflict, !retryable, "idempotency key reused", showDetails},
	CodeRateLimit:     {http.StatusTooManyRequests, !retryable, "rate limit exceeded", !showDetails},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", !showDetails},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", showDetails},
}

// MetadataFor treats unknown codes as internal errors.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is/As. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
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

// WithDetails attaches client-visible context. It mutates and returns e.
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
		return string(e.code) + ": " + e.message + ": " + e.cause.Error()
	default:
		return string(e.code) + ": " + e.message
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
