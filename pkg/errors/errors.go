// Package errors defines the typed error codes shared by the ledger services
// and how each one surfaces over HTTP.
package errors

import (
	stdErrors "errors"
	"fmt"
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
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeTooLarge      Code = "PAYLOAD_TOO_LARGE"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// CodePreconditionPending marks a settlement event whose predecessor has
	// not been committed yet. The processor redelivers it later.
	CodePreconditionPending Code = "PRECONDITION_PENDING"
	// CodeLedgerInconsistency marks an event that would break a ledger
	// invariant if applied.
	CodeLedgerInconsistency Code = "LEDGER_INCONSISTENCY"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	opaque    = false
	detailed  = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:          {http.StatusBadRequest, final, "validation failed", detailed},
	CodeUnauthorized:        {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:           {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:            {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:            {http.StatusConflict, final, "conflict detected", opaque},
	CodeStateConflict:       {http.StatusUnprocessableEntity, final, "state transition disallowed", detailed},
	CodeIdempotency:         {http.StatusConflict, final, "idempotency key reused", detailed},
	CodeRateLimit:           {http.StatusTooManyRequests, final, "rate limit exceeded", opaque},
	CodeTooLarge:            {http.StatusRequestEntityTooLarge, final, "request body too large", detailed},
	CodeInternal:            {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:          {http.StatusServiceUnavailable, retryable, "dependency unavailable", detailed},
	CodePreconditionPending: {http.StatusConflict, retryable, "predecessor event not yet applied", detailed},
	CodeLedgerInconsistency: {http.StatusUnprocessableEntity, final, "ledger inconsistency", opaque},
}

// MetadataFor returns how code is rendered. Unknown codes render as internal errors.
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

// Wrap attaches code and message to err. A nil err behaves like New.
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

// As returns the outermost typed error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeIs(code)
}

func (e *Error) codeIs(code Code) bool {
	return e != nil && e.code == code
}

// IsRetryable reports whether the outermost typed error in err's chain is
// marked retryable. Untyped errors are not.
func IsRetryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}
