package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeOutOfStock   Code = "OUT_OF_STOCK"
	CodeInvalidSig   Code = "INVALID_SIGNATURE"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal     Code = "INTERNAL_ERROR"
	// CodeDependency marks a failed or timed-out call to the payment gateway.
	CodeDependency Code = "DEPENDENCY_ERROR"
)

// Metadata is the public face of a code: its HTTP status, the message shown
// when the error's own message is withheld, and whether details travel.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message reach the client.
	ExposeMessage bool
}

func clientError(status int, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, DetailsAllowed: details, ExposeMessage: true}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   clientError(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized: clientError(http.StatusUnauthorized, "authentication required", false),
	CodeForbidden:    clientError(http.StatusForbidden, "access denied", false),
	CodeNotFound:     clientError(http.StatusNotFound, "resource not found", false),
	CodeConflict:     clientError(http.StatusConflict, "conflict detected", true),
	CodeOutOfStock:   clientError(http.StatusConflict, "out of stock", true),
	CodeInvalidSig:   clientError(http.StatusBadRequest, "invalid signature", false),
	CodeIdempotency:  clientError(http.StatusConflict, "idempotency key reused", true),
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	// Gateway failures keep their details (gateway status code) but never the
	// raw message, which may echo upstream bodies.
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

// MetadataFor falls back to Internal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// PublicMessage picks the message a client may see for e.
func PublicMessage(e *Error) string {
	meta := MetadataFor(e.Code())
	if meta.ExposeMessage && e.Message() != "" {
		return e.Message()
	}
	return meta.PublicMessage
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

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
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
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
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
	return typed != nil && typed.Code() == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
