// Package apperr carries coded API errors. Handlers render them as
// {"code": "<kind>:<surface>", "message": "..."} with the matching HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is "<kind>:<surface>"
type Code string

const (
	BadRequest   Code = "bad_request:api"
	Unauthorized Code = "unauthorized:api"
	Forbidden    Code = "forbidden:api"
	NotFound     Code = "not_found:api"
	RateLimited  Code = "rate_limit:api"
	Internal     Code = "internal:api"
)

var statuses = map[Code]int{
	BadRequest:   http.StatusBadRequest,
	Unauthorized: http.StatusUnauthorized,
	Forbidden:    http.StatusForbidden,
	NotFound:     http.StatusNotFound,
	RateLimited:  http.StatusTooManyRequests,
	Internal:     http.StatusInternalServerError,
}

var defaultMessages = map[Code]string{
	BadRequest:   "The request couldn't be processed. Please check your input and try again.",
	Unauthorized: "You need to sign in before continuing.",
	Forbidden:    "You don't have access to this resource.",
	NotFound:     "The requested resource was not found.",
	RateLimited:  "Too many requests. Please slow down.",
	Internal:     "Something went wrong. Please try again later.",
}

// Error is an API error with a stable code
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// New creates an error. An empty message uses the code's default.
func New(code Code, message string) *Error {
	if message == "" {
		message = defaultMessages[code]
	}
	return &Error{Code: code, Message: message}
}

// Wrap attaches cause to a coded error
func Wrap(code Code, message string, cause error) *Error {
	e := New(code, message)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status for the code
func (e *Error) Status() int {
	if s, ok := statuses[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Body is the JSON payload written to clients
func (e *Error) Body() map[string]string {
	return map[string]string{"code": string(e.Code), "message": e.Message}
}

// From extracts a coded error, mapping anything else to Internal
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(Internal, "", err)
}

// Is reports whether err carries code
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
