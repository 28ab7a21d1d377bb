// Package api holds the JSON envelope of the /api/v1 endpoints and a client
// for them.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Envelope wraps every /api/v1 response body.
type Envelope[T any] struct {
	Status  string       `json:"status"`
	Data    T            `json:"data"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// OK wraps data in a success envelope.
func OK[T any](data T) Envelope[T] {
	return Envelope[T]{Status: StatusOK, Data: data}
}

// Fail builds an error envelope.
func Fail(message string, fields ...FieldError) Envelope[any] {
	return Envelope[any]{Status: StatusError, Message: message, Errors: fields}
}

// Error is returned by Client when the transport succeeded but the API
// reported a failure.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Message returns the human-readable cause of an API failure, or the error
// text for any other error.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
