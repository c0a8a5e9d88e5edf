package server

import (
	"errors"
	"net/http"
)

// Error is a request failure raised by a pipeline stage.
//
// Status is the HTTP status to answer with. Anything that is not an error
// status (4xx or 5xx) counts as unset and is answered with 500. Message is sent to the client verbatim, Err is only logged.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns Status, or 500 when it is not an error status.
func (e *Error) StatusCode() int {
	if e.Status < 400 || e.Status > 599 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// ErrNotFound answers unmatched routes.
var ErrNotFound = &Error{Status: http.StatusNotFound, Message: "Not Found"}

// BadRequest reports malformed client input.
func BadRequest(message string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Err: err}
}

// Internal hides err behind a generic 500.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: http.StatusText(http.StatusInternalServerError), Err: err}
}

// statusCoder is implemented by collaborator errors that pick their own status.
type statusCoder interface {
	StatusCode() int
}

// collaboratorError relays a rules engine failure: its message always, its
// status when it exposes one.
func collaboratorError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	e := &Error{Message: err.Error(), Err: err}
	var sc statusCoder
	if errors.As(err, &sc) {
		e.Status = sc.StatusCode()
		e.Message = sc.(error).Error()
	}
	return e
}

// asError turns anything returned by a stage into an *Error. Errors that are
// not already pipeline errors are internal.
func asError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err)
}
