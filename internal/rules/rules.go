// Package rules defines the contract between the gateway and the
// rule-application engine.
//
// The gateway does not interpret rules. It hands the parsed request body to an
// Engine and relays either the engine's JSON output or its error. What the body
// contains (rule lists, payloads, ...) is owned by the engine.
package rules

import (
	"context"
	"fmt"
)

// Engine applies transformation rules to a parsed JSON document.
//
// input is the decoded request body (map[string]any, []any, string,
// json.Number, bool or nil). The returned value must be JSON encodable.
// Failures should be reported as *Error so the caller can relay a status.
type Engine interface {
	Apply(ctx context.Context, input any) (any, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, input any) (any, error)

func (f EngineFunc) Apply(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

// Error is a failure reported by an Engine.
// Status is an HTTP status code; zero means the engine did not pick one.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the status chosen by the engine, or zero.
func (e *Error) StatusCode() int {
	return e.Status
}

// Errorf builds an Error with a formatted message.
func Errorf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}
